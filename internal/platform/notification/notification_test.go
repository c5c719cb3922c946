package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

func TestTemplateEngine_Render(t *testing.T) {
	e := NewTemplateEngine()
	subject, body, err := e.Render(TemplateMatchApproved, map[string]string{
		"name":           "Asha",
		"organ_type":     "Kidney",
		"donor_name":     "Ravi",
		"recipient_name": "Asha",
		"blood_group":    "O+",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Your Kidney match has been approved" {
		t.Errorf("unexpected subject: %q", subject)
	}
	if want := "Dear Asha, the Kidney match between Ravi and Asha (blood group O+) was approved. Your care team will contact you with next steps."; body != want {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestTemplateEngine_MissingKeysLeftAsIs(t *testing.T) {
	e := NewTemplateEngine()
	subject, _, err := e.Render(TemplateDocumentReviewed, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Your document was {{status}}" {
		t.Errorf("expected placeholder kept, got %q", subject)
	}
}

func TestTemplateEngine_Unknown(t *testing.T) {
	if _, _, err := NewTemplateEngine().Render("nope", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestDispatcher_Send(t *testing.T) {
	rec := &Recorder{}
	d := NewDispatcher(NewTemplateEngine(), rec)

	n, err := d.Send(context.Background(), TemplateWelcome, "user-1", "a@example.com", map[string]string{"name": "Asha", "role": "donor"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.ID == "" || n.CreatedAt.IsZero() {
		t.Error("expected id and timestamp to be assigned")
	}
	sent := rec.Sent()
	if len(sent) != 1 || sent[0].RecipientID != "user-1" || sent[0].Subject != "Welcome to OrganLink" {
		t.Errorf("unexpected delivery: %+v", sent)
	}
}

func TestDispatcher_NotifierError(t *testing.T) {
	d := NewDispatcher(NewTemplateEngine(), &Recorder{Err: errors.New("queue down")})
	if _, err := d.Send(context.Background(), TemplateWelcome, "u", "", nil); err == nil {
		t.Error("expected notifier error to propagate")
	}
}

func TestLogNotifier(t *testing.T) {
	if err := NewLogNotifier(zerolog.Nop()).Notify(context.Background(), Notification{ID: "x"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

type fakeChannel struct {
	declared  string
	published []amqp.Publishing
	keys      []string
	closed    bool
	declErr   error
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	if f.declErr != nil {
		return amqp.Queue{}, f.declErr
	}
	if !durable {
		return amqp.Queue{}, errors.New("expected durable queue")
	}
	f.declared = name
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.keys = append(f.keys, exchange+"|"+key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPNotifier_Publishes(t *testing.T) {
	ch := &fakeChannel{}
	n, err := NewAMQPNotifier(ch, "organlink.notifications")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.declared != "organlink.notifications" {
		t.Errorf("expected queue to be declared, got %q", ch.declared)
	}

	if err := n.Notify(context.Background(), Notification{ID: "n-1", TemplateID: TemplateMatchRejected, RecipientID: "r-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(ch.published))
	}
	msg := ch.published[0]
	if ch.keys[0] != "|organlink.notifications" {
		t.Errorf("expected default exchange routed by queue name, got %s", ch.keys[0])
	}
	if msg.DeliveryMode != amqp.Persistent || msg.ContentType != "application/json" {
		t.Errorf("unexpected publishing: %+v", msg)
	}
	var decoded Notification
	if err := json.Unmarshal(msg.Body, &decoded); err != nil || decoded.RecipientID != "r-1" {
		t.Errorf("unexpected body: %s (%v)", msg.Body, err)
	}

	if err := n.Close(); err != nil || !ch.closed {
		t.Errorf("expected channel to be closed, err=%v", err)
	}
}

func TestAMQPNotifier_DeclareError(t *testing.T) {
	if _, err := NewAMQPNotifier(&fakeChannel{declErr: errors.New("denied")}, "q"); err == nil {
		t.Error("expected declare error")
	}
}
