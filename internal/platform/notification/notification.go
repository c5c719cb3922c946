// Package notification renders user-facing messages from templates and hands
// them to a delivery backend (log or AMQP queue).
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Template IDs.
const (
	TemplateMatchApproved    = "match-approved"
	TemplateMatchRejected    = "match-rejected"
	TemplateDocumentReviewed = "document-reviewed"
	TemplateWelcome          = "welcome"
)

// Notification is a single outbound message addressed to a directory user.
type Notification struct {
	ID          string            `json:"id"`
	TemplateID  string            `json:"template_id"`
	RecipientID string            `json:"recipient_id"`
	Email       string            `json:"email,omitempty"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Notifier delivers a rendered notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type Template struct {
	ID      string
	Subject string
	Body    string
}

// TemplateEngine renders {{key}} placeholders.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	for _, t := range []Template{
		{
			ID:      TemplateMatchApproved,
			Subject: "Your {{organ_type}} match has been approved",
			Body:    "Dear {{name}}, the {{organ_type}} match between {{donor_name}} and {{recipient_name}} (blood group {{blood_group}}) was approved. Your care team will contact you with next steps.",
		},
		{
			ID:      TemplateMatchRejected,
			Subject: "Update on your {{organ_type}} match",
			Body:    "Dear {{name}}, the proposed {{organ_type}} match between {{donor_name}} and {{recipient_name}} was not approved. You remain in the registry for future matches.",
		},
		{
			ID:      TemplateDocumentReviewed,
			Subject: "Your document was {{status}}",
			Body:    "Dear {{name}}, your {{kind}} document \"{{file_name}}\" was {{status}}. {{note}}",
		},
		{
			ID:      TemplateWelcome,
			Subject: "Welcome to OrganLink",
			Body:    "Dear {{name}}, your {{role}} account is ready. A doctor will verify your profile shortly.",
		},
	} {
		e.templates[t.ID] = t
	}
	return e
}

func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render fills the template. Placeholders with no value in data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, strings.TrimSpace(body), nil
}

// Dispatcher renders templates and forwards the result to a Notifier.
type Dispatcher struct {
	templates *TemplateEngine
	notifier  Notifier
}

func NewDispatcher(templates *TemplateEngine, notifier Notifier) *Dispatcher {
	return &Dispatcher{templates: templates, notifier: notifier}
}

func (d *Dispatcher) Send(ctx context.Context, templateID, recipientID, email string, data map[string]string) (Notification, error) {
	subject, body, err := d.templates.Render(templateID, data)
	if err != nil {
		return Notification{}, fmt.Errorf("render template: %w", err)
	}
	n := Notification{
		ID:          uuid.NewString(),
		TemplateID:  templateID,
		RecipientID: recipientID,
		Email:       email,
		Subject:     subject,
		Body:        body,
		Data:        data,
		CreatedAt:   time.Now().UTC(),
	}
	if err := d.notifier.Notify(ctx, n); err != nil {
		return n, fmt.Errorf("notify %s: %w", recipientID, err)
	}
	return n, nil
}

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.logger.Info().
		Str("notification_id", n.ID).
		Str("template", n.TemplateID).
		Str("recipient_id", n.RecipientID).
		Str("subject", n.Subject).
		Msg("notification")
	return nil
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}
