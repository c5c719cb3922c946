package notification

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel used by AMQPNotifier.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier enqueues notifications as persistent JSON messages on a
// durable queue for an external mail/SMS worker to consume.
type AMQPNotifier struct {
	conn  *amqp.Connection
	ch    Channel
	queue string
}

// DialAMQP connects to the broker and declares queue.
func DialAMQP(url, queue string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	n, err := NewAMQPNotifier(ch, queue)
	if err != nil {
		conn.Close()
		return nil, err
	}
	n.conn = conn
	return n, nil
}

func NewAMQPNotifier(ch Channel, queue string) (*AMQPNotifier, error) {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &AMQPNotifier{ch: ch, queue: queue}, nil
}

func (a *AMQPNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return a.ch.PublishWithContext(ctx, "", a.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID,
		Type:         n.TemplateID,
		Timestamp:    n.CreatedAt,
		Body:         body,
	})
}

func (a *AMQPNotifier) Close() error {
	if err := a.ch.Close(); err != nil {
		return err
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
