// Package events carries storage change notifications to real-time
// subscribers and downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Event types published by the domain services.
const (
	UserCreated  = "user.created"
	UserUpdated  = "user.updated"
	UserDeleted  = "user.deleted"
	UserVerified = "user.verified"

	MatchCreated  = "match.created"
	MatchUpdated  = "match.updated"
	MatchDecided  = "match.decided"
	MatchTracking = "match.tracking"

	ConversationStarted = "chat.conversation"
	MessagePosted       = "chat.message"

	DocumentUploaded = "document.uploaded"
	DocumentReviewed = "document.reviewed"
)

// Event is a single change notification. Topic is what subscribers select on;
// Resource names the collection the change belongs to.
type Event struct {
	Type       string          `json:"type"`
	Topic      string          `json:"topic"`
	Resource   string          `json:"resource"`
	ResourceID string          `json:"resourceId,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// New builds an event on topic "<resource>/<id>", or "<resource>" when id is
// empty. A payload that fails to marshal is dropped from the event.
func New(eventType, resource, id string, payload interface{}) Event {
	topic := resource
	if id != "" {
		topic = resource + "/" + id
	}
	evt := Event{
		Type:       eventType,
		Topic:      topic,
		Resource:   resource,
		ResourceID: id,
		Timestamp:  time.Now().UTC(),
	}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			evt.Data = b
		}
	}
	return evt
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Nop discards every event.
var Nop Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

// Fanout delivers each event to every sink. A failing sink is logged and
// never stops delivery to the others, and Publish always returns nil.
type Fanout struct {
	sinks  []Publisher
	logger zerolog.Logger
}

func NewFanout(logger zerolog.Logger, sinks ...Publisher) *Fanout {
	f := &Fanout{logger: logger}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *Fanout) Publish(ctx context.Context, event Event) error {
	for _, s := range f.sinks {
		if err := s.Publish(ctx, event); err != nil {
			f.logger.Warn().Err(err).
				Str("event_type", event.Type).
				Str("topic", event.Topic).
				Msg("change feed publish failed")
		}
	}
	return nil
}

// Recorder keeps published events in memory. Tests use it as a sink.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.Events = append(r.Events, event)
	return nil
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []string {
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Type
	}
	return out
}
