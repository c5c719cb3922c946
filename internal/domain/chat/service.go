package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/organlink/organlink/internal/domain/matching"
	"github.com/organlink/organlink/internal/platform/events"
)

var (
	ErrValidation     = errors.New("invalid chat request")
	ErrNotParticipant = errors.New("not a participant of this conversation")
)

// Matches resolves the parties of a match when a conversation is opened
// from one.
type Matches interface {
	Get(ctx context.Context, id uuid.UUID) (*matching.MatchRecord, error)
}

// Change-feed namespaces: messages go to chat/<conversation id>, new
// conversations to inbox/<participant id>.
const (
	topicPrefix = "chat"
	inboxPrefix = "inbox"
)

type Service struct {
	convs   ConversationRepository
	msgs    MessageRepository
	matches Matches
	events  events.Publisher
	logger  zerolog.Logger
}

func NewService(convs ConversationRepository, msgs MessageRepository, matches Matches, pub events.Publisher, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop
	}
	return &Service{convs: convs, msgs: msgs, matches: matches, events: pub, logger: logger}
}

// Caller identifies who is acting. ID is not a UUID for callers without
// a directory record, such as the development admin. Staff are doctors.
type Caller struct {
	ID    string
	Staff bool
	Admin bool
}

func (c Caller) uuid() (uuid.UUID, error) {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: caller has no directory id", ErrValidation)
	}
	return id, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Start opens a conversation. With a match id the donor and recipient are
// added and an existing conversation for that match is returned instead of
// a new one. The caller is always a participant.
func (s *Service) Start(ctx context.Context, caller Caller, participants []uuid.UUID, matchID *uuid.UUID) (*Conversation, bool, error) {
	self, err := caller.uuid()
	if err != nil {
		return nil, false, err
	}

	if matchID != nil {
		m, err := s.matches.Get(ctx, *matchID)
		if err != nil {
			return nil, false, err
		}
		if !caller.Admin && !caller.Staff && !m.Involves(self) {
			return nil, false, ErrNotParticipant
		}
		existing, err := s.convs.GetByMatch(ctx, *matchID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
		participants = append([]uuid.UUID{m.DonorID, m.RecipientID}, participants...)
	}

	all := dedupe(append([]uuid.UUID{self}, participants...))
	if len(all) < 2 {
		return nil, false, fmt.Errorf("%w: a conversation needs at least two participants", ErrValidation)
	}

	c := &Conversation{MatchID: matchID, Participants: all}
	if err := s.convs.Create(ctx, c); err != nil {
		return nil, false, err
	}
	for _, p := range c.Participants {
		s.publish(ctx, events.New(events.ConversationStarted, inboxPrefix, p.String(), c))
	}
	return c, true, nil
}

// Get returns the conversation when the caller may see it.
func (s *Service) Get(ctx context.Context, caller Caller, id uuid.UUID) (*Conversation, error) {
	c, err := s.convs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Admin && !c.HasParticipant(caller.ID) {
		return nil, ErrNotParticipant
	}
	return c, nil
}

func (s *Service) ListMine(ctx context.Context, caller Caller, limit, offset int) ([]*Conversation, int, error) {
	self, err := caller.uuid()
	if err != nil {
		return nil, 0, err
	}
	return s.convs.ListForParticipant(ctx, self, limit, offset)
}

func (s *Service) Messages(ctx context.Context, caller Caller, id uuid.UUID, limit, offset int) ([]*Message, int, error) {
	if _, err := s.Get(ctx, caller, id); err != nil {
		return nil, 0, err
	}
	return s.msgs.List(ctx, id, limit, offset)
}

// Post persists a message and then publishes it on chat/<conversation id>.
func (s *Service) Post(ctx context.Context, caller Caller, id uuid.UUID, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: message body is empty", ErrValidation)
	}
	if len(body) > MaxBodyLength {
		return nil, fmt.Errorf("%w: message exceeds %d bytes", ErrValidation, MaxBodyLength)
	}
	sender, err := caller.uuid()
	if err != nil {
		return nil, err
	}
	c, err := s.convs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(sender.String()) {
		return nil, ErrNotParticipant
	}

	m := &Message{ConversationID: c.ID, SenderID: sender, Body: body}
	if err := s.msgs.Create(ctx, m); err != nil {
		return nil, err
	}
	s.publish(ctx, events.New(events.MessagePosted, topicPrefix, c.ID.String(), m))
	return m, nil
}

// CanSubscribe reports whether caller may follow a chat/<id> or
// inbox/<user id> topic. Topics outside those namespaces are refused.
func (s *Service) CanSubscribe(ctx context.Context, caller Caller, topic string) bool {
	if rest, ok := strings.CutPrefix(topic, inboxPrefix+"/"); ok {
		return caller.Admin || rest == caller.ID
	}
	rest, ok := strings.CutPrefix(topic, topicPrefix+"/")
	if !ok {
		return false
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return false
	}
	_, err = s.Get(ctx, caller, id)
	return err == nil
}

// IsChatTopic reports whether topic is one CanSubscribe decides.
func IsChatTopic(topic string) bool {
	return strings.HasPrefix(topic, topicPrefix+"/") || strings.HasPrefix(topic, inboxPrefix+"/")
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn().Err(err).Str("event_type", e.Type).Msg("publish chat event")
	}
}
