package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/organlink/organlink/internal/domain/matching"
	"github.com/organlink/organlink/internal/platform/events"
)

type mockConversations struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Conversation
	seq   time.Duration
}

func newMockConversations() *mockConversations {
	return &mockConversations{items: make(map[uuid.UUID]*Conversation)}
}

func (m *mockConversations) Create(_ context.Context, c *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	m.seq++
	c.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(m.seq * time.Second)
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockConversations) GetByID(_ context.Context, id uuid.UUID) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockConversations) GetByMatch(_ context.Context, matchID uuid.UUID) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.items {
		if c.MatchID != nil && *c.MatchID == matchID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockConversations) ListForParticipant(_ context.Context, userID uuid.UUID, limit, offset int) ([]*Conversation, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Conversation
	for _, c := range m.items {
		if c.HasParticipant(userID.String()) {
			cp := *c
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

type mockMessages struct {
	mu    sync.Mutex
	items []*Message
}

func (m *mockMessages) Create(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = uuid.New()
	msg.SentAt = time.Now().UTC()
	cp := *msg
	m.items = append(m.items, &cp)
	return nil
}

func (m *mockMessages) List(_ context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Message
	for _, msg := range m.items {
		if msg.ConversationID == conversationID {
			all = append(all, msg)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

type mockMatches map[uuid.UUID]*matching.MatchRecord

func (m mockMatches) Get(_ context.Context, id uuid.UUID) (*matching.MatchRecord, error) {
	r, ok := m[id]
	if !ok {
		return nil, matching.ErrNotFound
	}
	return r, nil
}

type fixture struct {
	svc      *Service
	convs    *mockConversations
	msgs     *mockMessages
	events   *events.Recorder
	match    *matching.MatchRecord
	donor    Caller
	patient  Caller
	stranger Caller
}

func newFixture() *fixture {
	match := &matching.MatchRecord{
		ID:          uuid.New(),
		DonorID:     uuid.New(),
		RecipientID: uuid.New(),
		OrganType:   "kidney",
		Status:      matching.StatusApproved,
	}
	f := &fixture{
		convs:    newMockConversations(),
		msgs:     &mockMessages{},
		events:   &events.Recorder{},
		match:    match,
		donor:    Caller{ID: match.DonorID.String()},
		patient:  Caller{ID: match.RecipientID.String()},
		stranger: Caller{ID: uuid.NewString()},
	}
	f.svc = NewService(f.convs, f.msgs, mockMatches{match.ID: match}, f.events, zerolog.Nop())
	return f
}
