// Package webhook forwards change-feed events to registered HTTP endpoints.
// Each delivery is a signed JSON POST; attempts are logged per endpoint.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("webhook endpoint not found")

// Endpoint is a registered delivery target. Events holds subscription
// patterns: an exact type ("match.decided"), a family ("match.*") or "*".
type Endpoint struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret,omitempty"`
	Events    []string  `json:"events"`
	Active    bool      `json:"active"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Redacted returns a copy without the signing secret.
func (e *Endpoint) Redacted() *Endpoint {
	cp := *e
	cp.Secret = ""
	return &cp
}

type Delivery struct {
	ID         uuid.UUID     `json:"id"`
	EndpointID uuid.UUID     `json:"endpointId"`
	EventType  string        `json:"eventType"`
	Topic      string        `json:"topic"`
	Attempt    int           `json:"attempt"`
	StatusCode int           `json:"statusCode,omitempty"`
	Succeeded  bool          `json:"succeeded"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"durationNs"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Store persists endpoints and the delivery log.
type Store interface {
	CreateEndpoint(ctx context.Context, ep *Endpoint) error
	GetEndpoint(ctx context.Context, id uuid.UUID) (*Endpoint, error)
	ListEndpoints(ctx context.Context) ([]*Endpoint, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	DeleteEndpoint(ctx context.Context, id uuid.UUID) error
	RecordDelivery(ctx context.Context, d *Delivery) error
	// ListDeliveries returns the newest attempts first.
	ListDeliveries(ctx context.Context, endpointID uuid.UUID, limit, offset int) ([]*Delivery, int, error)
}

// ---------------------------------------------------------------------------
// Signatures
// ---------------------------------------------------------------------------

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature (with or without the "sha256=" prefix)
// matches payload.
func Verify(payload []byte, secret, signature string) bool {
	if len(signature) > 7 && signature[:7] == "sha256=" {
		signature = signature[7:]
	}
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}

// ---------------------------------------------------------------------------
// MemoryStore
// ---------------------------------------------------------------------------

// MemoryStore keeps everything in process. It backs tests and servers run
// without Postgres migrations for webhooks.
type MemoryStore struct {
	mu         sync.RWMutex
	endpoints  map[uuid.UUID]*Endpoint
	deliveries []*Delivery
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{endpoints: make(map[uuid.UUID]*Endpoint)}
}

func (s *MemoryStore) CreateEndpoint(_ context.Context, ep *Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ep
	s.endpoints[ep.ID] = &cp
	return nil
}

func (s *MemoryStore) GetEndpoint(_ context.Context, id uuid.UUID) (*Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.endpoints[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ep
	return &cp, nil
}

func (s *MemoryStore) ListEndpoints(_ context.Context) ([]*Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Endpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		cp := *ep
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.endpoints[id]
	if !ok {
		return ErrNotFound
	}
	ep.Active = active
	return nil
}

func (s *MemoryStore) DeleteEndpoint(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[id]; !ok {
		return ErrNotFound
	}
	delete(s.endpoints, id)
	return nil
}

func (s *MemoryStore) RecordDelivery(_ context.Context, d *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.deliveries = append(s.deliveries, &cp)
	return nil
}

func (s *MemoryStore) ListDeliveries(_ context.Context, endpointID uuid.UUID, limit, offset int) ([]*Delivery, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*Delivery
	for i := len(s.deliveries) - 1; i >= 0; i-- {
		if s.deliveries[i].EndpointID == endpointID {
			matched = append(matched, s.deliveries[i])
		}
	}
	total := len(matched)
	if offset >= total {
		return []*Delivery{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}
