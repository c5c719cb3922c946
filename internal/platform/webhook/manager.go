package webhook

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/organlink/organlink/internal/platform/events"
)

var (
	ErrInvalidURL     = errors.New("invalid webhook url")
	ErrInvalidPattern = errors.New("invalid event pattern")
)

// TestEvent is the type sent by Manager.Test.
const TestEvent = "webhook.test"

// Headers set on every delivery.
const (
	HeaderSignature = "X-OrganLink-Signature"
	HeaderEvent     = "X-OrganLink-Event"
	HeaderDelivery  = "X-OrganLink-Delivery"
)

// Option configures a Manager.
type Option func(*Manager)

func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

func WithMaxRetries(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxRetries = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.queueSize = n
		}
	}
}

// WithBackoff sets the wait before the first retry; it doubles per attempt.
func WithBackoff(d time.Duration) Option {
	return func(m *Manager) { m.backoff = d }
}

// Manager owns endpoint registration and delivery. It implements
// events.Publisher; Publish only enqueues and Run performs the deliveries.
type Manager struct {
	store      Store
	client     *http.Client
	logger     zerolog.Logger
	maxRetries int
	backoff    time.Duration
	queueSize  int
	queue      chan events.Event
	dropped    int64
}

func NewManager(store Store, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "webhook").Logger(),
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
		queueSize:  256,
	}
	for _, o := range opts {
		o(m)
	}
	m.queue = make(chan events.Event, m.queueSize)
	return m
}

// Forwardable reports whether events of eventType may leave the platform.
// Chat traffic carries message bodies and is never forwarded.
func Forwardable(eventType string) bool {
	return !strings.HasPrefix(eventType, "chat.")
}

func eventMatches(pattern, eventType string) bool {
	if pattern == "*" || pattern == eventType {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	}
	return false
}

func (ep *Endpoint) wants(eventType string) bool {
	if !ep.Active || !Forwardable(eventType) {
		return false
	}
	for _, p := range ep.Events {
		if eventMatches(p, eventType) {
			return true
		}
	}
	return false
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	return nil
}

func validatePatterns(patterns []string) error {
	if len(patterns) == 0 {
		return fmt.Errorf("%w: at least one event pattern is required", ErrInvalidPattern)
	}
	for _, p := range patterns {
		switch {
		case p == "":
			return fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
		case strings.HasPrefix(p, "chat."):
			return fmt.Errorf("%w: chat events cannot be forwarded", ErrInvalidPattern)
		case strings.Contains(strings.TrimSuffix(p, "*"), "*"):
			return fmt.Errorf("%w: %q, only a trailing \".*\" wildcard is allowed", ErrInvalidPattern, p)
		}
	}
	return nil
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Register validates and stores a new active endpoint with a fresh signing
// secret. The returned endpoint is the only place the secret is exposed.
func (m *Manager) Register(ctx context.Context, rawURL string, patterns []string, createdBy string) (*Endpoint, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if err := validatePatterns(patterns); err != nil {
		return nil, err
	}
	secret, err := generateSecret()
	if err != nil {
		return nil, err
	}
	ep := &Endpoint{
		ID:        uuid.New(),
		URL:       rawURL,
		Secret:    secret,
		Events:    patterns,
		Active:    true,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, fmt.Errorf("create endpoint: %w", err)
	}
	m.logger.Info().Str("endpoint_id", ep.ID.String()).Str("url", ep.URL).Strs("events", ep.Events).Msg("webhook endpoint registered")
	return ep, nil
}

func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*Endpoint, error) {
	return m.store.GetEndpoint(ctx, id)
}

func (m *Manager) List(ctx context.Context) ([]*Endpoint, error) {
	return m.store.ListEndpoints(ctx)
}

func (m *Manager) SetActive(ctx context.Context, id uuid.UUID, active bool) (*Endpoint, error) {
	if err := m.store.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	return m.store.GetEndpoint(ctx, id)
}

func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	return m.store.DeleteEndpoint(ctx, id)
}

func (m *Manager) Deliveries(ctx context.Context, id uuid.UUID, limit, offset int) ([]*Delivery, int, error) {
	if _, err := m.store.GetEndpoint(ctx, id); err != nil {
		return nil, 0, err
	}
	return m.store.ListDeliveries(ctx, id, limit, offset)
}

// Dropped returns how many events were discarded because the queue was full.
func (m *Manager) Dropped() int64 {
	return atomic.LoadInt64(&m.dropped)
}

// Publish enqueues the event for Run. It never blocks the publisher: when the
// queue is full the event is dropped and counted.
func (m *Manager) Publish(_ context.Context, event events.Event) error {
	if !Forwardable(event.Type) {
		return nil
	}
	select {
	case m.queue <- event:
	default:
		atomic.AddInt64(&m.dropped, 1)
		m.logger.Warn().Str("type", event.Type).Str("topic", event.Topic).Msg("webhook queue full, event dropped")
	}
	return nil
}

// Run delivers queued events until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-m.queue:
			m.Dispatch(ctx, event)
		}
	}
}

// Dispatch delivers event to every active endpoint subscribed to its type and
// returns the final attempt for each.
func (m *Manager) Dispatch(ctx context.Context, event events.Event) []*Delivery {
	endpoints, err := m.store.ListEndpoints(ctx)
	if err != nil {
		m.logger.Error().Err(err).Str("type", event.Type).Msg("list webhook endpoints")
		return nil
	}
	var out []*Delivery
	for _, ep := range endpoints {
		if ep.wants(event.Type) {
			out = append(out, m.Deliver(ctx, ep, event))
		}
	}
	return out
}

// Test sends a synthetic event to the endpoint regardless of its patterns or
// whether it is paused.
func (m *Manager) Test(ctx context.Context, id uuid.UUID) (*Delivery, error) {
	ep, err := m.store.GetEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	event := events.New(TestEvent, "webhooks", ep.ID.String(), map[string]string{"message": "test delivery"})
	return m.Deliver(ctx, ep, event), nil
}

// Deliver posts event to ep, retrying network errors, 429 and 5xx responses
// with exponential backoff. Every attempt is recorded; the last is returned.
func (m *Manager) Deliver(ctx context.Context, ep *Endpoint, event events.Event) *Delivery {
	payload, err := json.Marshal(event)
	if err != nil {
		d := m.newDelivery(ep, event, 1)
		d.Error = fmt.Sprintf("marshal event: %v", err)
		m.record(ctx, d)
		return d
	}
	deliveryID := uuid.New()
	signature := "sha256=" + Sign(payload, ep.Secret)

	var last *Delivery
	for attempt := 1; attempt <= m.maxRetries+1; attempt++ {
		if attempt > 1 {
			wait := m.backoff << (attempt - 2)
			select {
			case <-ctx.Done():
				return last
			case <-time.After(wait):
			}
		}

		d := m.newDelivery(ep, event, attempt)
		retry := m.post(ctx, ep.URL, payload, signature, event.Type, deliveryID, d)
		m.record(ctx, d)
		last = d
		if d.Succeeded || !retry {
			break
		}
	}

	ev := m.logger.Info()
	if !last.Succeeded {
		ev = m.logger.Warn().Str("error", last.Error)
	}
	ev.Str("endpoint_id", ep.ID.String()).Str("type", event.Type).
		Int("attempts", last.Attempt).Int("status", last.StatusCode).Msg("webhook delivery")
	return last
}

// post performs one attempt and fills d. It reports whether a failure is
// worth retrying.
func (m *Manager) post(ctx context.Context, target string, payload []byte, signature, eventType string, deliveryID uuid.UUID, d *Delivery) bool {
	start := time.Now()
	defer func() { d.Duration = time.Since(start) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		d.Error = err.Error()
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "OrganLink-Webhook/1.0")
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set(HeaderDelivery, deliveryID.String())

	resp, err := m.client.Do(req)
	if err != nil {
		d.Error = err.Error()
		return ctx.Err() == nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	d.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.Succeeded = true
		return false
	}
	d.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

func (m *Manager) newDelivery(ep *Endpoint, event events.Event, attempt int) *Delivery {
	return &Delivery{
		ID:         uuid.New(),
		EndpointID: ep.ID,
		EventType:  event.Type,
		Topic:      event.Topic,
		Attempt:    attempt,
		CreatedAt:  time.Now().UTC(),
	}
}

func (m *Manager) record(ctx context.Context, d *Delivery) {
	if err := m.store.RecordDelivery(context.WithoutCancel(ctx), d); err != nil {
		m.logger.Error().Err(err).Str("endpoint_id", d.EndpointID.String()).Msg("record webhook delivery")
	}
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
