package documents

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/organlink/organlink/internal/domain/directory"
	"github.com/organlink/organlink/internal/platform/blobstore"
	"github.com/organlink/organlink/internal/platform/events"
	"github.com/organlink/organlink/internal/platform/notification"
)

type mockRepo struct {
	mu        sync.Mutex
	docs      map[uuid.UUID]*Document
	createErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{docs: make(map[uuid.UUID]*Document)}
}

func (m *mockRepo) Create(_ context.Context, d *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.Status = StatusPending
	d.UploadedAt = time.Now().UTC()
	cp := *d
	m.docs[d.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockRepo) filter(keep func(*Document) bool, limit, offset int) ([]*Document, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Document
	for _, d := range m.docs {
		if keep(d) {
			cp := *d
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UploadedAt.After(all[j].UploadedAt) })
	total := len(all)
	if offset >= total {
		return nil, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total
}

func (m *mockRepo) ListByOwner(_ context.Context, owner uuid.UUID, limit, offset int) ([]*Document, int, error) {
	items, total := m.filter(func(d *Document) bool { return d.OwnerID == owner }, limit, offset)
	return items, total, nil
}

func (m *mockRepo) ListByStatus(_ context.Context, status string, limit, offset int) ([]*Document, int, error) {
	items, total := m.filter(func(d *Document) bool { return d.Status == status }, limit, offset)
	return items, total, nil
}

func (m *mockRepo) Review(_ context.Context, id uuid.UUID, r Review) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if d.Status != StatusPending {
		return nil, ErrAlreadyReviewed
	}
	at := r.At
	d.Status, d.ReviewerID, d.ReviewNote, d.ReviewedAt = r.Status, r.ReviewerID, r.Note, &at
	cp := *d
	return &cp, nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

type mockOwners map[uuid.UUID]*directory.UserRecord

func (m mockOwners) Get(_ context.Context, id uuid.UUID) (*directory.UserRecord, error) {
	u, ok := m[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return u, nil
}

type fixture struct {
	svc    *Service
	repo   *mockRepo
	blobs  *blobstore.MemoryStore
	events *events.Recorder
	sent   *notification.Recorder
	owner  *directory.UserRecord
}

func newFixture() *fixture {
	owner := &directory.UserRecord{ID: uuid.New(), Role: directory.RoleDonor, FullName: "Asha Rao", Email: "asha@example.org"}
	f := &fixture{
		repo:   newMockRepo(),
		blobs:  blobstore.NewMemoryStore(),
		events: &events.Recorder{},
		sent:   &notification.Recorder{},
		owner:  owner,
	}
	dispatch := notification.NewDispatcher(notification.NewTemplateEngine(), f.sent)
	f.svc = NewService(f.repo, f.blobs, mockOwners{owner.ID: owner}, f.events, dispatch, zerolog.Nop())
	return f
}
