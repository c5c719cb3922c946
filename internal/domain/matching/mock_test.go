package matching

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/organlink/organlink/internal/domain/directory"
)

type tripleKey struct {
	donor, recipient uuid.UUID
	organ            string
}

// mockStore keeps records in memory with the same upsert and transition
// rules as the database stores.
type mockStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*MatchRecord
	byKey   map[tripleKey]uuid.UUID
	failOn  int
	calls   int
}

func newMockStore() *mockStore {
	return &mockStore{
		records: make(map[uuid.UUID]*MatchRecord),
		byKey:   make(map[tripleKey]uuid.UUID),
	}
}

var errStoreDown = errors.New("store unavailable")

func (m *mockStore) Upsert(_ context.Context, p MatchProposal) (*MatchRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failOn > 0 && m.calls >= m.failOn {
		return nil, false, errStoreDown
	}

	now := time.Now().UTC()
	key := tripleKey{p.DonorID, p.RecipientID, OrganKey(p.OrganType)}
	if id, ok := m.byKey[key]; ok {
		r := m.records[id]
		r.DonorName, r.RecipientName = p.DonorName, p.RecipientName
		r.BloodGroup, r.Score, r.UpdatedAt = p.BloodGroup, p.Score, now
		cp := *r
		return &cp, false, nil
	}
	r := &MatchRecord{
		ID:            uuid.New(),
		DonorID:       p.DonorID,
		RecipientID:   p.RecipientID,
		DonorName:     p.DonorName,
		RecipientName: p.RecipientName,
		BloodGroup:    p.BloodGroup,
		OrganType:     p.OrganType,
		Score:         p.Score,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.records[r.ID] = r
	m.byKey[key] = r.ID
	cp := *r
	return &cp, true, nil
}

func (m *mockStore) UpsertAll(ctx context.Context, ps []MatchProposal) ([]Upserted, error) {
	out := make([]Upserted, 0, len(ps))
	for _, p := range ps {
		r, created, err := m.Upsert(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, Upserted{Record: r, Created: created})
	}
	return out, nil
}

func (m *mockStore) GetByID(_ context.Context, id uuid.UUID) (*MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockStore) List(_ context.Context, f Filter, limit, offset int) ([]*MatchRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*MatchRecord
	for _, r := range m.records {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.OrganType != "" && OrganKey(r.OrganType) != OrganKey(f.OrganType) {
			continue
		}
		if f.DonorID != nil && r.DonorID != *f.DonorID {
			continue
		}
		if f.RecipientID != nil && r.RecipientID != *f.RecipientID {
			continue
		}
		if f.Participant != nil && !r.Involves(*f.Participant) {
			continue
		}
		cp := *r
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	total := len(all)
	if offset >= total {
		return []*MatchRecord{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockStore) UpdateStatus(_ context.Context, id uuid.UUID, to Status, by string) (*MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != StatusPending {
		return nil, ErrInvalidTransition
	}
	now := time.Now().UTC()
	r.Status, r.DecidedBy, r.DecidedAt, r.UpdatedAt = to, by, &now, now
	cp := *r
	return &cp, nil
}

func (m *mockStore) UpdateTracking(_ context.Context, id uuid.UUID, t Tracking, entry TimelineEntry) (*MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	timeline := append(r.Tracking.Timeline, entry)
	t.Timeline = timeline
	r.Tracking = t
	r.UpdatedAt = time.Now().UTC()
	cp := *r
	return &cp, nil
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type mockDirectory struct {
	users []*directory.UserRecord
	err   error
}

func (d *mockDirectory) QueryByRole(_ context.Context, role string) ([]*directory.UserRecord, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := []*directory.UserRecord{}
	for _, u := range d.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *mockDirectory) Get(_ context.Context, id uuid.UUID) (*directory.UserRecord, error) {
	for _, u := range d.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, directory.ErrNotFound
}

func person(role, name, blood string, organs ...string) *directory.UserRecord {
	return &directory.UserRecord{
		ID:         uuid.New(),
		Role:       role,
		FullName:   name,
		BloodGroup: blood,
		OrganTypes: organs,
	}
}

func donor(blood string, organs ...string) *directory.UserRecord {
	return person(directory.RoleDonor, "Donor", blood, organs...)
}

func recipient(blood string, organs ...string) *directory.UserRecord {
	return person(directory.RoleRecipient, "Recipient", blood, organs...)
}
