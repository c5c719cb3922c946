package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type mockRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*UserRecord
	seq   int
}

func newMockRepo() *mockRepo {
	return &mockRepo{users: make(map[uuid.UUID]*UserRecord)}
}

func (m *mockRepo) Create(_ context.Context, u *UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Email != "" {
		for _, existing := range m.users {
			if strings.EqualFold(existing.Email, u.Email) {
				return ErrDuplicateEmail
			}
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	m.seq++
	u.CreatedAt = time.Unix(int64(m.seq), 0).UTC()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockRepo) GetByEmail(_ context.Context, email string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Update(_ context.Context, u *UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return ErrNotFound
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *mockRepo) sorted(keep func(*UserRecord) bool) []*UserRecord {
	out := []*UserRecord{}
	for _, u := range m.users {
		if keep(u) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*UserRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(func(u *UserRecord) bool {
		if f.Role != "" && u.Role != f.Role {
			return false
		}
		if f.BloodGroup != "" && !strings.EqualFold(u.BloodGroup, f.BloodGroup) {
			return false
		}
		if f.Verified != nil && u.Verified != *f.Verified {
			return false
		}
		if f.OrganType != "" {
			found := false
			for _, o := range u.OrganTypes {
				found = found || strings.EqualFold(o, f.OrganType)
			}
			if !found {
				return false
			}
		}
		if f.Query != "" {
			q := strings.ToLower(f.Query)
			if !strings.Contains(strings.ToLower(u.FullName), q) && !strings.Contains(strings.ToLower(u.Email), q) {
				return false
			}
		}
		return true
	})
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) QueryByRole(_ context.Context, role string) ([]*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(u *UserRecord) bool { return u.Role == role }), nil
}
