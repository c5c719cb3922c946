package hospital

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type mockHospitalRepo struct {
	store map[uuid.UUID]*Hospital
}

func newMockHospitalRepo() *mockHospitalRepo {
	return &mockHospitalRepo{store: make(map[uuid.UUID]*Hospital)}
}

func (m *mockHospitalRepo) Create(_ context.Context, h *Hospital) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	h.CreatedAt, h.UpdatedAt = time.Now(), time.Now()
	cp := *h
	m.store[h.ID] = &cp
	return nil
}

func (m *mockHospitalRepo) GetByID(_ context.Context, id uuid.UUID) (*Hospital, error) {
	h, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (m *mockHospitalRepo) Update(_ context.Context, h *Hospital) error {
	if _, ok := m.store[h.ID]; !ok {
		return ErrNotFound
	}
	cp := *h
	m.store[h.ID] = &cp
	return nil
}

func (m *mockHospitalRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *mockHospitalRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Hospital, int, error) {
	var out []*Hospital
	for _, h := range m.store {
		q := strings.ToLower(f.Query)
		if q != "" && !strings.Contains(strings.ToLower(h.Name), q) && !strings.Contains(strings.ToLower(h.City), q) {
			continue
		}
		if f.City != "" && !strings.EqualFold(h.City, f.City) {
			continue
		}
		if f.ActiveOnly && !h.Active {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	total := len(out)
	if offset > total {
		offset = total
	}
	if end := offset + limit; end < total {
		out = out[offset:end]
	} else {
		out = out[offset:]
	}
	return out, total, nil
}

type mockDeptRepo struct {
	store map[uuid.UUID]*Department
}

func newMockDeptRepo() *mockDeptRepo {
	return &mockDeptRepo{store: make(map[uuid.UUID]*Department)}
}

func (m *mockDeptRepo) Create(_ context.Context, d *Department) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now()
	cp := *d
	m.store[d.ID] = &cp
	return nil
}

func (m *mockDeptRepo) GetByID(_ context.Context, id uuid.UUID) (*Department, error) {
	d, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDeptRepo) Update(_ context.Context, d *Department) error {
	if _, ok := m.store[d.ID]; !ok {
		return ErrNotFound
	}
	cp := *d
	m.store[d.ID] = &cp
	return nil
}

func (m *mockDeptRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *mockDeptRepo) ListByHospital(_ context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Department, int, error) {
	var out []*Department
	for _, d := range m.store {
		if d.HospitalID == hospitalID {
			out = append(out, d)
		}
	}
	return out, len(out), nil
}

func newTestService() *Service {
	return NewService(newMockHospitalRepo(), newMockDeptRepo())
}
