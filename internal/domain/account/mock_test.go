package account

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/organlink/organlink/internal/domain/directory"
	"github.com/organlink/organlink/internal/platform/auth"
	"github.com/organlink/organlink/internal/platform/notification"
)

type mockCredentials struct {
	mu        sync.Mutex
	byEmail   map[string]*Credential
	createErr error
}

func newMockCredentials() *mockCredentials {
	return &mockCredentials{byEmail: make(map[string]*Credential)}
}

func (m *mockCredentials) Create(_ context.Context, c *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	key := strings.ToLower(c.Email)
	if _, ok := m.byEmail[key]; ok {
		return ErrDuplicateEmail
	}
	c.CreatedAt = time.Now().UTC()
	cp := *c
	m.byEmail[key] = &cp
	return nil
}

func (m *mockCredentials) GetByEmail(_ context.Context, email string) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCredentials) TouchLogin(_ context.Context, userID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byEmail {
		if c.UserID == userID {
			c.LastLogin = &at
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockCredentials) UpdateEmail(_ context.Context, userID uuid.UUID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(email)
	if other, ok := m.byEmail[key]; ok && other.UserID != userID {
		return ErrDuplicateEmail
	}
	for k, c := range m.byEmail {
		if c.UserID == userID {
			delete(m.byEmail, k)
			c.Email = email
			m.byEmail[key] = c
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockCredentials) Delete(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, c := range m.byEmail {
		if c.UserID == userID {
			delete(m.byEmail, k)
		}
	}
	return nil
}

// memoryDirectory backs a real directory.Service so signup exercises the
// same normalisation as the server.
type memoryDirectory struct {
	mu    sync.Mutex
	users map[uuid.UUID]*directory.UserRecord
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{users: make(map[uuid.UUID]*directory.UserRecord)}
}

func (m *memoryDirectory) Create(_ context.Context, u *directory.UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if u.Email != "" && strings.EqualFold(existing.Email, u.Email) {
			return directory.ErrDuplicateEmail
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memoryDirectory) GetByID(_ context.Context, id uuid.UUID) (*directory.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memoryDirectory) GetByEmail(_ context.Context, email string) (*directory.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, directory.ErrNotFound
}

func (m *memoryDirectory) Update(_ context.Context, u *directory.UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return directory.ErrNotFound
	}
	for id, existing := range m.users {
		if id != u.ID && u.Email != "" && strings.EqualFold(existing.Email, u.Email) {
			return directory.ErrDuplicateEmail
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memoryDirectory) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return directory.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memoryDirectory) List(context.Context, directory.Filter, int, int) ([]*directory.UserRecord, int, error) {
	return nil, 0, errors.New("not used")
}

func (m *memoryDirectory) QueryByRole(context.Context, string) ([]*directory.UserRecord, error) {
	return nil, errors.New("not used")
}

func (m *memoryDirectory) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fixture struct {
	svc   *Service
	users *directory.Service
	creds *mockCredentials
	dir   *memoryDirectory
	sent  *notification.Recorder
}

func newFixture() *fixture {
	f := &fixture{
		creds: newMockCredentials(),
		dir:   newMemoryDirectory(),
		sent:  &notification.Recorder{},
	}
	f.users = directory.NewService(f.dir, NewCredentialSync(f.creds, zerolog.Nop()), zerolog.Nop())
	dispatch := notification.NewDispatcher(notification.NewTemplateEngine(), f.sent)
	f.svc = NewService(f.creds, f.users, auth.NewIssuer(testKey, "organlink", time.Hour), dispatch, zerolog.Nop())
	f.svc.SetPasswordParams(auth.PasswordParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16})
	return f
}
