package account

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/organlink/organlink/internal/domain/directory"
	"github.com/organlink/organlink/internal/platform/events"
)

func TestEmailChangeMovesLogin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	s, err := f.svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	email := "asha.rao@example.org"
	_, err = f.users.Update(ctx, s.User.ID, directory.Patch{Email: &email}, false)
	require.NoError(t, err)

	login, err := f.svc.Login(ctx, LoginRequest{Email: email, Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, login.User.ID)

	_, err = f.svc.Login(ctx, LoginRequest{Email: "asha@example.org", Password: "correct horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	req := validSignup()
	req.FullName = "Another Asha"
	_, err = f.svc.Signup(ctx, req)
	assert.NoError(t, err, "the old address is free again")
}

func TestDeletedUserLosesCredential(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	s, err := f.svc.Signup(ctx, validSignup())
	require.NoError(t, err)
	require.NoError(t, f.users.Delete(ctx, s.User.ID))

	_, err = f.creds.GetByEmail(ctx, "asha@example.org")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Signup(ctx, validSignup())
	assert.NoError(t, err)
}

func TestCredentialSync_IgnoresUsersWithoutCredential(t *testing.T) {
	sync := NewCredentialSync(newMockCredentials(), zerolog.Nop())
	ctx := context.Background()
	id := uuid.NewString()

	u := &directory.UserRecord{Role: directory.RoleDoctor, Email: "dr@example.org"}
	assert.NoError(t, sync.Publish(ctx, events.New(events.UserUpdated, "users", id, u)))
	assert.NoError(t, sync.Publish(ctx, events.New(events.UserDeleted, "users", id, nil)))
	assert.NoError(t, sync.Publish(ctx, events.New(events.MatchCreated, "matches", id, nil)))
}
