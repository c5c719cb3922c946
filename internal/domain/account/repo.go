package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("credential not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

type CredentialRepository interface {
	Create(ctx context.Context, c *Credential) error
	GetByEmail(ctx context.Context, email string) (*Credential, error)
	TouchLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
	UpdateEmail(ctx context.Context, userID uuid.UUID, email string) error
	Delete(ctx context.Context, userID uuid.UUID) error
}
