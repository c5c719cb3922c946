package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// Repository persists directory records. Postgres and MongoDB implement it.
type Repository interface {
	Create(ctx context.Context, u *UserRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*UserRecord, error)
	GetByEmail(ctx context.Context, email string) (*UserRecord, error)
	Update(ctx context.Context, u *UserRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*UserRecord, int, error)
	QueryByRole(ctx context.Context, role string) ([]*UserRecord, error)
}
