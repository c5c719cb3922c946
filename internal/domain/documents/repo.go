package documents

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrAlreadyReviewed = errors.New("document already reviewed")
)

type Repository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	ListByOwner(ctx context.Context, owner uuid.UUID, limit, offset int) ([]*Document, int, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Document, int, error)
	// Review moves a pending document to r.Status. It returns
	// ErrAlreadyReviewed when the document is no longer pending.
	Review(ctx context.Context, id uuid.UUID, r Review) (*Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
