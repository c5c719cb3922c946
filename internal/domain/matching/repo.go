package matching

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("match record not found")
	ErrInvalidTransition = errors.New("match is no longer pending")
)

// Upserted is one record written by UpsertAll.
type Upserted struct {
	Record  *MatchRecord
	Created bool
}

// Store persists match records. Upsert is idempotent on
// (donor, recipient, lower(organ)) and never changes Status of an existing
// record.
type Store interface {
	Upsert(ctx context.Context, p MatchProposal) (*MatchRecord, bool, error)
	// UpsertAll writes the whole batch or reports failure for the batch.
	UpsertAll(ctx context.Context, ps []MatchProposal) ([]Upserted, error)
	GetByID(ctx context.Context, id uuid.UUID) (*MatchRecord, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*MatchRecord, int, error)
	// UpdateStatus moves a Pending record to `to`; any other current status
	// yields ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id uuid.UUID, to Status, decidedBy string) (*MatchRecord, error)
	// UpdateTracking replaces the tracking fields and appends entry to the
	// timeline in one statement.
	UpdateTracking(ctx context.Context, id uuid.UUID, t Tracking, entry TimelineEntry) (*MatchRecord, error)
}
