package audit

import (
	"context"
	"time"

	domain "courtadmin/internal/domain/audit"
)

// Store defines the interface for audit event persistence.
type Store interface {
	// Save persists an audit event.
	// PRE: event passes Validate
	// POST: Event is persisted
	Save(ctx context.Context, event domain.Event) error

	// List returns audit events with optional filtering.
	// PRE: limit > 0
	// POST: Returns events ordered by timestamp desc
	List(ctx context.Context, filter Filter, limit int) ([]domain.Event, error)

	// PurgeBefore deletes events older than cutoff and returns how many went.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Filter narrows a List call. Zero fields match everything.
type Filter struct {
	Category   domain.Category
	Action     domain.Action
	ActorEmail string
	From       time.Time
	To         time.Time
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)
