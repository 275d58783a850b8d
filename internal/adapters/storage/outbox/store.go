package outbox

import (
	"context"
	"errors"

	domain "courtadmin/internal/domain/outbox"
)

// ErrNotFound is returned when no entry has the requested id.
var ErrNotFound = errors.New("outbox entry not found")

// Store persists deferred actions.
type Store interface {
	// GetByID retrieves an entry.
	// PRE: id is non-empty
	// POST: Returns the entry or ErrNotFound
	GetByID(ctx context.Context, id string) (domain.Entry, error)

	// Save inserts or updates an entry.
	// PRE: entry has been validated
	Save(ctx context.Context, e domain.Entry) error

	// ListPending returns up to limit pending or retrying entries, oldest first.
	ListPending(ctx context.Context, limit int) ([]domain.Entry, error)

	// ListFailed returns up to limit permanently failed entries, most recent attempt first.
	ListFailed(ctx context.Context, limit int) ([]domain.Entry, error)

	// CountByStatus returns entry counts keyed by status.
	CountByStatus(ctx context.Context) (map[string]int, error)
}
