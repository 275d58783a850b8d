package session

import (
	"context"

	domain "courtadmin/internal/domain/session"
)

// Store persists console sessions.
type Store interface {
	// Record persists identity, token and login time for a new session.
	// PRE: email and token are non-empty
	// POST: Returns the stored session with its generated ID
	Record(ctx context.Context, email, token string) (domain.Session, error)

	// Get loads a session.
	// POST: Returns domain.ErrNotFound when id is unknown or its token cannot be opened
	Get(ctx context.Context, id string) (domain.Session, error)

	// Clear removes every persisted field of the session. Unknown ids are not an error.
	Clear(ctx context.Context, id string) error
}
