package cache

import (
	"context"
	"time"

	domain "courtadmin/internal/domain/cache"
)

// KeyPrefix namespaces cache keys in shared backends.
const KeyPrefix = "courtadmin:cache:"

// Store is the last-good response cache.
//
// Save never fails from the caller's point of view: persistence errors are
// logged and dropped, and a write from an older request than the stored one
// is ignored.
type Store interface {
	// Save overwrites key with data stamped now.
	// PRE: key is non-empty; requestedAt is when the producing request started
	// POST: Entry stored unless a newer request already wrote key
	Save(ctx context.Context, key string, data []byte, requestedAt time.Time)

	// Load returns the entry for key iff it is younger than maxAge.
	// POST: (entry, true) when now - Timestamp < maxAge; stale entries stay in place
	Load(ctx context.Context, key string, maxAge time.Duration) (domain.Entry, bool)
}
