package cache

import (
	"errors"
	"time"
)

// Logical view keys.
const (
	KeyDashboardOverview = "dashboard_overview"
	KeyHistoryAll        = "history_all"
)

// Default read windows.
const (
	DefaultFreshWindow    = 5 * time.Minute
	DefaultOfflineWindow  = 1 * time.Hour
	DefaultFallbackWindow = 24 * time.Hour
)

// ErrEmptyKey is returned when an entry has no key.
var ErrEmptyKey = errors.New("cache key is required")

// Entry is the last-good payload for one logical view.
type Entry struct {
	Key         string
	Payload     []byte
	Timestamp   time.Time // when the entry was written
	RequestedAt time.Time // when the request that produced it started
}

// Validate checks that the Entry can be persisted.
// PRE: Entry struct is populated
// POST: Returns nil if valid, error otherwise
func (e Entry) Validate() error {
	if e.Key == "" {
		return ErrEmptyKey
	}
	if e.Timestamp.IsZero() {
		return errors.New("timestamp must be set")
	}
	return nil
}

// Age returns how long ago the entry was written.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// Usable reports whether the entry is within maxAge.
// PRE: now and maxAge are known
// POST: Returns true iff now - Timestamp < maxAge; exactly maxAge is not usable
// INVARIANT: Entry fields are not mutated
func (e Entry) Usable(now time.Time, maxAge time.Duration) bool {
	return e.Age(now) < maxAge
}

// Supersedes reports whether e may overwrite existing.
// A write from a request that started before the stored one is rejected.
func (e Entry) Supersedes(existing Entry) bool {
	return !e.RequestedAt.Before(existing.RequestedAt)
}

// Windows groups the three read policies used by view controllers.
type Windows struct {
	Fresh    time.Duration // prefer fresh, else fetch
	Offline  time.Duration // offline at fetch time
	Fallback time.Duration // better stale than nothing after a failed fetch
}

// DefaultWindows returns the standard read windows.
func DefaultWindows() Windows {
	return Windows{
		Fresh:    DefaultFreshWindow,
		Offline:  DefaultOfflineWindow,
		Fallback: DefaultFallbackWindow,
	}
}
