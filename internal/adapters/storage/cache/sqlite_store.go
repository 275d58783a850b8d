package cache

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"courtadmin/internal/adapters/storage"
	domain "courtadmin/internal/domain/cache"
)

// SQLiteStore implements Store on the response_cache table.
type SQLiteStore struct {
	db  storage.SQLDB
	now func() time.Time
}

// NewSQLiteStore creates a response cache backed by SQLite.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Save overwrites key with data stamped now, unless a newer request already wrote it.
func (s *SQLiteStore) Save(ctx context.Context, key string, data []byte, requestedAt time.Time) {
	e := domain.Entry{Key: key, Payload: data, Timestamp: s.now(), RequestedAt: requestedAt}
	if err := e.Validate(); err != nil {
		slog.Warn("cache_save_rejected", "key", key, "error", err)
		return
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO response_cache (key, payload, saved_at, requested_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   payload = excluded.payload,
		   saved_at = excluded.saved_at,
		   requested_at = excluded.requested_at
		 WHERE excluded.requested_at >= response_cache.requested_at`,
		e.Key, e.Payload, e.Timestamp.UnixNano(), e.RequestedAt.UnixNano())
	if err != nil {
		slog.Error("cache_save_failed", "key", key, "error", err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.Info("cache_save_superseded", "key", key, "requested_at", requestedAt)
	}
}

// Load returns the entry for key iff it is younger than maxAge.
func (s *SQLiteStore) Load(ctx context.Context, key string, maxAge time.Duration) (domain.Entry, bool) {
	var savedAt, requestedAt int64
	e := domain.Entry{Key: key}
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, saved_at, requested_at FROM response_cache WHERE key = ?`, key,
	).Scan(&e.Payload, &savedAt, &requestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, false
	}
	if err != nil {
		slog.Error("cache_load_failed", "key", key, "error", err)
		return domain.Entry{}, false
	}
	e.Timestamp = time.Unix(0, savedAt)
	e.RequestedAt = time.Unix(0, requestedAt)

	if !e.Usable(s.now(), maxAge) {
		return domain.Entry{}, false
	}
	return e, true
}
