package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"courtadmin/internal/adapters/storage"
	domain "courtadmin/internal/domain/outbox"
)

const columns = `id, action_type, payload, status, attempts, max_attempts, last_attempted_at, created_at, external_id, error_message`

// SQLiteStore implements Store on the outbox table.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new outbox store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves an entry.
// PRE: id is non-empty
// POST: Returns the entry or ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Entry, error) {
	e, err := scan(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM outbox WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, ErrNotFound
	}
	return e, err
}

// Save inserts or updates an entry.
// PRE: entry has been validated
// POST: The row matches e
func (s *SQLiteStore) Save(ctx context.Context, e domain.Entry) error {
	var lastAttempt sql.NullString
	if !e.LastAttemptedAt.IsZero() {
		lastAttempt = sql.NullString{String: e.LastAttemptedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbox (`+columns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   attempts = excluded.attempts,
		   max_attempts = excluded.max_attempts,
		   last_attempted_at = excluded.last_attempted_at,
		   external_id = excluded.external_id,
		   error_message = excluded.error_message`,
		e.ID, e.ActionType, e.Payload, e.Status, e.Attempts, e.MaxAttempts,
		lastAttempt, e.CreatedAt.UTC().Format(time.RFC3339Nano), e.ExternalID, e.ErrorMessage)
	if err != nil {
		return fmt.Errorf("save outbox entry %s: %w", e.ID, err)
	}
	return nil
}

// ListPending returns up to limit pending or retrying entries, oldest first.
func (s *SQLiteStore) ListPending(ctx context.Context, limit int) ([]domain.Entry, error) {
	return s.list(ctx,
		`SELECT `+columns+` FROM outbox WHERE status IN (?, ?) ORDER BY created_at ASC LIMIT ?`,
		domain.StatusPending, domain.StatusRetrying, limit)
}

// ListFailed returns up to limit permanently failed entries, most recent attempt first.
func (s *SQLiteStore) ListFailed(ctx context.Context, limit int) ([]domain.Entry, error) {
	return s.list(ctx,
		`SELECT `+columns+` FROM outbox WHERE status = ? ORDER BY last_attempted_at DESC LIMIT ?`,
		domain.StatusFailed, limit)
}

// CountByStatus returns entry counts keyed by status.
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM outbox GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count outbox: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...any) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (domain.Entry, error) {
	var e domain.Entry
	var createdAt string
	var lastAttempt sql.NullString
	if err := row.Scan(&e.ID, &e.ActionType, &e.Payload, &e.Status, &e.Attempts, &e.MaxAttempts,
		&lastAttempt, &createdAt, &e.ExternalID, &e.ErrorMessage); err != nil {
		return domain.Entry{}, err
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if lastAttempt.Valid {
		e.LastAttemptedAt, _ = time.Parse(time.RFC3339Nano, lastAttempt.String)
	}
	return e, nil
}
