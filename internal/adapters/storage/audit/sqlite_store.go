package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"courtadmin/internal/adapters/storage"
	domain "courtadmin/internal/domain/audit"
)

const dateLayout = time.RFC3339Nano

// SQLiteStore implements the audit Store interface using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new audit event store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save persists an audit event.
// PRE: event passes Validate
// POST: Event is persisted
func (s *SQLiteStore) Save(ctx context.Context, event domain.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_event (id, timestamp, category, action, severity, actor_email, session_id, description, ip_address, user_agent)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Timestamp.UTC().Format(dateLayout), string(event.Category), string(event.Action),
		string(event.Severity), event.ActorEmail, event.SessionID, event.Description, event.IPAddress, event.UserAgent)
	if err != nil {
		return fmt.Errorf("save audit event: %w", err)
	}
	return nil
}

// List returns audit events with optional filtering.
// PRE: limit > 0
// POST: Returns events ordered by timestamp desc
func (s *SQLiteStore) List(ctx context.Context, filter Filter, limit int) ([]domain.Event, error) {
	query := `SELECT id, timestamp, category, action, severity, actor_email, session_id, description, ip_address, user_agent FROM audit_event WHERE 1=1`
	args := []any{}

	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, string(filter.Category))
	}
	if filter.Action != "" {
		query += " AND action = ?"
		args = append(args, string(filter.Action))
	}
	if filter.ActorEmail != "" {
		query += " AND actor_email = ?"
		args = append(args, filter.ActorEmail)
	}
	if !filter.From.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.From.UTC().Format(dateLayout))
	}
	if !filter.To.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.To.UTC().Format(dateLayout))
	}

	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// PurgeBefore deletes events older than cutoff and returns how many went.
func (s *SQLiteStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_event WHERE timestamp < ?`, cutoff.UTC().Format(dateLayout))
	if err != nil {
		return 0, fmt.Errorf("purge audit events: %w", err)
	}
	return res.RowsAffected()
}

// scanEvents scans multiple rows into a slice of Events.
func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var timestamp string
		if err := rows.Scan(&e.ID, &timestamp, &e.Category, &e.Action, &e.Severity, &e.ActorEmail,
			&e.SessionID, &e.Description, &e.IPAddress, &e.UserAgent); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(dateLayout, timestamp)
		events = append(events, e)
	}
	return events, rows.Err()
}
