package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"courtadmin/internal/adapters/storage"
	domain "courtadmin/internal/domain/session"
)

// SQLiteStore implements Store on the admin_session table.
type SQLiteStore struct {
	db     storage.SQLDB
	sealer *Sealer
	now    func() time.Time
	newID  func() string
}

// NewSQLiteStore creates a session store that seals tokens with sealer.
func NewSQLiteStore(db storage.SQLDB, sealer *Sealer) *SQLiteStore {
	return &SQLiteStore{
		db:     db,
		sealer: sealer,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Record persists identity, token and login time in one upsert.
// PRE: email and token are non-empty
// POST: Returns the stored session with its generated ID
func (s *SQLiteStore) Record(ctx context.Context, email, token string) (domain.Session, error) {
	sess := domain.Session{
		ID:        s.newID(),
		Email:     email,
		Token:     token,
		LoginTime: s.now().UTC(),
	}
	if email == "" || token == "" {
		return domain.Session{}, domain.ErrMissingIdentity
	}

	sealed, err := s.sealer.Seal([]byte(token))
	if err != nil {
		return domain.Session{}, fmt.Errorf("seal token: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO admin_session (id, admin_email, admin_token, admin_login_time)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   admin_email = excluded.admin_email,
		   admin_token = excluded.admin_token,
		   admin_login_time = excluded.admin_login_time`,
		sess.ID, sess.Email, sealed, sess.LoginTime.Format(time.RFC3339Nano))
	if err != nil {
		return domain.Session{}, fmt.Errorf("record session: %w", err)
	}
	return sess, nil
}

// Get loads a session.
// POST: Returns domain.ErrNotFound when id is unknown or its token cannot be opened
func (s *SQLiteStore) Get(ctx context.Context, id string) (domain.Session, error) {
	var (
		sess      = domain.Session{ID: id}
		sealed    []byte
		loginTime string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT admin_email, admin_token, admin_login_time FROM admin_session WHERE id = ?`, id,
	).Scan(&sess.Email, &sealed, &loginTime)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}

	token, err := s.sealer.Open(sealed)
	if err != nil {
		slog.Warn("session_unseal_failed", "session_id", id, "error", err)
		return domain.Session{}, domain.ErrNotFound
	}
	sess.Token = string(token)
	sess.LoginTime, _ = time.Parse(time.RFC3339Nano, loginTime)
	return sess, nil
}

// Clear removes every persisted field of the session.
func (s *SQLiteStore) Clear(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM admin_session WHERE id = ?`, id); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// PurgeBefore deletes sessions whose login time is older than cutoff and returns how many went.
func (s *SQLiteStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM admin_session WHERE admin_login_time < ?`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.RowsAffected()
}
