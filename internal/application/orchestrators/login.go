package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"courtadmin/internal/domain/failure"
	"courtadmin/internal/domain/session"
)

// Authenticator exchanges admin credentials for an API token.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
}

// SessionStoreForLogin persists the new console session.
type SessionStoreForLogin interface {
	Record(ctx context.Context, email, token string) (session.Session, error)
}

// LoginInput carries input for the login orchestrator.
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult carries the result of a successful login.
type LoginResult struct {
	SessionID string
	Email     string
}

// LoginDeps holds dependencies for Login.
type LoginDeps struct {
	API          Authenticator
	SessionStore SessionStoreForLogin
}

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAPIUnavailable     = errors.New("the booking server could not be reached")
)

// ExecuteLogin authenticates against the remote API and records a console session.
// PRE: Valid email and password provided
// POST: Returns the new session id on success; nothing is persisted on failure
func ExecuteLogin(ctx context.Context, input LoginInput, deps LoginDeps) (LoginResult, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" || input.Password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := deps.API.Login(ctx, email, input.Password)
	if err != nil {
		var se *failure.StatusError
		if errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden || se.Code == http.StatusBadRequest) {
			slog.Info("auth_event", "event", "login_failed", "email", email, "reason", "rejected", "status", se.Code)
			return LoginResult{}, ErrInvalidCredentials
		}
		slog.Warn("auth_event", "event", "login_failed", "email", email, "reason", string(failure.Classify(err)), "error", err)
		return LoginResult{}, fmt.Errorf("%w: %v", ErrAPIUnavailable, err)
	}

	sess, err := deps.SessionStore.Record(ctx, email, token)
	if err != nil {
		return LoginResult{}, fmt.Errorf("record session: %w", err)
	}

	slog.Info("auth_event", "event", "login_success", "email", email, "session_id", sess.ID)
	return LoginResult{SessionID: sess.ID, Email: sess.Email}, nil
}
