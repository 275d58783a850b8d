package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
)

// SessionStoreForLogout clears a console session.
type SessionStoreForLogout interface {
	Clear(ctx context.Context, id string) error
}

// LogoutInput carries input for the logout orchestrator.
type LogoutInput struct {
	SessionID string
}

// LogoutDeps holds dependencies for Logout.
type LogoutDeps struct {
	SessionStore SessionStoreForLogout
	Registry     *ViewRegistry // may be nil
}

// ExecuteLogout ends a console session.
// POST: Session fields removed and its view controllers dropped; empty ids are a no-op
func ExecuteLogout(ctx context.Context, input LogoutInput, deps LogoutDeps) error {
	if input.SessionID == "" {
		return nil
	}
	if deps.Registry != nil {
		deps.Registry.Drop(input.SessionID)
	}
	if err := deps.SessionStore.Clear(ctx, input.SessionID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	slog.Info("auth_event", "event", "logout", "session_id", input.SessionID)
	return nil
}
