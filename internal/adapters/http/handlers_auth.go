package web

import (
	"errors"
	"log/slog"
	"net/http"

	"courtadmin/internal/adapters/http/middleware"
	"courtadmin/internal/application/orchestrators"
	"courtadmin/internal/domain/audit"
)

type loginPage struct {
	Email   string
	Error   string
	Expired bool
}

// handleLoginPage shows the sign-in form, or skips it for a still-valid session.
func (s *server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if sess, ok := middleware.GetSessionFromContext(r.Context()); ok && sess.IsValid(s.now()) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.renderTemplate(w, r, "login.html", loginPage{Expired: r.URL.Query().Get("expired") == "1"})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	email := r.PostFormValue("email")
	result, err := orchestrators.ExecuteLogin(r.Context(), orchestrators.LoginInput{
		Email:    email,
		Password: r.PostFormValue("password"),
	}, orchestrators.LoginDeps{API: s.deps.API, SessionStore: s.deps.Sessions})

	switch {
	case err == nil:
	case errors.Is(err, orchestrators.ErrInvalidCredentials):
		s.audit(r, s.auditEvent(email, audit.CategoryAuth, audit.ActionLoginFailed).WithSeverity(audit.SeverityWarning))
		s.renderStatus(w, r, http.StatusUnauthorized, "login.html", loginPage{Email: email, Error: "Invalid email or password."})
		return
	case errors.Is(err, orchestrators.ErrAPIUnavailable):
		s.renderStatus(w, r, http.StatusServiceUnavailable, "login.html", loginPage{Email: email, Error: "The booking server could not be reached. Try again shortly."})
		return
	default:
		internalError(w, err)
		return
	}

	// a previous session on this browser is replaced, not left behind
	if old := middleware.SessionID(r); old != "" && old != result.SessionID {
		if err := orchestrators.ExecuteLogout(r.Context(), orchestrators.LogoutInput{SessionID: old},
			orchestrators.LogoutDeps{SessionStore: s.deps.Sessions, Registry: s.deps.Registry}); err != nil {
			slog.Warn("auth_event", "event", "stale_session_clear_failed", "session_id", old, "error", err)
		}
	}
	s.audit(r, s.auditEvent(email, audit.CategoryAuth, audit.ActionLogin).WithSession(result.SessionID))
	middleware.SetSessionCookie(w, result.SessionID)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := middleware.GetSessionFromContext(r.Context()); ok {
		s.audit(r, s.auditEvent(sess.Email, audit.CategoryAuth, audit.ActionLogout).WithSession(sess.ID))
	}
	err := orchestrators.ExecuteLogout(r.Context(), orchestrators.LogoutInput{SessionID: middleware.SessionID(r)},
		orchestrators.LogoutDeps{SessionStore: s.deps.Sessions, Registry: s.deps.Registry})
	if err != nil {
		internalError(w, err)
		return
	}
	middleware.ClearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// requireSession guards authenticated routes. A request without a session goes to /login;
// a session whose token expired, or that is older than the login window, is cleared and
// the browser is sent to /login?expired=1.
func (s *server) requireSession(next http.Handler) http.Handler {
	return middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := middleware.GetSessionFromContext(r.Context())
		if err := sess.Validate(s.now()); err != nil {
			s.audit(r, s.auditEvent(sess.Email, audit.CategoryAuth, audit.ActionSessionEnded).
				WithSession(sess.ID).WithDescription(r.URL.Path))
			slog.Info("auth_event", "event", "session_ended", "session_id", sess.ID, "path", r.URL.Path, "reason", err.Error())
			if err := orchestrators.ExecuteLogout(r.Context(), orchestrators.LogoutInput{SessionID: sess.ID},
				orchestrators.LogoutDeps{SessionStore: s.deps.Sessions, Registry: s.deps.Registry}); err != nil {
				internalError(w, err)
				return
			}
			middleware.ClearSessionCookie(w)
			http.Redirect(w, r, "/login?expired=1", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	}))
}
