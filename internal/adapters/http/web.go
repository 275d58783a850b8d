package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"courtadmin/internal/adapters/email"
	"courtadmin/internal/adapters/http/middleware"
	"courtadmin/internal/adapters/http/perf"
	auditStore "courtadmin/internal/adapters/storage/audit"
	outboxStore "courtadmin/internal/adapters/storage/outbox"
	sessionStore "courtadmin/internal/adapters/storage/session"
	"courtadmin/internal/application/orchestrators"
)

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds everything the console's handlers need.
type Deps struct {
	API         orchestrators.Authenticator
	Sessions    sessionStore.Store
	Registry    *orchestrators.ViewRegistry
	Network     orchestrators.NetworkStatus
	OutboxStore outboxStore.Store
	Outbox      *orchestrators.OutboxProcessor
	EmailSender email.Sender
	EmailFrom   string
	Audit       auditStore.Store // may be nil
	Collector   *perf.Collector // may be nil
	DB          Pinger          // may be nil
	Location    *time.Location
	Currency    string

	SchemaVersion      int
	CSRFKey            []byte
	TrustedOrigins     []string
	Secure             bool
	RateLimitPerSecond int
	SlowRequestMs      int

	Now        func() time.Time
	GenerateID func() string
}

// ErrCSRFKey is returned for a CSRF key that is not 32 hex-encoded bytes.
var ErrCSRFKey = errors.New("CSRF key must be 64 hex characters (32 bytes)")

// LoadCSRFKey decodes the configured CSRF secret.
// In production the key MUST be set. In development a random key is generated per startup.
func LoadCSRFKey(keyHex string, production bool) ([]byte, error) {
	if keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			return nil, ErrCSRFKey
		}
		return key, nil
	}
	if production {
		return nil, errors.New("CSRF key is required in production")
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	slog.Warn("csrf_key_random", "hint", "forms won't survive a restart; set COURTADMIN_CSRF_KEY")
	return key, nil
}

type server struct {
	deps Deps
}

func (s *server) now() time.Time {
	if s.deps.Now == nil {
		return time.Now()
	}
	return s.deps.Now()
}

func (s *server) location() *time.Location {
	if s.deps.Location == nil {
		return time.UTC
	}
	return s.deps.Location
}

// NewMux wires HTTP handlers for the console.
// PRE: deps.CSRFKey is 32 bytes; stores, registry and network are set
// POST: Returns the full handler with middleware applied
func NewMux(deps Deps) http.Handler {
	if deps.GenerateID == nil {
		deps.GenerateID = newID
	}
	middleware.SecureCookies = deps.Secure
	s := &server{deps: deps}

	mux := http.NewServeMux()
	static, _ := fs.Sub(assets, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	s.registerRoutes(mux)

	limiter := middleware.NewRateLimiter(deps.RateLimitPerSecond, time.Second)

	// Request path: Timing -> SecurityHeaders -> CSRF -> RateLimit -> Auth -> mux
	return middleware.Chain(mux,
		middleware.Auth(deps.Sessions),
		middleware.RateLimit(limiter),
		middleware.CSRF(deps.CSRFKey, middleware.CSRFOptions{
			Secure:         deps.Secure,
			TrustedOrigins: deps.TrustedOrigins,
		}),
		middleware.SecurityHeaders,
		middleware.Timing(deps.Collector, deps.SlowRequestMs),
	)
}

func (s *server) registerRoutes(mux *http.ServeMux) {
	auth := s.requireSession

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.Handle("GET /dashboard", auth(http.HandlerFunc(s.handleDashboard)))
	mux.Handle("GET /history", auth(http.HandlerFunc(s.handleHistory)))
	mux.Handle("POST /refresh", auth(http.HandlerFunc(s.handleRefresh)))

	mux.Handle("GET /history/export.csv", auth(s.exportHandler("csv")))
	mux.Handle("GET /history/export.xlsx", auth(s.exportHandler("xlsx")))
	mux.Handle("GET /history/print", auth(http.HandlerFunc(s.handlePrint)))
	mux.Handle("POST /history/email", auth(http.HandlerFunc(s.handleEmailReport)))

	mux.Handle("GET /admin/perf", auth(http.HandlerFunc(s.handlePerf)))
	mux.Handle("GET /admin/audit", auth(http.HandlerFunc(s.handleAuditList)))
	mux.Handle("GET /admin/outbox", auth(http.HandlerFunc(s.handleOutboxList)))
	mux.Handle("POST /admin/outbox/{id}/{action}", auth(http.HandlerFunc(s.handleOutboxAction)))
}
