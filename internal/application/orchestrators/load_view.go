package orchestrators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cacheStore "courtadmin/internal/adapters/storage/cache"
	"courtadmin/internal/application/fetchpolicy"
	"courtadmin/internal/domain/booking"
	"courtadmin/internal/domain/cache"
	"courtadmin/internal/domain/failure"
	"courtadmin/internal/domain/session"
)

// View names.
const (
	ViewDashboard = "dashboard"
	ViewHistory   = "history"
)

// ViewState is where a controller is in its load cycle.
type ViewState string

// View states. Redirect is the forced return to Idle after the session ended.
const (
	StateIdle     ViewState = "idle"
	StateLoading  ViewState = "loading"
	StateReady    ViewState = "ready"
	StateDegraded ViewState = "degraded"
	StateFailed   ViewState = "failed"
	StateRedirect ViewState = "redirect"
)

// ErrUnknownView is returned for a view name no config was registered for.
var ErrUnknownView = errors.New("unknown view")

// SessionStoreForView is the session access a view load needs.
type SessionStoreForView interface {
	Get(ctx context.Context, id string) (session.Session, error)
	Clear(ctx context.Context, id string) error
}

// NetworkStatus reports connectivity.
type NetworkStatus interface {
	Online() bool
}

// BookingFetcher is the remote API surface the views read.
type BookingFetcher interface {
	Overview(ctx context.Context, token string) ([]booking.Raw, error)
	History(ctx context.Context, token string) ([]booking.Raw, error)
}

// ViewConfig describes one page's remote call and cache key.
type ViewConfig struct {
	Name     string
	CacheKey string
	Fetch    func(ctx context.Context, token string) ([]booking.Raw, error)
	Options  fetchpolicy.Options
}

// DashboardView reads the overview endpoint.
func DashboardView(api BookingFetcher, opts fetchpolicy.Options) ViewConfig {
	return ViewConfig{Name: ViewDashboard, CacheKey: cache.KeyDashboardOverview, Fetch: api.Overview, Options: opts}
}

// HistoryView reads the history endpoint.
func HistoryView(api BookingFetcher, opts fetchpolicy.Options) ViewConfig {
	return ViewConfig{Name: ViewHistory, CacheKey: cache.KeyHistoryAll, Fetch: api.History, Options: opts}
}

// ViewDeps are shared by every controller a registry creates.
type ViewDeps struct {
	Sessions         SessionStoreForView
	Network          NetworkStatus
	Cache            cacheStore.Store
	Normalizer       booking.Normalizer
	Windows          cache.Windows
	BreakerThreshold int
	BreakerCooldown  time.Duration
	Now              func() time.Time
	Sleep            func(ctx context.Context, d time.Duration) error // nil uses a real timer
}

func (d ViewDeps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// LoadViewInput carries input for one page load.
type LoadViewInput struct {
	SessionID string
	View      string
	Refresh   bool // skip the fresh-cache shortcut
}

// LoadViewResult is what a page renders.
type LoadViewResult struct {
	State     ViewState
	Bookings  []booking.Booking
	FromCache bool
	CachedAt  time.Time
	Banner    *failure.Banner // set for Degraded and Failed
	Email     string          // signed-in admin, empty on Redirect
}

// Redirected reports whether the caller must send the browser to the login page.
func (r LoadViewResult) Redirected() bool {
	return r.State == StateRedirect
}

// LoadViewDeps holds dependencies for LoadView.
type LoadViewDeps struct {
	Registry *ViewRegistry
}

// ExecuteLoadView loads a page's bookings through its session controller.
// PRE: input.View was registered
// POST: Returns a result in Ready, Degraded, Failed or Redirect; error only for unknown views
// or a session store failure
func ExecuteLoadView(ctx context.Context, input LoadViewInput, deps LoadViewDeps) (LoadViewResult, error) {
	ctrl, err := deps.Registry.Controller(input.SessionID, input.View)
	if err != nil {
		return LoadViewResult{}, err
	}
	return ctrl.Load(ctx, input.Refresh)
}

// Controller runs the load cycle for one view in one console session.
// It owns the view's breaker; the cache and session store are shared.
type Controller struct {
	sessionID string
	cfg       ViewConfig
	deps      *ViewDeps
	breaker   *fetchpolicy.Breaker
	onEnd     func(sessionID string)

	mu    sync.Mutex
	state ViewState
}

func newController(sessionID string, cfg ViewConfig, deps *ViewDeps, onEnd func(string)) *Controller {
	return &Controller{
		sessionID: sessionID,
		cfg:       cfg,
		deps:      deps,
		breaker:   fetchpolicy.NewBreaker(deps.BreakerThreshold, deps.BreakerCooldown),
		onEnd:     onEnd,
		state:     StateIdle,
	}
}

// State returns the controller's current state.
func (c *Controller) State() ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Breaker exposes the controller's failure counter.
func (c *Controller) Breaker() *fetchpolicy.Breaker {
	return c.breaker
}

func (c *Controller) setState(s ViewState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Load runs Idle → Loading → {Ready, Degraded, Failed} or ends in Redirect.
// PRE: ctx bounds the whole load including retries
// POST: An invalid session or an API 401 clears the session before returning Redirect;
// a circuit-open load never contacts the API
func (c *Controller) Load(ctx context.Context, refresh bool) (LoadViewResult, error) {
	c.setState(StateLoading)
	res, err := c.load(ctx, refresh)
	if err != nil {
		c.setState(StateIdle)
		return res, err
	}
	c.setState(res.State)
	if res.State == StateRedirect {
		c.setState(StateIdle)
	}
	return res, nil
}

func (c *Controller) load(ctx context.Context, refresh bool) (LoadViewResult, error) {
	d := c.deps
	now := d.now()

	sess, err := d.Sessions.Get(ctx, c.sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return c.endSession(ctx, "session_missing"), nil
	}
	if err != nil {
		return LoadViewResult{}, fmt.Errorf("load session: %w", err)
	}
	if err := sess.Validate(now); err != nil {
		return c.endSession(ctx, err.Error()), nil
	}

	if err := c.breaker.Allow(now); err != nil {
		slog.Warn("view_event", "event", "circuit_open", "view", c.cfg.Name, "session_id", c.sessionID)
		return c.fallback(ctx, sess, failure.KindCircuitOpen, d.Windows.Fallback), nil
	}

	if !d.Network.Online() {
		slog.Info("view_event", "event", "offline", "view", c.cfg.Name)
		return c.fallback(ctx, sess, failure.KindNetwork, d.Windows.Offline), nil
	}

	if !refresh {
		if res, ok := c.fromCache(ctx, sess, d.Windows.Fresh); ok {
			res.State = StateReady
			slog.Debug("view_event", "event", "fresh_cache_hit", "view", c.cfg.Name)
			return res, nil
		}
	}

	requestedAt := now
	policy := fetchpolicy.Policy{Options: c.cfg.Options, Name: c.cfg.Name, Sleep: d.Sleep}
	raws, err := fetchpolicy.Execute(ctx, policy, func(ctx context.Context) ([]booking.Raw, error) {
		return c.cfg.Fetch(ctx, sess.Token)
	})
	if err != nil {
		kind := failure.Classify(err)
		if kind == failure.KindAuthExpired {
			return c.endSession(ctx, "api_unauthorized"), nil
		}
		if ctx.Err() != nil {
			// the caller went away; the API did not fail
			slog.Info("view_event", "event", "fetch_abandoned", "view", c.cfg.Name, "error", ctx.Err())
			return c.fallback(ctx, sess, kind, d.Windows.Fallback), nil
		}
		c.breaker.RecordFailure(d.now())
		slog.Warn("view_event", "event", "fetch_failed", "view", c.cfg.Name, "kind", string(kind), "error", err)
		return c.fallback(ctx, sess, kind, d.Windows.Fallback), nil
	}

	bookings := d.Normalizer.NormalizeAll(raws)
	c.breaker.RecordSuccess()
	if payload, err := json.Marshal(bookings); err != nil {
		slog.Error("cache_encode_failed", "key", c.cfg.CacheKey, "error", err)
	} else {
		d.Cache.Save(ctx, c.cfg.CacheKey, payload, requestedAt)
	}

	slog.Info("view_event", "event", "loaded", "view", c.cfg.Name, "bookings", len(bookings))
	return LoadViewResult{State: StateReady, Bookings: bookings, Email: sess.Email}, nil
}

// fallback serves the cache within maxAge as Degraded, else Failed.
func (c *Controller) fallback(ctx context.Context, sess session.Session, kind failure.Kind, maxAge time.Duration) LoadViewResult {
	if res, ok := c.fromCache(ctx, sess, maxAge); ok {
		banner := failure.NewBanner(kind, true)
		res.State = StateDegraded
		res.Banner = &banner
		return res
	}
	banner := failure.NewBanner(kind, false)
	return LoadViewResult{State: StateFailed, Banner: &banner, Email: sess.Email}
}

func (c *Controller) fromCache(ctx context.Context, sess session.Session, maxAge time.Duration) (LoadViewResult, bool) {
	entry, ok := c.deps.Cache.Load(ctx, c.cfg.CacheKey, maxAge)
	if !ok {
		return LoadViewResult{}, false
	}
	var bookings []booking.Booking
	if err := json.Unmarshal(entry.Payload, &bookings); err != nil {
		slog.Error("cache_decode_failed", "key", c.cfg.CacheKey, "error", err)
		return LoadViewResult{}, false
	}
	return LoadViewResult{Bookings: bookings, FromCache: true, CachedAt: entry.Timestamp, Email: sess.Email}, true
}

// endSession clears the persisted session and drops the session's controllers.
func (c *Controller) endSession(ctx context.Context, reason string) LoadViewResult {
	if err := c.deps.Sessions.Clear(ctx, c.sessionID); err != nil {
		slog.Error("session_clear_failed", "session_id", c.sessionID, "error", err)
	}
	slog.Info("auth_event", "event", "session_ended", "session_id", c.sessionID, "view", c.cfg.Name, "reason", reason)
	if c.onEnd != nil {
		c.onEnd(c.sessionID)
	}
	return LoadViewResult{State: StateRedirect}
}

type controllerKey struct {
	sessionID string
	view      string
}

// ViewRegistry holds one Controller per view per console session.
type ViewRegistry struct {
	deps  ViewDeps
	views map[string]ViewConfig

	mu          sync.Mutex
	controllers map[controllerKey]*Controller
}

// NewViewRegistry creates a registry serving the given views.
func NewViewRegistry(deps ViewDeps, views ...ViewConfig) *ViewRegistry {
	r := &ViewRegistry{
		deps:        deps,
		views:       make(map[string]ViewConfig, len(views)),
		controllers: make(map[controllerKey]*Controller),
	}
	if r.deps.Windows == (cache.Windows{}) {
		r.deps.Windows = cache.DefaultWindows()
	}
	for _, v := range views {
		r.views[v.Name] = v
	}
	return r
}

// Controller returns the session's controller for view, creating it on first use.
// POST: Repeated calls with the same arguments return the same *Controller until Drop
func (r *ViewRegistry) Controller(sessionID, view string) (*Controller, error) {
	cfg, ok := r.views[view]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, view)
	}
	key := controllerKey{sessionID: sessionID, view: view}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ctrl, ok := r.controllers[key]; ok {
		return ctrl, nil
	}
	ctrl := newController(sessionID, cfg, &r.deps, r.Drop)
	r.controllers[key] = ctrl
	return ctrl, nil
}

// Drop discards every controller of a session.
func (r *ViewRegistry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.controllers {
		if key.sessionID == sessionID {
			delete(r.controllers, key)
		}
	}
}

// Sweep drops the controllers of sessions the store no longer holds.
// POST: Returns how many sessions were dropped; store errors keep the session's controllers
func (r *ViewRegistry) Sweep(ctx context.Context) int {
	r.mu.Lock()
	ids := make(map[string]struct{})
	for key := range r.controllers {
		ids[key.sessionID] = struct{}{}
	}
	r.mu.Unlock()

	dropped := 0
	for id := range ids {
		if _, err := r.deps.Sessions.Get(ctx, id); errors.Is(err, session.ErrNotFound) {
			r.Drop(id)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of live controllers.
func (r *ViewRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}
