package orchestrators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtadmin/internal/application/fetchpolicy"
	"courtadmin/internal/domain/booking"
	"courtadmin/internal/domain/cache"
	"courtadmin/internal/domain/failure"
	"courtadmin/internal/domain/session"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]session.Session
	cleared  []string
}

func (f *fakeSessions) Get(_ context.Context, id string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessions) Clear(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	f.cleared = append(f.cleared, id)
	return nil
}

func (f *fakeSessions) Record(_ context.Context, email, token string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := session.Session{ID: "sess-new", Email: email, Token: token, LoginTime: time.Now()}
	f.sessions[s.ID] = s
	return s, nil
}

type fakeNetwork struct{ online bool }

func (f *fakeNetwork) Online() bool { return f.online }

type fakeCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]cache.Entry
	saves   int
}

func (f *fakeCache) Save(_ context.Context, key string, data []byte, requestedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := cache.Entry{Key: key, Payload: data, Timestamp: f.now(), RequestedAt: requestedAt}
	if old, ok := f.entries[key]; ok && !e.Supersedes(old) {
		return
	}
	f.entries[key] = e
	f.saves++
}

func (f *fakeCache) Load(_ context.Context, key string, maxAge time.Duration) (cache.Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	if !ok || !e.Usable(f.now(), maxAge) {
		return cache.Entry{}, false
	}
	return e, true
}

func (f *fakeCache) seed(key string, bs []booking.Booking, at time.Time) {
	payload, _ := json.Marshal(bs)
	f.entries[key] = cache.Entry{Key: key, Payload: payload, Timestamp: at, RequestedAt: at}
}

type fakeFetcher struct {
	mu       sync.Mutex
	calls    int
	overview func(call int) ([]booking.Raw, error)
}

func (f *fakeFetcher) Overview(_ context.Context, _ string) ([]booking.Raw, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	return f.overview(n)
}

func (f *fakeFetcher) History(ctx context.Context, token string) ([]booking.Raw, error) {
	return f.Overview(ctx, token)
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type viewFixture struct {
	clock    *testClock
	sessions *fakeSessions
	network  *fakeNetwork
	cache    *fakeCache
	api      *fakeFetcher
	registry *ViewRegistry
}

func newViewFixture(t *testing.T) *viewFixture {
	t.Helper()
	clk := &testClock{t: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
	f := &viewFixture{
		clock: clk,
		sessions: &fakeSessions{sessions: map[string]session.Session{
			"s1": {ID: "s1", Email: "admin@club.example", Token: "opaque-token", LoginTime: clk.now().Add(-time.Hour)},
			"s2": {ID: "s2", Email: "other@club.example", Token: "opaque-token-2", LoginTime: clk.now().Add(-time.Hour)},
		}},
		network: &fakeNetwork{online: true},
		cache:   &fakeCache{now: clk.now, entries: map[string]cache.Entry{}},
		api: &fakeFetcher{overview: func(int) ([]booking.Raw, error) {
			return []booking.Raw{{"id": "b1", "courtType": "Padel", "status": "CONFIRMED"}}, nil
		}},
	}
	opts := fetchpolicy.Options{MaxRetries: 3, BaseDelay: time.Second}
	f.registry = NewViewRegistry(ViewDeps{
		Sessions:   f.sessions,
		Network:    f.network,
		Cache:      f.cache,
		Normalizer: booking.NewNormalizer(nil, time.UTC),
		Windows:    cache.DefaultWindows(),
		Now:        clk.now,
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}, DashboardView(f.api, opts), HistoryView(f.api, opts))
	return f
}

func (f *viewFixture) load(t *testing.T, refresh bool) LoadViewResult {
	t.Helper()
	res, err := ExecuteLoadView(context.Background(), LoadViewInput{SessionID: "s1", View: ViewDashboard, Refresh: refresh}, LoadViewDeps{Registry: f.registry})
	require.NoError(t, err)
	return res
}

var cachedBookings = []booking.Booking{{ID: "cached-1", CourtType: booking.CourtTennis, Price: 150, Status: booking.StatusPaid}}

// TestLoadView_SuccessNormalizesAndCaches verifies a fetch is normalized, cached and Ready.
func TestLoadView_SuccessNormalizesAndCaches(t *testing.T) {
	f := newViewFixture(t)

	res := f.load(t, false)

	require.Equal(t, StateReady, res.State)
	assert.False(t, res.FromCache)
	require.Len(t, res.Bookings, 1)
	assert.Equal(t, float64(400), res.Bookings[0].Price)
	assert.Equal(t, booking.StatusConfirmed, res.Bookings[0].Status)
	assert.Equal(t, "admin@club.example", res.Email)
	assert.Nil(t, res.Banner)
	assert.Equal(t, 1, f.cache.saves)

	ctrl, err := f.registry.Controller("s1", ViewDashboard)
	require.NoError(t, err)
	assert.Equal(t, StateReady, ctrl.State())
}

// TestLoadView_FreshCacheHit verifies a fresh entry short-circuits the fetch unless refreshing.
func TestLoadView_FreshCacheHit(t *testing.T) {
	f := newViewFixture(t)
	f.cache.seed(cache.KeyDashboardOverview, cachedBookings, f.clock.now().Add(-2*time.Minute))

	res := f.load(t, false)
	assert.Equal(t, StateReady, res.State)
	assert.True(t, res.FromCache)
	assert.Equal(t, "cached-1", res.Bookings[0].ID)
	assert.Zero(t, f.api.Calls())

	res = f.load(t, true)
	assert.Equal(t, StateReady, res.State)
	assert.False(t, res.FromCache)
	assert.Equal(t, 1, f.api.Calls())
}

// TestLoadView_UnauthorizedClearsSessionWithoutRetry verifies a 401 forces logout after one call.
func TestLoadView_UnauthorizedClearsSessionWithoutRetry(t *testing.T) {
	f := newViewFixture(t)
	f.api.overview = func(int) ([]booking.Raw, error) {
		return nil, &failure.StatusError{Code: http.StatusUnauthorized, Path: "/admin/overview"}
	}
	f.cache.seed(cache.KeyDashboardOverview, cachedBookings, f.clock.now().Add(-time.Hour))

	res := f.load(t, true)

	assert.True(t, res.Redirected())
	assert.Empty(t, res.Bookings, "redirect pre-empts any cached data")
	assert.Equal(t, 1, f.api.Calls())
	assert.Equal(t, []string{"s1"}, f.sessions.cleared)
	assert.Zero(t, f.registry.Len(), "controllers dropped with the session")
}

// TestLoadView_InvalidSessionRedirects verifies expired and missing sessions never reach the API.
func TestLoadView_InvalidSessionRedirects(t *testing.T) {
	f := newViewFixture(t)
	s := f.sessions.sessions["s1"]
	s.LoginTime = f.clock.now().Add(-25 * time.Hour)
	f.sessions.sessions["s1"] = s

	res := f.load(t, false)
	assert.True(t, res.Redirected())
	assert.Zero(t, f.api.Calls())
	assert.Equal(t, []string{"s1"}, f.sessions.cleared)

	res = f.load(t, false)
	assert.True(t, res.Redirected(), "a cleared session stays logged out")
}

// TestLoadView_OfflineServesOfflineWindow verifies a 10-minute-old entry is shown in offline mode.
func TestLoadView_OfflineServesOfflineWindow(t *testing.T) {
	f := newViewFixture(t)
	f.network.online = false
	f.cache.seed(cache.KeyDashboardOverview, cachedBookings, f.clock.now().Add(-10*time.Minute))

	res := f.load(t, false)

	require.Equal(t, StateDegraded, res.State)
	require.NotNil(t, res.Banner)
	assert.Equal(t, "offline mode", res.Banner.Label)
	assert.True(t, res.FromCache)
	assert.Equal(t, "cached-1", res.Bookings[0].ID)
	assert.Zero(t, f.api.Calls())
}

// TestLoadView_OfflineWithoutCacheFails verifies an old entry outside the offline window is not used.
func TestLoadView_OfflineWithoutCacheFails(t *testing.T) {
	f := newViewFixture(t)
	f.network.online = false
	f.cache.seed(cache.KeyDashboardOverview, cachedBookings, f.clock.now().Add(-2*time.Hour))

	res := f.load(t, false)

	assert.Equal(t, StateFailed, res.State)
	require.NotNil(t, res.Banner)
	assert.Equal(t, failure.KindNetwork, res.Banner.Kind)
	assert.Empty(t, res.Bookings)
}

// TestLoadView_FailureFallsBackToStaleCache verifies a failed fetch serves the 24h fallback window.
func TestLoadView_FailureFallsBackToStaleCache(t *testing.T) {
	f := newViewFixture(t)
	f.api.overview = func(int) ([]booking.Raw, error) {
		return nil, &failure.StatusError{Code: http.StatusBadGateway, Path: "/admin/overview"}
	}
	f.cache.seed(cache.KeyDashboardOverview, cachedBookings, f.clock.now().Add(-3*time.Hour))

	res := f.load(t, false)

	require.Equal(t, StateDegraded, res.State)
	assert.Equal(t, "server error", res.Banner.Label)
	assert.Equal(t, 3, f.api.Calls(), "server errors are retried")
	assert.Equal(t, 1, mustController(t, f).Breaker().Snapshot().Count)
}

// TestLoadView_TimeoutFailsWithBanner verifies an abandoned attempt yields the timeout banner.
func TestLoadView_TimeoutFailsWithBanner(t *testing.T) {
	f := newViewFixture(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	f.api.overview = func(int) ([]booking.Raw, error) {
		<-release
		return nil, nil
	}
	ctrl := mustController(t, f)
	ctrl.cfg.Options = fetchpolicy.Options{Timeout: 10 * time.Millisecond, MaxRetries: 1}

	res, err := ctrl.Load(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, failure.KindTimeout, res.Banner.Kind)
	assert.Zero(t, f.cache.saves, "abandoned attempts never reach the cache")
}

// TestLoadView_CircuitOpensAfterThreshold verifies the sixth load skips the network and uses the fallback.
func TestLoadView_CircuitOpensAfterThreshold(t *testing.T) {
	f := newViewFixture(t)
	f.api.overview = func(int) ([]booking.Raw, error) {
		return nil, failure.ErrOffline
	}
	ctrl := mustController(t, f)
	ctrl.cfg.Options = fetchpolicy.Options{MaxRetries: 1}

	for i := 0; i < fetchpolicy.DefaultThreshold; i++ {
		res, err := ctrl.Load(context.Background(), true)
		require.NoError(t, err)
		assert.Equal(t, StateFailed, res.State)
		f.clock.advance(10 * time.Second)
	}
	require.Equal(t, fetchpolicy.DefaultThreshold, f.api.Calls())

	f.cache.seed(cache.KeyDashboardOverview, cachedBookings, f.clock.now().Add(-6*time.Hour))
	res, err := ctrl.Load(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, StateDegraded, res.State)
	assert.Equal(t, "too many failures", res.Banner.Label)
	assert.Equal(t, fetchpolicy.DefaultThreshold, f.api.Calls(), "no network attempt while open")

	f.clock.advance(fetchpolicy.DefaultCooldown)
	f.api.overview = func(int) ([]booking.Raw, error) { return nil, nil }
	res, err = ctrl.Load(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, StateReady, res.State)
	assert.Zero(t, ctrl.Breaker().Snapshot().Count)
}

// TestLoadView_CancelledRequestsDoNotTripBreaker verifies loads the caller abandons are not API failures.
func TestLoadView_CancelledRequestsDoNotTripBreaker(t *testing.T) {
	f := newViewFixture(t)
	healthy := f.api.overview
	f.api.overview = func(int) ([]booking.Raw, error) {
		return nil, fmt.Errorf("get overview: %w", context.Canceled)
	}
	ctrl := mustController(t, f)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < fetchpolicy.DefaultThreshold+1; i++ {
		res, err := ctrl.Load(ctx, true)
		require.NoError(t, err)
		assert.NotEqual(t, StateRedirect, res.State)
	}
	assert.Zero(t, ctrl.Breaker().Snapshot().Count)

	f.api.overview = healthy
	calls := f.api.Calls()
	res, err := ctrl.Load(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, StateReady, res.State)
	assert.Nil(t, res.Banner)
	assert.Equal(t, calls+1, f.api.Calls())
}

// TestViewRegistry_SweepDropsEndedSessions verifies controllers of purged sessions are released.
func TestViewRegistry_SweepDropsEndedSessions(t *testing.T) {
	f := newViewFixture(t)
	for _, id := range []string{"s1", "s2"} {
		_, err := f.registry.Controller(id, ViewDashboard)
		require.NoError(t, err)
	}
	_, err := f.registry.Controller("s1", ViewHistory)
	require.NoError(t, err)

	assert.Zero(t, f.registry.Sweep(context.Background()))
	assert.Equal(t, 3, f.registry.Len())

	f.sessions.mu.Lock()
	delete(f.sessions.sessions, "s1")
	f.sessions.mu.Unlock()

	assert.Equal(t, 1, f.registry.Sweep(context.Background()))
	assert.Equal(t, 1, f.registry.Len())
	_, err = f.registry.Controller("s2", ViewDashboard)
	require.NoError(t, err)
	assert.Equal(t, 1, f.registry.Len())
}

// TestViewRegistry_ControllerPerSessionAndView verifies breakers are not shared between sessions.
func TestViewRegistry_ControllerPerSessionAndView(t *testing.T) {
	f := newViewFixture(t)

	a, err := f.registry.Controller("s1", ViewDashboard)
	require.NoError(t, err)
	again, err := f.registry.Controller("s1", ViewDashboard)
	require.NoError(t, err)
	hist, err := f.registry.Controller("s1", ViewHistory)
	require.NoError(t, err)
	other, err := f.registry.Controller("s2", ViewDashboard)
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, hist)
	assert.NotSame(t, a, other)
	assert.NotSame(t, a.Breaker(), other.Breaker())
	assert.Equal(t, 3, f.registry.Len())

	f.registry.Drop("s1")
	assert.Equal(t, 1, f.registry.Len())

	_, err = f.registry.Controller("s1", "reports")
	assert.ErrorIs(t, err, ErrUnknownView)
}

func mustController(t *testing.T, f *viewFixture) *Controller {
	t.Helper()
	ctrl, err := f.registry.Controller("s1", ViewDashboard)
	require.NoError(t, err)
	return ctrl
}
