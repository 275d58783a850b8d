package browser_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/playwright-community/playwright-go"

	"courtadmin/internal/adapters/api"
	"courtadmin/internal/adapters/email"
	web "courtadmin/internal/adapters/http"
	"courtadmin/internal/adapters/http/perf"
	"courtadmin/internal/adapters/netmon"
	"courtadmin/internal/adapters/storage"
	cacheStore "courtadmin/internal/adapters/storage/cache"
	outboxStore "courtadmin/internal/adapters/storage/outbox"
	sessionStore "courtadmin/internal/adapters/storage/session"
	"courtadmin/internal/application/fetchpolicy"
	"courtadmin/internal/application/orchestrators"
	"courtadmin/internal/domain/booking"
	outboxDomain "courtadmin/internal/domain/outbox"
)

const (
	adminEmail    = "admin@club.test"
	adminPassword = "TestPass123!"
)

// fakeBookingAPI is an httptest stand-in for the remote booking server.
type fakeBookingAPI struct {
	server   *httptest.Server
	token    string
	expire   atomic.Bool // answer 401 to collection reads
	bookings []map[string]any
}

func newFakeBookingAPI(t *testing.T) *fakeBookingAPI {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   adminEmail,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	}).SignedString([]byte("browser-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	today := time.Now().Format("2006-01-02")
	f := &fakeBookingAPI{
		token: tok,
		bookings: []map[string]any{
			{"id": "b1", "customerName": "Omar Adel", "courtType": "padel", "date": today, "time": "18:00", "price": 400, "status": "confirmed"},
			{"id": "b2", "customerName": "Sara Nabil", "courtType": "tennis", "date": today, "time": "10:00", "price": 150, "status": "paid"},
			{"id": "b3", "customerName": "Karim Samy", "courtType": "padel", "date": today, "time": "20:00", "price": 400, "status": "cancelled"},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email != adminEmail || body.Password != adminPassword {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": f.token})
	})
	collection := func(w http.ResponseWriter, r *http.Request) {
		if f.expire.Load() || r.Header.Get("Authorization") != "Bearer "+f.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"bookings": f.bookings})
	}
	mux.HandleFunc("GET /admin/overview", collection)
	mux.HandleFunc("GET /admin/history", collection)
	mux.HandleFunc("HEAD /{$}", func(w http.ResponseWriter, r *http.Request) {})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// testApp holds the running console and Playwright handles.
type testApp struct {
	BaseURL string
	API     *fakeBookingAPI
	Sender  *email.NoopSender
	PW      *playwright.Playwright
	Browser playwright.Browser
}

// newTestApp wires the console against a fake booking API and a temp SQLite file, then starts Chromium.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	fake := newFakeBookingAPI(t)

	dbPath := t.TempDir() + "/console.db"
	db, err := storage.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.MigrateDB(db, dbPath); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	collector := perf.NewCollector(perf.DefaultRingSize)
	tdb := storage.NewTimedDB(db, collector, 0)
	sealer, err := sessionStore.NewEphemeralSealer()
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	sessions := sessionStore.NewSQLiteStore(tdb, sealer)
	outbox := outboxStore.NewSQLiteStore(tdb)
	client := api.NewClient(fake.server.URL, fake.server.Client(), collector)
	monitor := netmon.New(true)
	sender := email.NewNoopSender()

	opts := fetchpolicy.Options{Timeout: 5 * time.Second, MaxRetries: 2, BaseDelay: 50 * time.Millisecond}
	registry := orchestrators.NewViewRegistry(orchestrators.ViewDeps{
		Sessions:   sessions,
		Network:    monitor,
		Cache:      cacheStore.NewSQLiteStore(tdb),
		Normalizer: booking.NewNormalizer(map[string]float64{"padel": 400, "tennis": 150}, time.Local),
	}, orchestrators.DashboardView(client, opts), orchestrators.HistoryView(client, opts))

	processor := orchestrators.NewOutboxProcessor(outbox, map[string]orchestrators.ActionExecutor{
		outboxDomain.ActionTypeReportEmail: orchestrators.ReportEmailExecutor{Sender: sender},
	})

	srv := httptest.NewUnstartedServer(nil)
	origin := srv.Listener.Addr().String()
	srv.Config.Handler = web.NewMux(web.Deps{
		API:                client,
		Sessions:           sessions,
		Registry:           registry,
		Network:            monitor,
		OutboxStore:        outbox,
		Outbox:             processor,
		EmailSender:        sender,
		EmailFrom:          "Court Admin <noreply@club.test>",
		Collector:          collector,
		DB:                 tdb,
		Location:           time.Local,
		Currency:           "EGP",
		SchemaVersion:      storage.LatestSchemaVersion(),
		CSRFKey:            bytes.Repeat([]byte("b"), 32),
		TrustedOrigins:     []string{origin},
		RateLimitPerSecond: 1000,
	})
	srv.Start()
	t.Cleanup(srv.Close)

	pw, err := playwright.Run()
	if err != nil {
		t.Fatalf("failed to start Playwright: %v", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		t.Fatalf("failed to launch browser: %v", err)
	}
	t.Cleanup(func() {
		browser.Close()
		pw.Stop()
	})

	return &testApp{
		BaseURL: srv.URL,
		API:     fake,
		Sender:  sender,
		PW:      pw,
		Browser: browser,
	}
}

// newPage creates a new browser page (tab).
func (a *testApp) newPage(t *testing.T) playwright.Page {
	t.Helper()
	page, err := a.Browser.NewPage()
	if err != nil {
		t.Fatalf("failed to create page: %v", err)
	}
	t.Cleanup(func() { page.Close() })
	return page
}

// login signs in through the form and waits for the dashboard.
func (a *testApp) login(t *testing.T, page playwright.Page) {
	t.Helper()
	if _, err := page.Goto(a.BaseURL + "/login"); err != nil {
		t.Fatalf("failed to navigate to login: %v", err)
	}
	if err := page.Locator("input[name=email]").Fill(adminEmail); err != nil {
		t.Fatalf("failed to fill email: %v", err)
	}
	if err := page.Locator("input[name=password]").Fill(adminPassword); err != nil {
		t.Fatalf("failed to fill password: %v", err)
	}
	if err := page.Locator("[data-testid=login-submit]").Click(); err != nil {
		t.Fatalf("failed to click login: %v", err)
	}
	if err := page.WaitForURL(a.BaseURL+"/dashboard", playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(10000),
	}); err != nil {
		t.Fatalf("login did not redirect to dashboard: %v", err)
	}
}

// path returns the URL path of the page's current location.
func path(t *testing.T, page playwright.Page) string {
	t.Helper()
	u, err := url.Parse(page.URL())
	if err != nil {
		t.Fatalf("parse page url: %v", err)
	}
	return u.Path
}
