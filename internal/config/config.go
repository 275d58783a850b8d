package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"courtadmin/internal/domain/cache"
)

// Prefix is the environment variable prefix (COURTADMIN_API_URL, ...).
const Prefix = "COURTADMIN"

// Config holds every runtime setting of the console.
type Config struct {
	Env      string `envconfig:"ENV" default:"development"`
	Addr     string `envconfig:"ADDR" default:":8080"`
	DBPath   string `envconfig:"DB_PATH" default:"courtadmin.db"`
	APIURL   string `envconfig:"API_URL" default:"http://localhost:3000"`
	Timezone string `envconfig:"TIMEZONE" default:"Africa/Cairo"`
	Currency string `envconfig:"CURRENCY" default:"EGP"`

	// CourtPrices is "padel:400,tennis:150".
	CourtPrices string `envconfig:"COURT_PRICES" default:"padel:400,tennis:150"`

	SecretKey string `envconfig:"SECRET_KEY"` // 64 hex chars, seals API tokens at rest
	CSRFKey   string `envconfig:"CSRF_KEY"`   // 64 hex chars

	DashboardTimeout    time.Duration `envconfig:"DASHBOARD_TIMEOUT" default:"10s"`
	HistoryTimeout      time.Duration `envconfig:"HISTORY_TIMEOUT" default:"15s"`
	MaxRetries          int           `envconfig:"MAX_RETRIES" default:"3"`
	RetryBaseDelay      time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s"`
	BreakerThreshold    int           `envconfig:"BREAKER_THRESHOLD" default:"5"`
	BreakerCooldown     time.Duration `envconfig:"BREAKER_COOLDOWN" default:"5m"`
	CacheFreshWindow    time.Duration `envconfig:"CACHE_FRESH_WINDOW" default:"5m"`
	CacheOfflineWindow  time.Duration `envconfig:"CACHE_OFFLINE_WINDOW" default:"1h"`
	CacheFallbackWindow time.Duration `envconfig:"CACHE_FALLBACK_WINDOW" default:"24h"`
	ProbeInterval       time.Duration `envconfig:"PROBE_INTERVAL" default:"15s"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	ResendKey   string `envconfig:"RESEND_KEY"`
	ResendFrom  string `envconfig:"RESEND_FROM" default:"Court Admin <noreply@courtadmin.local>"`
	OutboxEvery time.Duration `envconfig:"OUTBOX_INTERVAL" default:"1m"`

	SessionMaxAge  time.Duration `envconfig:"SESSION_MAX_AGE" default:"168h"`
	AuditRetention time.Duration `envconfig:"AUDIT_RETENTION" default:"2160h"`
	TrustedOrigins []string      `envconfig:"TRUSTED_ORIGINS"` // host[:port] entries allowed to post cross-origin

	RateLimitPerSecond int `envconfig:"RATE_LIMIT" default:"20"`
	SlowRequestMs      int `envconfig:"SLOW_REQUEST_MS" default:"200"`
	SlowQueryMs        int `envconfig:"SLOW_QUERY_MS" default:"50"`
}

// Load reads an optional .env file and then the environment.
// PRE: envFiles may name files that do not exist
// POST: Returns a validated Config or an error naming the bad setting
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err == nil {
			slog.Info("config_env_file_loaded", "file", f)
		}
	}

	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("COURTADMIN_API_URL is required")
	}
	if c.MaxRetries < 1 {
		return errors.New("COURTADMIN_MAX_RETRIES must be at least 1")
	}
	if c.BreakerThreshold < 1 {
		return errors.New("COURTADMIN_BREAKER_THRESHOLD must be at least 1")
	}
	if c.OutboxEvery <= 0 {
		return errors.New("COURTADMIN_OUTBOX_INTERVAL must be positive")
	}
	if c.CacheFreshWindow > c.CacheFallbackWindow {
		return errors.New("COURTADMIN_CACHE_FRESH_WINDOW must not exceed the fallback window")
	}
	if _, err := ParsePrices(c.CourtPrices); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("COURTADMIN_TIMEZONE: %w", err)
	}
	if c.IsProduction() && (c.SecretKey == "" || c.CSRFKey == "") {
		return errors.New("COURTADMIN_SECRET_KEY and COURTADMIN_CSRF_KEY are required in production")
	}
	return nil
}

// IsProduction reports whether the console runs in production mode.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Location returns the business time zone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Prices returns the parsed court price table.
func (c Config) Prices() map[string]float64 {
	p, err := ParsePrices(c.CourtPrices)
	if err != nil {
		return nil
	}
	return p
}

// Windows returns the cache read windows.
func (c Config) Windows() cache.Windows {
	return cache.Windows{
		Fresh:    c.CacheFreshWindow,
		Offline:  c.CacheOfflineWindow,
		Fallback: c.CacheFallbackWindow,
	}
}

// ParsePrices parses "padel:400,tennis:150" into a lowercase court-type table.
func ParsePrices(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		court, amount, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("COURTADMIN_COURT_PRICES: %q is not court:price", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("COURTADMIN_COURT_PRICES: bad price for %q", court)
		}
		out[strings.ToLower(strings.TrimSpace(court))] = v
	}
	return out, nil
}
