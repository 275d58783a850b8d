package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"courtadmin/internal/adapters/api"
	emailPkg "courtadmin/internal/adapters/email"
	web "courtadmin/internal/adapters/http"
	"courtadmin/internal/adapters/http/perf"
	"courtadmin/internal/adapters/netmon"
	"courtadmin/internal/adapters/storage"
	auditStorePkg "courtadmin/internal/adapters/storage/audit"
	cacheStore "courtadmin/internal/adapters/storage/cache"
	outboxStorePkg "courtadmin/internal/adapters/storage/outbox"
	sessionStorePkg "courtadmin/internal/adapters/storage/session"
	"courtadmin/internal/application/fetchpolicy"
	"courtadmin/internal/application/orchestrators"
	"courtadmin/internal/config"
	"courtadmin/internal/domain/booking"
	outboxDomain "courtadmin/internal/domain/outbox"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

const shutdownGrace = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("server_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	setupLogger(cfg)

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	if err := storage.MigrateDB(db, cfg.DBPath); err != nil {
		return err
	}

	collector := perf.NewCollector(perf.DefaultRingSize)
	timedDB := storage.NewTimedDB(db, collector, cfg.SlowQueryMs)

	sealer, err := newSealer(cfg)
	if err != nil {
		return err
	}
	sessions := sessionStorePkg.NewSQLiteStore(timedDB, sealer)
	outboxStore := outboxStorePkg.NewSQLiteStore(timedDB)
	auditStore := auditStorePkg.NewSQLiteStore(timedDB)

	var responseCache cacheStore.Store = cacheStore.NewSQLiteStore(timedDB)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis_unreachable", "addr", cfg.RedisAddr, "error", err)
		}
		responseCache = cacheStore.NewRedisStore(rdb)
		slog.Info("cache_backend", "backend", "redis", "addr", cfg.RedisAddr)
	} else {
		slog.Info("cache_backend", "backend", "sqlite")
	}

	client := api.NewClient(cfg.APIURL, &http.Client{}, collector)
	monitor := netmon.New(true)
	prober := netmon.HTTPProber{URL: cfg.APIURL}

	registry := orchestrators.NewViewRegistry(orchestrators.ViewDeps{
		Sessions:         sessions,
		Network:          monitor,
		Cache:            responseCache,
		Normalizer:       booking.NewNormalizer(cfg.Prices(), cfg.Location()),
		Windows:          cfg.Windows(),
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
	},
		orchestrators.DashboardView(client, fetchpolicy.Options{
			Timeout:    cfg.DashboardTimeout,
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryBaseDelay,
		}),
		orchestrators.HistoryView(client, fetchpolicy.Options{
			Timeout:    cfg.HistoryTimeout,
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryBaseDelay,
		}),
	)

	sender := newSender(cfg)
	processor := orchestrators.NewOutboxProcessor(outboxStore, map[string]orchestrators.ActionExecutor{
		outboxDomain.ActionTypeReportEmail: orchestrators.ReportEmailExecutor{Sender: sender},
	})

	csrfKey, err := web.LoadCSRFKey(cfg.CSRFKey, cfg.IsProduction())
	if err != nil {
		return err
	}

	handler := web.NewMux(web.Deps{
		API:                client,
		Sessions:           sessions,
		Registry:           registry,
		Network:            monitor,
		OutboxStore:        outboxStore,
		Outbox:             processor,
		EmailSender:        sender,
		EmailFrom:          cfg.ResendFrom,
		Audit:              auditStore,
		Collector:          collector,
		DB:                 timedDB,
		Location:           cfg.Location(),
		Currency:           cfg.Currency,
		SchemaVersion:      storage.LatestSchemaVersion(),
		CSRFKey:            csrfKey,
		TrustedOrigins:     cfg.TrustedOrigins,
		Secure:             cfg.IsProduction(),
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		SlowRequestMs:      cfg.SlowRequestMs,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server_starting", "version", version, "addr", cfg.Addr, "env", cfg.Env,
			"api_url", cfg.APIURL, "schema", storage.LatestSchemaVersion())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		slog.Info("server_stopping")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return monitor.Run(ctx, prober, cfg.ProbeInterval)
	})
	g.Go(func() error {
		return orchestrators.RunOutboxWorker(ctx, processor, cfg.OutboxEvery)
	})
	g.Go(func() error {
		return purgeLoop(ctx, "sessions", func(ctx context.Context, cutoff time.Time) (int64, error) {
			n, err := sessions.PurgeBefore(ctx, cutoff)
			if err == nil && n > 0 {
				if dropped := registry.Sweep(ctx); dropped > 0 {
					slog.Info("view_controllers_dropped", "sessions", dropped)
				}
			}
			return n, err
		}, cfg.SessionMaxAge)
	})
	g.Go(func() error {
		return purgeLoop(ctx, "audit_events", auditStore.PurgeBefore, cfg.AuditRetention)
	})

	return g.Wait()
}

func setupLogger(cfg config.Config) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func newSealer(cfg config.Config) (*sessionStorePkg.Sealer, error) {
	if cfg.SecretKey != "" {
		return sessionStorePkg.NewSealer(cfg.SecretKey)
	}
	slog.Warn("secret_key_random", "hint", "sessions won't survive a restart; set COURTADMIN_SECRET_KEY")
	return sessionStorePkg.NewEphemeralSealer()
}

func newSender(cfg config.Config) emailPkg.Sender {
	if cfg.ResendKey != "" {
		slog.Info("email_sender", "provider", "resend")
		return emailPkg.NewResendSender(cfg.ResendKey, cfg.ResendFrom)
	}
	if cfg.IsProduction() {
		slog.Warn("email_sender", "provider", "noop", "hint", "COURTADMIN_RESEND_KEY is not set; report mail is disabled")
	} else {
		slog.Info("email_sender", "provider", "noop")
	}
	return emailPkg.NewNoopSender()
}

// purgeLoop deletes rows older than maxAge once an hour until ctx is done.
func purgeLoop(ctx context.Context, what string, purge func(context.Context, time.Time) (int64, error), maxAge time.Duration) error {
	if maxAge <= 0 {
		return nil
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := purge(ctx, time.Now().Add(-maxAge))
			if err != nil {
				slog.Error("purge_failed", "table", what, "error", err)
				continue
			}
			if n > 0 {
				slog.Info("purged", "table", what, "count", n)
			}
		}
	}
}
