// Package app assembles the sync pipeline from configuration: cache, proxy
// pool, rate limiter, fetcher, parsers, exclusion filter, stores, and the
// resolver on top.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"shelfsync/internal/api"
	"shelfsync/internal/cache/fs"
	"shelfsync/internal/clock/system"
	"shelfsync/internal/config"
	"shelfsync/internal/exclusion"
	"shelfsync/internal/fetch"
	"shelfsync/internal/parse"
	"shelfsync/internal/policy/ratelimit"
	"shelfsync/internal/proxy"
	"shelfsync/internal/resolver"
	"shelfsync/internal/scrape"
	"shelfsync/internal/store/memory"
	"shelfsync/internal/store/postgres"
	"shelfsync/internal/telemetry"
)

// staleLister lists entities whose last sync predates a cutoff. Only the
// Postgres ledger supports it.
type staleLister interface {
	StaleIDs(ctx context.Context, kind scrape.EntityKind, olderThan time.Time, source string, limit int) ([]string, error)
}

// App holds the assembled pipeline and its lifecycle hooks.
type App struct {
	Cfg      config.Config
	Logger   *zap.Logger
	Resolver *resolver.Resolver

	clock  scrape.Clock
	pool   *proxy.Pool
	dbPool *pgxpool.Pool
	stale  staleLister
}

// New builds the application from config.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	telemetry.Init()

	clock := system.New()

	addresses, err := loadProxyAddresses(cfg.Proxy.ListPath)
	if err != nil {
		return nil, err
	}
	pool := proxy.New(addresses, proxy.Config{
		MaxFailures:   cfg.Proxy.MaxFailures,
		Cooldown:      cfg.Proxy.Cooldown,
		BlockCooldown: cfg.Proxy.BlockCooldown,
	}, clock, logger)
	if cfg.Proxy.HealthPath != "" {
		if err := proxy.LoadHealth(cfg.Proxy.HealthPath, pool); err != nil {
			logger.Warn("proxy health restore failed", zap.Error(err))
		}
	}

	cache, err := fs.New(fs.Config{BaseDir: cfg.Cache.Dir})
	if err != nil {
		return nil, fmt.Errorf("init page cache: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		Interval:  cfg.RateLimit.Interval,
		JitterPct: cfg.RateLimit.JitterPct,
	})

	getter := fetch.NewCollyGetter(fetch.GetterConfig{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTP.Timeout,
	})
	fetcher := fetch.New(cache, pool, limiter, getter, fetch.Config{
		BaseURL:     cfg.Source.BaseURL,
		MaxAttempts: cfg.Fetch.MaxAttempts,
		BackoffBase: cfg.Fetch.BackoffBase,
		BackoffMax:  cfg.Fetch.BackoffMax,
	}, logger)

	filter, err := exclusion.New(cfg.Exclusions)
	if err != nil {
		return nil, fmt.Errorf("compile exclusion rules: %w", err)
	}

	a := &App{Cfg: cfg, Logger: logger, clock: clock, pool: pool}

	var (
		ledger scrape.Ledger
		store  scrape.Persister
	)
	if cfg.DB.DSN != "" {
		dbPool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return nil, err
		}
		pgLedger, err := postgres.NewLedger(dbPool)
		if err != nil {
			return nil, err
		}
		catalog, err := postgres.NewCatalog(dbPool)
		if err != nil {
			return nil, err
		}
		a.dbPool = dbPool
		a.stale = pgLedger
		ledger, store = pgLedger, catalog
	} else {
		logger.Warn("no database configured, using in-memory stores")
		ledger, store = memory.NewLedger(), memory.NewCatalog()
	}

	a.Resolver = resolver.New(fetcher, parse.Registry(), filter, ledger, store, clock, logger)
	return a, nil
}

// loadProxyAddresses reads the proxy list. With no list configured, a single
// empty address makes the pool hand out direct connections.
func loadProxyAddresses(path string) ([]string, error) {
	if path == "" {
		return []string{""}, nil
	}
	addresses, err := proxy.LoadList(path)
	if err != nil {
		return nil, fmt.Errorf("load proxy list: %w", err)
	}
	if len(addresses) == 0 {
		return nil, fmt.Errorf("proxy list %s is empty", path)
	}
	return addresses, nil
}

// StaleIDs lists identifiers of one kind whose last sync predates the cutoff.
func (a *App) StaleIDs(ctx context.Context, kind scrape.EntityKind, olderThan time.Time, source string, limit int) ([]string, error) {
	if a.stale == nil {
		return nil, errors.New("stale listing requires a configured database")
	}
	return a.stale.StaleIDs(ctx, kind, olderThan, source, limit)
}

// ServeOps runs the ops HTTP server until the context is canceled.
func (a *App) ServeOps(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Cfg.Server.Port),
		Handler:           api.NewServer(a.Logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("ops server started", zap.Int("port", a.Cfg.Server.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ops server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	}
}

// Close persists proxy health and releases resources.
func (a *App) Close() {
	if a.Cfg.Proxy.HealthPath != "" && a.pool != nil {
		if err := proxy.SaveHealth(a.Cfg.Proxy.HealthPath, a.pool, a.clock.Now()); err != nil {
			a.Logger.Warn("proxy health save failed", zap.Error(err))
		}
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
	_ = a.Logger.Sync()
}
