// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the steamgate server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/text/language"

	"steamgate/config"
	"steamgate/internal/cache"
	"steamgate/internal/catalog"
	"steamgate/internal/httpclient"
	"steamgate/internal/library"
	"steamgate/internal/server"
	"steamgate/internal/steam"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config     *config.Config
	catalog    *catalog.Result
	identities cache.IdentityCache
	steam      *steam.Client
	engine     *library.Engine
	server     *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app config is required")
	}

	app := &App{
		config: cfg,
	}

	// Catalog store on the configured database
	catalogResult, err := catalog.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}
	app.catalog = catalogResult

	// Vanity name cache
	identities, err := newIdentityCache(cfg.Cache)
	if err != nil {
		closeErr := app.catalog.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("failed to initialize identity cache: %w (also: catalog close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize identity cache: %w", err)
	}
	app.identities = identities

	locale, err := language.Parse(cfg.Steam.Locale)
	if err != nil {
		slog.Warn("invalid locale, falling back to English", "locale", cfg.Steam.Locale, "error", err)
		locale = language.English
	}

	httpCfg := httpclient.DefaultConfig().WithTimeouts(cfg.HTTP.Timeout, cfg.HTTP.ResponseHeaderTimeout)
	app.steam = steam.New(httpclient.NewHTTPClient(&httpCfg), steam.Config{
		APIKey:                 cfg.Steam.APIKey,
		APIURL:                 cfg.Steam.APIURL,
		StoreURL:               cfg.Steam.StoreURL,
		StoreRequestsPerSecond: cfg.Steam.StoreRequestsPerSecond,
	})

	resolver := steam.NewResolver(app.steam, identities)
	profiles := steam.NewProfiles(app.steam, resolver, locale)

	app.engine = library.NewEngine(resolver, app.steam, app.steam, app.catalog.Store, library.Config{
		StrictResolution:    cfg.Steam.StrictResolution,
		BackfillConcurrency: cfg.Steam.BackfillConcurrency,
		Locale:              locale,
	})

	app.logStartupInfo()

	app.server = server.New(server.Dependencies{
		Engine:           app.engine,
		Resolver:         resolver,
		Catalog:          app.catalog.Store,
		Apps:             app.steam,
		Profiles:         profiles,
		Upstream:         app.steam,
		StrictResolution: cfg.Steam.StrictResolution,
	}, &server.Config{
		BodySizeLimit:   cfg.Server.BodySizeLimit,
		CORSOrigins:     cfg.Server.CORSOrigins,
		MetricsEnabled:  cfg.Server.MetricsEnabled,
		MetricsEndpoint: cfg.Server.MetricsEndpoint,
		RequestTimeout:  cfg.Server.RequestTimeout,
	})

	return app, nil
}

// newIdentityCache builds the vanity cache selected by cfg.Type.
func newIdentityCache(cfg config.CacheConfig) (cache.IdentityCache, error) {
	switch cfg.Type {
	case config.CacheRedis:
		c, err := cache.NewRedisCache(cache.RedisConfig{
			URL:       cfg.Redis.URL,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.TTL,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.CacheLocal, "":
		c, err := cache.NewLocalCache(cfg.Local.Path, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}

// Engine returns the common-library engine.
func (a *App) Engine() *library.Engine {
	return a.engine
}

// Handler returns the HTTP handler serving the gateway routes.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order.
// Order:
// 1. HTTP server shutdown via server.Shutdown(ctx), honoring the passed context timeout/cancellation.
// 2. Identity cache close (flushes the local file or drops the Redis pool).
// 3. Catalog store and its database connection.
//
// Shutdown is idempotent and safe for repeated calls; after the first call, subsequent calls are no-ops.
// It attempts every close step, aggregates failures, and returns a joined error if any step fails.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	// 1. Shutdown HTTP server first (stop accepting new requests)
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	// 2. Close the identity cache
	if a.identities != nil {
		if err := a.identities.Close(); err != nil {
			slog.Error("identity cache close error", "error", err)
			errs = append(errs, fmt.Errorf("identity cache close: %w", err))
		}
	}

	// 3. Close the catalog (store, then storage)
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			slog.Error("catalog close error", "error", err)
			errs = append(errs, fmt.Errorf("catalog close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	if cfg.Steam.APIKey == "" {
		slog.Warn("STEAM_API_KEY not set - Steam Web API calls will be rejected upstream")
	}

	if cfg.Server.MetricsEnabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Server.MetricsEndpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	slog.Info("storage configured", "type", cfg.Storage.Type)
	slog.Info("identity cache configured", "type", cfg.Cache.Type, "ttl", cfg.Cache.TTL)
	slog.Info("steam client configured",
		"api_url", cfg.Steam.APIURL,
		"store_url", cfg.Steam.StoreURL,
		"strict_resolution", cfg.Steam.StrictResolution,
		"backfill_concurrency", cfg.Steam.BackfillConcurrency,
		"store_requests_per_second", cfg.Steam.StoreRequestsPerSecond,
		"locale", cfg.Steam.Locale,
	)
}
