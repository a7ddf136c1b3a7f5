package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gorm.io/gorm"

	"savoro/internal/cache"
	"savoro/internal/config"
	"savoro/internal/db"
	"savoro/internal/db/mock"
	applog "savoro/internal/log"
	"savoro/internal/server"
	"savoro/internal/storage"
)

// serverLifecycle is the part of the HTTP server main cares about.
type serverLifecycle interface {
	Start() error
	Stop() error
}

// Seams for the process-level tests; production always uses the real
// implementations below.
var (
	loadConfigFunc      = config.Load
	setLogLevelFunc     = applog.SetLevel
	newMockDatabaseFunc = mock.New
	configureDatabase   = db.Configure
	seedLookupsFunc     = mock.SeedLookups
	openCacheFunc       = cache.Open
	newStorageFunc      = func(cfg config.StorageConfig) (*storage.Local, error) {
		return storage.NewLocal(cfg)
	}
	newServerFunc = func(cfg server.Config) (serverLifecycle, error) {
		return server.New(cfg)
	}
	subscribeShutdownSig = func() (<-chan os.Signal, func()) {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		return sigCh, func() { signal.Stop(sigCh) }
	}
)

func main() {
	os.Exit(run(context.Background()))
}

func run(ctx context.Context) int {
	cfg, err := loadConfigFunc()
	if err != nil {
		applog.Error(ctx, "failed to load configuration", "error", err)
		return 1
	}

	if err := setLogLevelFunc(cfg.Logging.Level); err != nil {
		applog.Error(ctx, "invalid log level", "error", err, "level", cfg.Logging.Level)
		return 1
	}

	var database *gorm.DB
	if cfg.Database.UseMock || cfg.Database.URL == "" {
		applog.Info(ctx, "using in-memory mock database")
		database, err = newMockDatabaseFunc(ctx)
		if err != nil {
			applog.Error(ctx, "failed to initialize mock database", "error", err)
			return 1
		}
	} else {
		database, err = configureDatabase(cfg.Database)
		if err != nil {
			applog.Error(ctx, "failed to initialize database", "error", err)
			return 1
		}
		if err := seedLookupsFunc(ctx, database); err != nil {
			applog.Error(ctx, "failed to seed lookup tables", "error", err)
			return 1
		}
	}

	badgerStore, err := openCacheFunc(cfg.Cache)
	if err != nil {
		applog.Error(ctx, "failed to open cache", "error", err)
		return 1
	}
	var store cache.Store
	if badgerStore != nil {
		store = badgerStore
		defer func() {
			if err := badgerStore.Close(); err != nil {
				applog.Warn(ctx, "failed to close cache", "error", err)
			}
		}()
	}

	files, err := newStorageFunc(cfg.Storage)
	if err != nil {
		applog.Error(ctx, "failed to initialize object storage", "error", err)
		return 1
	}

	srv, err := newServerFunc(server.Config{
		Addr: cfg.Server.Addr,
		Session: server.SessionConfig{
			Lifetime:     cfg.Auth.Session.Lifetime,
			CookieName:   cfg.Auth.Session.CookieName,
			CookieDomain: cfg.Auth.Session.CookieDomain,
			CookieSecure: cfg.Auth.Session.CookieSecure,
		},
		Database: database,
		Cache:    store,
		Storage:  files,
	})
	if err != nil {
		applog.Error(ctx, "failed to build server", "error", err)
		return 1
	}

	errCh := make(chan error, 1)
	go func() {
		applog.Info(ctx, "starting http server", "addr", cfg.Server.Addr)
		errCh <- srv.Start()
	}()

	sigCh, unsubscribe := subscribeShutdownSig()
	defer unsubscribe()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Error(ctx, "server encountered an error", "error", err)
			return 1
		}
	case sig := <-sigCh:
		applog.Info(ctx, "shutting down http server", "signal", sig.String())
		if err := srv.Stop(); err != nil {
			applog.Error(ctx, "graceful shutdown failed", "error", err)
			return 1
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Error(ctx, "server encountered an error", "error", err)
			return 1
		}
	}

	applog.Info(ctx, "server stopped")
	return 0
}
