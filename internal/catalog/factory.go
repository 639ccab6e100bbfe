package catalog

import (
	"context"
	"errors"
	"fmt"

	"steamgate/config"
	"steamgate/internal/storage"
)

// Result holds the initialized catalog store and optional owned storage.
type Result struct {
	Store   Store
	Storage storage.Storage
	// Sweeper purges expired common entries; nil when retention is disabled.
	Sweeper *Sweeper
}

// Close releases resources held by the catalog store.
func (r *Result) Close() error {
	if r.Sweeper != nil {
		r.Sweeper.Stop()
	}
	var errs []error
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New opens the configured database and creates a catalog store on it.
// The memory type needs no database and leaves Result.Storage nil.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	result := &Result{}
	if cfg.Storage.Type == config.StorageMemory {
		result.Store = NewMemoryStore()
	} else {
		store, err := storage.New(ctx, buildStorageConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}

		catalogStore, err := createStore(ctx, store)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		result.Store = catalogStore
		result.Storage = store
	}

	if retention := cfg.Storage.CommonRetention; retention > 0 {
		result.Sweeper = NewSweeper(result.Store, retention)
		result.Sweeper.Start(CleanupInterval)
	}
	return result, nil
}

// NewWithSharedStorage creates a catalog store on a connection owned by the caller.
func NewWithSharedStorage(ctx context.Context, shared storage.Storage) (*Result, error) {
	if shared == nil {
		return nil, fmt.Errorf("shared storage is required")
	}
	catalogStore, err := createStore(ctx, shared)
	if err != nil {
		return nil, err
	}
	return &Result{
		Store: catalogStore,
	}, nil
}

func buildStorageConfig(cfg *config.Config) storage.Config {
	defaults := storage.DefaultConfig()
	storageCfg := storage.Config{
		Type: cfg.Storage.Type,
		SQLite: storage.SQLiteConfig{
			Path: cfg.Storage.SQLite.Path,
		},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.Storage.PostgreSQL.URL,
			MaxConns: cfg.Storage.PostgreSQL.MaxConns,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      cfg.Storage.MongoDB.URL,
			Database: cfg.Storage.MongoDB.Database,
		},
	}

	if storageCfg.Type == "" {
		storageCfg.Type = defaults.Type
	}
	if storageCfg.SQLite.Path == "" {
		storageCfg.SQLite.Path = defaults.SQLite.Path
	}
	if storageCfg.MongoDB.Database == "" {
		storageCfg.MongoDB.Database = defaults.MongoDB.Database
	}
	return storageCfg
}

func createStore(ctx context.Context, store storage.Storage) (Store, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(ctx, store.SQLiteDB())
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(ctx, store.PostgreSQLPool())
	case storage.TypeMongoDB:
		return NewMongoDBStore(ctx, store.MongoDatabase())
	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}
