package usage

import (
	"context"
	"errors"
	"fmt"

	"chatrelay/config"
	"chatrelay/internal/storage"
)

// Result holds the usage recorder and the storage connection behind it.
// The caller is responsible for calling Close() to release resources.
type Result struct {
	Recorder Recorder
	Storage  storage.Storage
}

// Close flushes the recorder, then closes storage. Safe to call multiple times.
func (r *Result) Close() error {
	var errs []error
	if r.Recorder != nil {
		if err := r.Recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("recorder close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
		r.Storage = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New builds the usage recorder selected by cfg.
// With usage tracking disabled it returns a NoopRecorder and no storage.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	if !cfg.Usage.Enabled {
		return &Result{Recorder: NoopRecorder{}}, nil
	}

	store, err := storage.New(ctx, buildStorageConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	usageStore, err := createUsageStore(ctx, store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Result{
		Recorder: NewLogger(usageStore, buildLoggerConfig(cfg.Usage)),
		Storage:  store,
	}, nil
}

func buildStorageConfig(cfg *config.Config) storage.Config {
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
		Redis: storage.RedisConfig{
			URL: cfg.Storage.Redis.URL,
		},
	}
	if storageCfg.Type == "" {
		storageCfg.Type = storage.TypeSQLite
	}
	return storageCfg
}

func createUsageStore(ctx context.Context, store storage.Storage, cfg *config.Config) (UsageStore, error) {
	retentionDays := cfg.Usage.RetentionDays

	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(store.SQLiteDB(), retentionDays)
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(ctx, store.PostgreSQLPool(), retentionDays)
	case storage.TypeMongoDB:
		return NewMongoDBStore(ctx, store.MongoDatabase(), retentionDays)
	case storage.TypeRedis:
		stream := cfg.Storage.Redis.Stream
		if stream == "" {
			stream = "chatrelay:usage"
		}
		return NewRedisStore(store.RedisClient(), stream, retentionDays)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

func buildLoggerConfig(usageCfg config.UsageConfig) Config {
	cfg := Config{
		Enabled:       usageCfg.Enabled,
		BufferSize:    usageCfg.BufferSize,
		FlushInterval: usageCfg.FlushInterval,
		RetentionDays: usageCfg.RetentionDays,
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return cfg
}
