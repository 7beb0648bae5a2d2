package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/order-replay/internal/health"
	"github.com/vladislavdragonenkov/order-replay/internal/storage/memory"
	"github.com/vladislavdragonenkov/order-replay/internal/storage/postgres"
	"github.com/vladislavdragonenkov/order-replay/internal/storage/redis"
	"github.com/vladislavdragonenkov/order-replay/internal/storage/sqlite"
)

// runtimeDependencies — хранилища, выбранные драйвером из конфигурации.
type runtimeDependencies struct {
	events    domain.EventLog
	snapshots domain.SnapshotStore
	// storageChecker nil для in-memory хранилища.
	storageChecker healthcheck.Checker
	closeFn        func() error
}

func (d runtimeDependencies) close(logger *log.Entry) {
	if d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

// initRuntimeDependencies открывает хранилище событий и снапшотов.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		logger.Info("using in-memory storage")
		return runtimeDependencies{
			events:    memory.NewEventLog(),
			snapshots: memory.NewSnapshotStore(),
		}, nil

	case StorageDriverSQLite:
		if cfg.SQLitePath == "" {
			return runtimeDependencies{}, fmt.Errorf("sqlite path is required")
		}
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return runtimeDependencies{}, fmt.Errorf("open sqlite storage: %w", err)
		}
		logger.WithField("path", cfg.SQLitePath).Info("using sqlite storage")
		return runtimeDependencies{
			events:         sqlite.NewEventLog(store),
			snapshots:      sqlite.NewSnapshotStore(store),
			storageChecker: healthcheck.NewPingChecker("sqlite", store, 0),
			closeFn:        store.Close,
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return runtimeDependencies{}, fmt.Errorf("postgres dsn is required")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return runtimeDependencies{}, fmt.Errorf("open postgres storage: %w", err)
		}
		fields := log.Fields{"auto_migrate": cfg.PostgresAutoMigrate}
		if cfg.PostgresAutoMigrate {
			status, err := store.EnsureSchema(ctx)
			if err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("apply postgres migrations: %w", err)
			}
			fields["schema_version"] = status.Version
		}
		logger.WithFields(fields).Info("using postgres storage")
		return runtimeDependencies{
			events:         postgres.NewEventLog(store),
			snapshots:      postgres.NewSnapshotStore(store),
			storageChecker: healthcheck.NewPingChecker("postgres", store, 0),
			closeFn:        store.Close,
		}, nil

	case StorageDriverRedis:
		store, err := redis.Open(ctx, redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return runtimeDependencies{}, fmt.Errorf("open redis storage: %w", err)
		}
		logger.WithField("addr", cfg.RedisAddr).Info("using redis storage")
		return runtimeDependencies{
			events:         redis.NewEventLog(store),
			snapshots:      redis.NewSnapshotStore(store),
			storageChecker: healthcheck.NewPingChecker("redis", store, 0),
			closeFn:        store.Close,
		}, nil

	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// Storage — открытые хранилища событий и снапшотов для CLI.
type Storage struct {
	Events    domain.EventLog
	Snapshots domain.SnapshotStore
	deps      runtimeDependencies
}

// Close закрывает хранилище; для in-memory ничего не делает.
func (s Storage) Close(logger *log.Entry) {
	s.deps.close(logger)
}

// OpenStorage открывает хранилище по драйверу из конфигурации.
func OpenStorage(ctx context.Context, cfg Config, logger *log.Entry) (Storage, error) {
	if logger == nil {
		logger = log.WithField("component", "storage")
	}
	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return Storage{}, err
	}
	return Storage{Events: deps.events, Snapshots: deps.snapshots, deps: deps}, nil
}
