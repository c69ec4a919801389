package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/storage/file"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/storefront/internal/storage/redis"
)

// runtimeDependencies — хранилища, выбранные по StorageDriver.
type runtimeDependencies struct {
	storage    domain.KeyValueStorage
	products   domain.ProductRepository
	outboxRepo domain.OutboxRepository

	storageChecker healthcheck.Checker
	closeFn        func() error
}

func (d *runtimeDependencies) close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// initRuntimeDependencies открывает хранилище корзин, каталог и outbox.
// Каталог и outbox живут в Postgres только для postgres-драйвера, иначе в памяти.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{
		products:   memory.NewProductRepository(),
		outboxRepo: memory.NewOutboxRepository(),
	}

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		storage := memory.NewKeyValueStorage()
		deps.storage = storage
		deps.storageChecker = healthcheck.NewPingChecker("storage", storage)
		logger.Warn("cart storage is in-memory, carts are lost on restart")

	case StorageDriverFile:
		storage, err := file.NewKeyValueStorage(cfg.FileDir)
		if err != nil {
			return nil, fmt.Errorf("init file storage: %w", err)
		}
		deps.storage = storage
		deps.storageChecker = healthcheck.NewPingChecker("storage", storage)
		logger.WithField("dir", storage.Dir()).Info("file cart storage initialized")

	case StorageDriverRedis:
		storage := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, redisstore.WithTTL(cfg.RedisTTL))
		if err := storage.Ping(ctx); err != nil {
			_ = storage.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		deps.storage = storage
		deps.storageChecker = healthcheck.NewPingChecker("storage", storage)
		deps.closeFn = storage.Close
		logger.WithField("addr", cfg.RedisAddr).Info("redis cart storage initialized")

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres storage requires STOREFRONT_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		deps.storage = postgres.NewKeyValueStorage(store)
		deps.products = postgres.NewProductRepository(store)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		deps.storageChecker = healthcheck.NewPingChecker("storage", store)
		deps.closeFn = store.Close
		logger.Info("postgres storage initialized")

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if cfg.SeedCatalog {
		n, err := catalog.Seed(ctx, deps.products)
		if err != nil {
			_ = deps.close()
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
		logger.WithField("products", n).Info("catalog seeded")
	}

	return deps, nil
}
