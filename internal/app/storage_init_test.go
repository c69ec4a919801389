package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
		SeedCatalog:   true,
	}, log.WithField("test", "memory-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(memory) failed: %v", err)
	}
	if deps.storage == nil || deps.products == nil || deps.outboxRepo == nil {
		t.Fatalf("memory dependencies must be initialized: %+v", deps)
	}

	products, err := deps.products.List(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(products) == 0 {
		t.Fatal("expected seeded catalog")
	}
	if err := deps.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestInitRuntimeDependencies_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverFile,
		FileDir:       dir,
	}, log.WithField("test", "file-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(file) failed: %v", err)
	}
	check := deps.storageChecker.Check(context.Background())
	if check.Status != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy file storage, got %+v", check)
	}
}

func TestInitRuntimeDependencies_Redis(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverRedis,
		RedisAddr:     srv.Addr(),
	}, log.WithField("test", "redis-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(redis) failed: %v", err)
	}
	defer func() { _ = deps.close() }()

	if err := deps.storage.Set(context.Background(), "cart-storage:s1", []byte(`{}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(srv.Keys()) != 1 {
		t.Fatalf("expected one key in redis, got %v", srv.Keys())
	}
}

func TestInitRuntimeDependencies_RedisUnreachable(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverRedis,
		RedisAddr:     addr,
	}, log.WithField("test", "redis-down"))
	if err == nil {
		t.Fatal("expected error for unreachable redis")
	}
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	if err == nil {
		t.Fatal("expected error when postgres driver is selected without DSN")
	}
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	if err == nil {
		t.Fatal("expected error for unsupported storage driver")
	}
}
