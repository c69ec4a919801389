package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.StorageDriver = StorageDriverMemory

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_ServesCartAndCatalog(t *testing.T) {
	port := findFreePort(t)
	cfg := DefaultConfig()
	cfg.HTTPAddr = fmt.Sprintf("127.0.0.1:%d", port)
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.StorageDriver = StorageDriverFile
	cfg.FileDir = t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	resp := waitForHTTP(t, base+"/api/products?limit=3")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"hasMore":true`) {
		t.Fatalf("unexpected products response %d: %s", resp.StatusCode, body)
	}

	resp, err := http.Post(base+"/api/cart/items", "application/json",
		strings.NewReader(`{"id":"prod-001","name":"Tee","price":"49.90","quantity":2}`))
	if err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"totalItems":2`) {
		t.Fatalf("unexpected cart response %d: %s", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop")
	}

	// корзина сброшена на диск при остановке
	entries, err := os.ReadDir(cfg.FileDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one persisted cart, got %d", len(entries))
	}
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported storage driver error, got %v", err)
	}
}

func TestRun_InvalidTracingExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tracing = "jaeger"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	if err := Run(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unsupported tracing exporter")
	}
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("STOREFRONT_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer func() { _ = deps.close() }()

	check := deps.storageChecker.Check(context.Background())
	if check.Status != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy storage checker, got %+v", check)
	}
}

func TestOutboxBacklogChecker(t *testing.T) {
	deps, err := initRuntimeDependencies(context.Background(), Config{StorageDriver: StorageDriverMemory},
		log.WithField("test", "outbox-checker"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	checker := outboxBacklogChecker(deps, 1)

	if got := checker.Check(context.Background()).Status; got != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy for empty backlog, got %s", got)
	}

	for i := 0; i < 2; i++ {
		if _, err := deps.outboxRepo.Enqueue(context.Background(), newTestOutboxMessage(i)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if got := checker.Check(context.Background()).Status; got != healthcheck.StatusDegraded {
		t.Fatalf("expected degraded for large backlog, got %s", got)
	}
}

// waitForHTTP ждёт, пока сервер начнёт отвечать.
func waitForHTTP(t *testing.T, url string) *http.Response {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			return resp
		}
		if time.Now().After(deadline) {
			t.Fatalf("server at %s did not start: %v", url, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
