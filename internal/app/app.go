// Package app собирает зависимости витрины и запускает HTTP-серверы.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/catalog"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/tracing"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const serviceName = "storefront"

// Run запускает сервис и блокируется до отмены ctx или ошибки сервера.
// При отмене ctx возвращает ctx.Err() после остановки всех компонентов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	if err := cfg.Validate(); err != nil {
		return err
	}

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, serviceName, version.GetVersion())
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}
	}()

	deps, err := initRuntimeDependencies(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	m := metrics.NewMetrics()

	var pipeline *cartEvents
	producer, err := initKafkaProducer(cfg.Brokers(), logger.WithField("layer", "kafka"))
	if err == nil && producer != nil {
		pipeline = newCartEvents(cfg, deps.outboxRepo, producer, m, logger)
	}

	storeOptions := []cart.Option{
		cart.WithLogger(log.WithField("component", "cart-store")),
		cart.WithMetrics(m),
		cart.WithPersistTimeout(cfg.PersistTimeout),
		cart.WithSessionIdleTTL(cfg.SessionIdleTTL),
		cart.WithMaxSessions(cfg.MaxSessions),
	}
	if pipeline != nil {
		storeOptions = append(storeOptions, cart.WithListener(pipeline.recorder.Listen))
	}
	registry := cart.NewRegistry(deps.storage, storeOptions...)

	catalogLogger := log.WithField("component", "catalog")
	router := httpapi.NewRouter(httpapi.Deps{
		Registry:     registry,
		Catalog:      catalog.NewHandler(catalog.NewService(deps.products, catalogLogger), cfg.PageSize, catalogLogger),
		Logger:       log.WithField("component", "http"),
		Metrics:      m,
		SecureCookie: cfg.SecureCookie,
	})

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	if pipeline != nil && cfg.OutboxMaxPending > 0 {
		healthHandler.RegisterChecker("outbox", outboxBacklogChecker(deps, cfg.OutboxMaxPending))
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	metricsSrv := startMetricsServer(runCtx, cfg.MetricsAddr, logger, healthHandler)

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		pipeline.shutdown(context.Background(), logger)
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}
	httpSrv := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		logger.Infof("HTTP API слушает %s", lis.Addr())
		if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if pipeline != nil {
		g.Go(func() error {
			pipeline.worker.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(httpSrv, logger)
		return nil
	})

	serveErr := g.Wait()
	shutdownHTTP(metricsSrv, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := registry.Close(shutdownCtx); err != nil {
		logger.WithError(err).Warn("not all carts were flushed before shutdown")
	}
	pipeline.shutdown(shutdownCtx, logger)

	if serveErr != nil {
		return serveErr
	}
	return ctx.Err()
}

// outboxBacklogChecker переводит сервис в degraded, если backlog outbox растёт.
func outboxBacklogChecker(deps *runtimeDependencies, maxPending int) healthcheck.Checker {
	return healthcheck.NewOptionalChecker("outbox", func(ctx context.Context) error {
		stats, err := deps.outboxRepo.Stats(ctx)
		if err != nil {
			return err
		}
		if stats.PendingCount > maxPending {
			return fmt.Errorf("outbox backlog %d exceeds %d", stats.PendingCount, maxPending)
		}
		return nil
	})
}

// startMetricsServer запускает HTTP-обработчик /metrics и health-эндпоинты.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
