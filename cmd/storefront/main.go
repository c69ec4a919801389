package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	envConfigFile          = "STOREFRONT_CONFIG"
	envHTTPAddr            = "STOREFRONT_HTTP_ADDR"
	envMetricsAddr         = "STOREFRONT_METRICS_ADDR"
	envLogLevel            = "STOREFRONT_LOG_LEVEL"
	envTracing             = "STOREFRONT_TRACING"
	envSecureCookie        = "STOREFRONT_SECURE_COOKIE"
	envStorageDriver       = "STOREFRONT_STORAGE_DRIVER"
	envPersistTimeout      = "STOREFRONT_PERSIST_TIMEOUT"
	envFileDir             = "STOREFRONT_FILE_DIR"
	envSessionIdleTTL      = "STOREFRONT_SESSION_IDLE_TTL"
	envMaxSessions         = "STOREFRONT_MAX_SESSIONS"
	envRedisAddr           = "STOREFRONT_REDIS_ADDR"
	envRedisPassword       = "STOREFRONT_REDIS_PASSWORD"
	envRedisDB             = "STOREFRONT_REDIS_DB"
	envPostgresDSN         = "STOREFRONT_POSTGRES_DSN"
	envPostgresAutoMigrate = "STOREFRONT_POSTGRES_AUTO_MIGRATE"
	envPageSize            = "STOREFRONT_PAGE_SIZE"
	envSeedCatalog         = "STOREFRONT_SEED_CATALOG"
	envKafkaBrokers        = "KAFKA_BROKERS"
	envOutboxPollInterval  = "STOREFRONT_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "STOREFRONT_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "STOREFRONT_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "STOREFRONT_OUTBOX_RETRY_DELAY"
	envOutboxConcurrency   = "STOREFRONT_OUTBOX_CONCURRENCY"
	envOutboxMaxPending    = "STOREFRONT_OUTBOX_MAX_PENDING"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level string) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		log.SetLevel(log.InfoLevel)
		return err
	}
	log.SetLevel(parsed)
	return nil
}

// readConfigFromEnv собирает конфигурацию: значения по умолчанию, YAML из STOREFRONT_CONFIG, переменные окружения.
// Некорректные значения оставляют предыдущее значение и возвращаются как предупреждения.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	if path, ok := nonEmpty(lookup, envConfigFile); ok {
		fromFile, err := app.LoadConfigFile(path, cfg)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envConfigFile, err))
		} else {
			cfg = fromFile
		}
	}

	setString := func(key string, dst *string) {
		if v, ok := nonEmpty(lookup, key); ok {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		v, ok := nonEmpty(lookup, key)
		if !ok {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}
	setInt := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := nonEmpty(lookup, key)
		if !ok {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}
	setDuration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := nonEmpty(lookup, key)
		if !ok {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	setString(envHTTPAddr, &cfg.HTTPAddr)
	setString(envMetricsAddr, &cfg.MetricsAddr)
	setString(envLogLevel, &cfg.LogLevel)
	setString(envTracing, &cfg.Tracing)
	setBool(envSecureCookie, &cfg.SecureCookie)

	if v, ok := nonEmpty(lookup, envStorageDriver); ok {
		cfg.StorageDriver = strings.ToLower(v)
	}
	setDuration(envPersistTimeout, &cfg.PersistTimeout, positiveDuration, "must be > 0")
	setString(envFileDir, &cfg.FileDir)
	setDuration(envSessionIdleTTL, &cfg.SessionIdleTTL, nonNegativeDuration, "must be >= 0")
	setInt(envMaxSessions, &cfg.MaxSessions, nonNegative, "must be >= 0")
	setString(envRedisAddr, &cfg.RedisAddr)
	setString(envRedisPassword, &cfg.RedisPassword)
	setInt(envRedisDB, &cfg.RedisDB, nonNegative, "must be >= 0")
	setString(envPostgresDSN, &cfg.PostgresDSN)
	setBool(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)

	setInt(envPageSize, &cfg.PageSize, func(v int) bool { return v > 0 && v <= 100 }, "must be between 1 and 100")
	setBool(envSeedCatalog, &cfg.SeedCatalog)

	setString(envKafkaBrokers, &cfg.KafkaBrokers)
	setDuration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	setInt(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	setInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	setDuration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	setInt(envOutboxConcurrency, &cfg.OutboxConcurrency, positive, "must be > 0")
	setInt(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0")

	return cfg, warnings
}

func nonEmpty(lookup envLookup, key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool %q", value)
	}
}

func parseInt(value string, valid func(int) bool, rule string) (int, error) {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid int %q", value)
	}
	if valid != nil && !valid(parsed) {
		return 0, fmt.Errorf("value %d %s", parsed, rule)
	}
	return parsed, nil
}

func parseDuration(value string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	if valid != nil && !valid(parsed) {
		return 0, fmt.Errorf("value %s %s", parsed, rule)
	}
	return parsed, nil
}

func main() {
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	if err := setupLogger(cfg.LogLevel); err != nil {
		log.WithError(err).Warn("unknown log level, using info")
	}
	for _, warning := range warnings {
		log.Warnf("некорректная настройка, используется значение по умолчанию: %s", warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":        version.GetVersion(),
		"http_addr":      cfg.HTTPAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"cart_events":    cfg.KafkaBrokers != "",
	}).Info("запускаем storefront")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("storefront остановлен")
}
