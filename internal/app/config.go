package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Поддерживаемые хранилища корзин.
const (
	StorageDriverMemory   = "memory"
	StorageDriverFile     = "file"
	StorageDriverRedis    = "redis"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса.
// Порядок источников: DefaultConfig, затем YAML-файл, затем переменные окружения.
type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	Tracing         string        `yaml:"tracing"`
	SecureCookie    bool          `yaml:"secure_cookie"`

	StorageDriver  string        `yaml:"storage_driver"`
	PersistTimeout time.Duration `yaml:"persist_timeout"`
	FileDir        string        `yaml:"file_dir"`
	// SessionIdleTTL — через сколько простоя сессия корзины выгружается из памяти; 0 выключает выселение.
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl"`
	// MaxSessions — мягкий лимит открытых сессий; 0 снимает лимит.
	MaxSessions int `yaml:"max_sessions"`

	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`

	PostgresDSN         string `yaml:"postgres_dsn"`
	PostgresAutoMigrate bool   `yaml:"postgres_auto_migrate"`

	PageSize    int  `yaml:"page_size"`
	SeedCatalog bool `yaml:"seed_catalog"`

	// KafkaBrokers — список брокеров через запятую; пустой выключает события корзин.
	KafkaBrokers       string        `yaml:"kafka_brokers"`
	OutboxPollInterval time.Duration `yaml:"outbox_poll_interval"`
	OutboxBatchSize    int           `yaml:"outbox_batch_size"`
	OutboxMaxAttempts  int           `yaml:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `yaml:"outbox_retry_delay"`
	OutboxConcurrency  int           `yaml:"outbox_concurrency"`
	// OutboxMaxPending — порог backlog, после которого readiness переходит в degraded; 0 выключает проверку.
	OutboxMaxPending int `yaml:"outbox_max_pending"`
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:        ":8080",
		MetricsAddr:     ":9090",
		ShutdownTimeout: 5 * time.Second,
		LogLevel:        "info",

		StorageDriver:  StorageDriverMemory,
		PersistTimeout: 2 * time.Second,
		FileDir:        ".storefront/carts",
		SessionIdleTTL: 30 * time.Minute,
		MaxSessions:    10000,

		RedisAddr: "localhost:6379",
		RedisTTL:  30 * 24 * time.Hour,

		PostgresAutoMigrate: true,

		PageSize:    domain.DefaultPageSize,
		SeedCatalog: true,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,
		OutboxConcurrency:  4,
		OutboxMaxPending:   1000,
	}
}

// LoadConfigFile накладывает YAML-файл на base; отсутствующие в файле поля сохраняют значения base.
func LoadConfigFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config file: %w", err)
	}
	return decodeConfig(bytes.NewReader(data), base)
}

func decodeConfig(r io.Reader, base Config) (Config, error) {
	cfg := base
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return base, nil
		}
		return base, fmt.Errorf("decode config: %w", err)
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	return cfg, nil
}

// Validate проверяет согласованность настроек перед запуском.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory, StorageDriverFile, StorageDriverRedis:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return errors.New("postgres storage requires STOREFRONT_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if c.PageSize < 1 || c.PageSize > domain.MaxPageSize {
		return fmt.Errorf("page size must be between 1 and %d", domain.MaxPageSize)
	}
	if c.SessionIdleTTL < 0 {
		return errors.New("session idle ttl must be >= 0")
	}
	if c.MaxSessions < 0 {
		return errors.New("max sessions must be >= 0")
	}
	if c.HTTPAddr == "" {
		return errors.New("http address is required")
	}
	return nil
}

// Brokers разбирает KafkaBrokers в список без пустых элементов.
func (c Config) Brokers() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}
