// Package postgres содержит PostgreSQL-реализации хранилища корзин, каталога и outbox.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

const applicationName = "storefront"

var errStoreNotInitialized = errors.New("postgres store is not initialized")

// PoolConfig задаёт размер пула и время жизни соединений.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// PingTimeout ограничивает проверку доступности при открытии и в health-чеке.
	PingTimeout time.Duration
}

// DefaultPoolConfig рассчитан на один инстанс: снимки корзин, каталог и один outbox worker.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// Store оборачивает пул подключений к PostgreSQL (pgx через database/sql).
type Store struct {
	db          *sql.DB
	pingTimeout time.Duration
	logger      *log.Entry
}

// Open открывает пул с DefaultPoolConfig и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	return OpenWithPool(ctx, dsn, DefaultPoolConfig())
}

// OpenWithPool открывает пул с заданными настройками и проверяет доступность базы.
func OpenWithPool(ctx context.Context, dsn string, pool PoolConfig) (*Store, error) {
	connConfig, err := parseConnConfig(dsn)
	if err != nil {
		return nil, err
	}

	db := stdlib.OpenDB(*connConfig)
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	store := &Store{
		db:          db,
		pingTimeout: pool.PingTimeout,
		logger: log.WithFields(log.Fields{
			"component": "postgres",
			"host":      connConfig.Host,
			"database":  connConfig.Database,
		}),
	}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres %s/%s: %w", connConfig.Host, connConfig.Database, err)
	}

	store.logger.Debug("postgres pool opened")
	return store, nil
}

// parseConnConfig разбирает DSN и подставляет application_name, если он не задан,
// чтобы соединения сервиса были видны в pg_stat_activity.
func parseConnConfig(dsn string) (*pgx.ConnConfig, error) {
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if connConfig.RuntimeParams == nil {
		connConfig.RuntimeParams = make(map[string]string)
	}
	if _, ok := connConfig.RuntimeParams["application_name"]; !ok {
		connConfig.RuntimeParams["application_name"] = applicationName
	}
	return connConfig, nil
}

// DB возвращает пул для низкоуровневого доступа.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность базы; используется health-чекером.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	if s.pingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.pingTimeout)
		defer cancel()
	}
	return s.db.PingContext(ctx)
}

// EnsureSchema применяет все недостающие up-миграции (STOREFRONT_POSTGRES_AUTO_MIGRATE).
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает пул.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
