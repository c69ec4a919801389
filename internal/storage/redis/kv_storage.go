// Package redis хранит key-value записи корзин в Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultPrefix = "storefront:"

// KeyValueStorage реализует domain.KeyValueStorage поверх Redis.
type KeyValueStorage struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option настраивает хранилище.
type Option func(*KeyValueStorage)

// WithTTL задаёт срок жизни ключей; 0 — без истечения.
func WithTTL(ttl time.Duration) Option {
	return func(s *KeyValueStorage) {
		s.ttl = ttl
	}
}

// WithPrefix задаёт префикс ключей в Redis.
func WithPrefix(prefix string) Option {
	return func(s *KeyValueStorage) {
		s.prefix = prefix
	}
}

// New создаёт клиента к Redis по адресу.
func New(address, password string, db int, opts ...Option) *KeyValueStorage {
	return NewFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewFromClient создаёт хранилище поверх готового клиента.
func NewFromClient(client *backend.Client, opts ...Option) *KeyValueStorage {
	s := &KeyValueStorage{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *KeyValueStorage) key(key string) string {
	return s.prefix + key
}

func (s *KeyValueStorage) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return val, nil
}

func (s *KeyValueStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (s *KeyValueStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

func (s *KeyValueStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close закрывает клиента.
func (s *KeyValueStorage) Close() error {
	return s.client.Close()
}

var _ domain.KeyValueStorage = (*KeyValueStorage)(nil)
