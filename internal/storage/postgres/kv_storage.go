package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type kvStorage struct {
	store *Store
}

// NewKeyValueStorage создаёт хранилище сохранённых корзин в таблице kv_entries.
func NewKeyValueStorage(store *Store) domain.KeyValueStorage {
	return &kvStorage{store: store}
}

func (s *kvStorage) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.store.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrKeyNotFound
		}
		return nil, fmt.Errorf("select kv entry %q: %w", key, err)
	}
	return value, nil
}

func (s *kvStorage) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    updated_at = EXCLUDED.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("upsert kv entry %q: %w", key, err)
	}
	return nil
}

func (s *kvStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.store.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete kv entry %q: %w", key, err)
	}
	return nil
}

func (s *kvStorage) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

var _ domain.KeyValueStorage = (*kvStorage)(nil)
