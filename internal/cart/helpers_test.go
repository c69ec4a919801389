package cart_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func item(id string, price string, qty int) domain.CartLineItem {
	return domain.CartLineItem{
		ID:       id,
		Name:     "item " + id,
		Image:    "https://cdn.example.com/" + id + ".png",
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
	}
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger.WithField("test", "cart")
}

// flakyStorage — хранилище, которое умеет отказывать на запись и чтение.
type flakyStorage struct {
	mu       sync.Mutex
	entries  map[string][]byte
	getErr   error
	setErr   error
	setCalls int
}

func newFlakyStorage() *flakyStorage {
	return &flakyStorage{entries: make(map[string][]byte)}
}

func (s *flakyStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	value, ok := s.entries[key]
	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	return value, nil
}

func (s *flakyStorage) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++
	if s.setErr != nil {
		return s.setErr
	}
	s.entries[key] = append([]byte(nil), value...)
	return nil
}

func (s *flakyStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *flakyStorage) Ping(context.Context) error { return nil }

func (s *flakyStorage) failWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErr = err
}

func (s *flakyStorage) failReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErr = err
}

func (s *flakyStorage) raw(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.entries[key]
	return value, ok
}

var errStorageDown = errors.New("storage down")

// manualClock — время реестра, которое двигает тест.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// seedCart сохраняет корзину сессии напрямую в хранилище.
func seedCart(t *testing.T, storage domain.KeyValueStorage, sessionID string, items ...domain.CartLineItem) {
	t.Helper()
	raw, err := cart.EncodeSnapshot(domain.CartState{Items: items})
	require.NoError(t, err)
	require.NoError(t, storage.Set(context.Background(), cart.StorageKey(sessionID), raw))
}

// storedCart читает сохранённую корзину сессии.
func storedCart(t *testing.T, storage domain.KeyValueStorage, sessionID string) domain.CartState {
	t.Helper()
	raw, err := storage.Get(context.Background(), cart.StorageKey(sessionID))
	require.NoError(t, err)
	state, err := cart.DecodeSnapshot(raw)
	require.NoError(t, err)
	return state
}
