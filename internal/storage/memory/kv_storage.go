package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// kvStorageInMemory — key-value хранилище в памяти процесса (локальная разработка и тесты).
type kvStorageInMemory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewKeyValueStorage возвращает in-memory реализацию KeyValueStorage.
func NewKeyValueStorage() *kvStorageInMemory {
	return &kvStorageInMemory{entries: make(map[string][]byte)}
}

func (s *kvStorageInMemory) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.entries[key]
	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	// Возвращаем копию, чтобы вызывающий не мог изменить сохранённое значение.
	return append([]byte(nil), value...), nil
}

func (s *kvStorageInMemory) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = append([]byte(nil), value...)
	return nil
}

func (s *kvStorageInMemory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *kvStorageInMemory) Ping(context.Context) error {
	return nil
}

// Len возвращает количество ключей (используется в тестах).
func (s *kvStorageInMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ domain.KeyValueStorage = (*kvStorageInMemory)(nil)
