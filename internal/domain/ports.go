package domain

import (
	"context"
	"time"
)

// KeyValueStorage — долговременное key-value хранилище, в котором живут сохранённые корзины.
type KeyValueStorage interface {
	// Get возвращает значение или ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set перезаписывает значение целиком.
	Set(ctx context.Context, key string, value []byte) error
	// Delete удаляет ключ; отсутствие ключа ошибкой не считается.
	Delete(ctx context.Context, key string) error
	// Ping проверяет доступность бэкенда.
	Ping(ctx context.Context) error
}

// ProductRepository описывает хранилище каталога.
type ProductRepository interface {
	// List возвращает до limit товаров, начиная с offset, новые первыми.
	List(ctx context.Context, offset, limit int) ([]ProductSummary, error)
	// Upsert добавляет или обновляет товары (используется при наполнении каталога).
	Upsert(ctx context.Context, products ...ProductSummary) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository хранит события корзин до публикации.
// PullPending отдаёт события в порядке постановки, поэтому события одной сессии не переставляются.
type OutboxRepository interface {
	// Enqueue сохраняет событие в статусе pending; пустой ID генерируется.
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	// MarkSent снимает опубликованные события с backlog; ErrOutboxPublish, если часть из них уже не pending.
	MarkSent(ctx context.Context, ids ...string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
