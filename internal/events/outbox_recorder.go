// Package events превращает мутации корзин в события outbox.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	// AggregateType — тип агрегата событий корзины в outbox.
	AggregateType = "cart"

	defaultBufferSize = 256
	// enqueueTimeout ограничивает запись одного события в outbox.
	enqueueTimeout = 3 * time.Second

	resultDropped = "dropped"
)

// OutboxRecorder подписывается на сторы корзин и пишет события в outbox.
// Listen не блокирует мутацию: событие кладётся в буфер, запись в outbox идёт из одной горутины в порядке мутаций.
// При переполненном буфере событие отбрасывается с предупреждением.
type OutboxRecorder struct {
	repo    domain.OutboxRepository
	logger  *log.Entry
	metrics *metrics.Metrics

	queue chan cart.Change
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// RecorderOption настраивает OutboxRecorder.
type RecorderOption func(*OutboxRecorder)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) RecorderOption {
	return func(r *OutboxRecorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *OutboxRecorder) {
		r.metrics = m
	}
}

// WithBufferSize задаёт ёмкость буфера событий.
func WithBufferSize(size int) RecorderOption {
	return func(r *OutboxRecorder) {
		if size > 0 {
			r.queue = make(chan cart.Change, size)
		}
	}
}

// NewOutboxRecorder создаёт recorder и запускает горутину записи.
func NewOutboxRecorder(repo domain.OutboxRepository, opts ...RecorderOption) *OutboxRecorder {
	r := &OutboxRecorder{
		repo:   repo,
		logger: log.WithField("component", "cart-events"),
		queue:  make(chan cart.Change, defaultBufferSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	go r.loop()
	return r
}

// Listen — cart.Listener; передаётся в cart.WithListener.
func (r *OutboxRecorder) Listen(change cart.Change) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return
	}

	select {
	case r.queue <- change:
	default:
		eventType := eventTypeFor(change.Op)
		r.metrics.RecordCartEvent(string(eventType), resultDropped)
		r.logger.WithFields(log.Fields{
			"session_id": cart.SessionIDFromKey(change.Key),
			"event_type": eventType,
		}).Warn("cart event buffer is full, event dropped")
	}
}

// Close прекращает приём событий и дожидается записи буфера или отмены ctx.
func (r *OutboxRecorder) Close(ctx context.Context) error {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
	})

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *OutboxRecorder) loop() {
	defer close(r.done)
	for change := range r.queue {
		r.record(change)
	}
}

func (r *OutboxRecorder) record(change cart.Change) {
	sessionID := cart.SessionIDFromKey(change.Key)
	eventType := eventTypeFor(change.Op)

	event := kafka.NewCartEvent(
		eventType,
		sessionID,
		change.ItemID,
		change.Quantity,
		domain.TotalItems(change.State),
		domain.TotalPrice(change.State),
	)
	payload, err := json.Marshal(event)
	if err != nil {
		r.metrics.RecordCartEvent(string(eventType), metrics.ResultError)
		r.logger.WithError(err).Warn("failed to marshal cart event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()
	_, err = r.repo.Enqueue(ctx, domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: AggregateType,
		AggregateID:   sessionID,
		EventType:     string(eventType),
		Payload:       payload,
	})
	if err != nil {
		r.metrics.RecordCartEvent(string(eventType), metrics.ResultError)
		r.logger.WithError(err).WithFields(log.Fields{
			"session_id": sessionID,
			"event_type": eventType,
		}).Warn("failed to enqueue cart event")
		return
	}
	r.metrics.RecordCartEvent(string(eventType), metrics.ResultOK)
}

func eventTypeFor(op cart.Op) kafka.EventType {
	switch op {
	case cart.OpAdd:
		return kafka.EventTypeCartItemAdded
	case cart.OpRemove:
		return kafka.EventTypeCartItemRemoved
	case cart.OpUpdateQuantity:
		return kafka.EventTypeCartQuantityUpdated
	case cart.OpClear:
		return kafka.EventTypeCartCleared
	default:
		return kafka.EventType("cart." + string(op))
	}
}
