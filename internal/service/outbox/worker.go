// Package outbox публикует события корзин из transactional outbox в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	defaultConcurrency    = 4

	maxRetryDelay = 30 * time.Second
	// markTimeout ограничивает отметку опубликованных событий после отмены ctx.
	markTimeout = 5 * time.Second
)

// Результаты публикации для метрики storefront_outbox_publish_attempts_total.
const (
	publishSent       = "sent"
	publishRetryError = "retry_error"
	publishFailed     = "failed"
	publishDLQFailed  = "dlq_failed"
)

// WorkerOptions задаёт параметры outbox worker.
type WorkerOptions struct {
	Logger         *log.Entry
	Metrics        *metrics.Metrics
	DLQPublisher   domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	// Concurrency — сколько сессий публикуется одновременно.
	Concurrency int
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) { opts.Logger = logger }
}

// WithMetrics задаёт метрики публикации и backlog.
func WithMetrics(m *metrics.Metrics) Option {
	return func(opts *WorkerOptions) { opts.Metrics = m }
}

// WithDLQPublisher задаёт publisher, в который уходят события после исчерпания попыток.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) { opts.DLQPublisher = publisher }
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) { opts.PollInterval = interval }
}

// WithBatchSize задаёт размер батча из outbox.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) { opts.BatchSize = batchSize }
}

// WithMaxAttempts задаёт число попыток публикации одного события.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) { opts.MaxAttempts = maxAttempts }
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) { opts.RetryBaseDelay = delay }
}

// WithConcurrency задаёт число сессий, публикуемых параллельно.
func WithConcurrency(n int) Option {
	return func(opts *WorkerOptions) { opts.Concurrency = n }
}

// Worker публикует pending-события корзин из outbox.
// Батч делится по сессиям: события одной сессии уходят строго по очереди,
// разные сессии публикуются параллельно, и медленная сессия не задерживает остальные.
// Событие, не опубликованное за MaxAttempts попыток, уходит в DLQ и помечается failed.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	opts      WorkerOptions
	logger    *log.Entry
	metrics   *metrics.Metrics
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
		Concurrency:    defaultConcurrency,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "outbox-worker")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	return &Worker{
		repo:      repo,
		publisher: publisher,
		opts:      opts,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("outbox worker stopped")
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// Drain публикует накопленный backlog, пока он не опустеет или не истечёт ctx.
// Вызывается при остановке сервиса. Если outbox повторно отдаёт уже обработанное событие,
// отметки не применяются, и Drain останавливается, чтобы не публиковать его снова.
func (w *Worker) Drain(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		return
	}

	handled := make(map[string]struct{})
	for ctx.Err() == nil {
		events, ok := w.pull(ctx)
		if !ok || len(events) == 0 {
			return
		}
		for _, event := range events {
			if _, seen := handled[event.ID]; seen {
				w.logger.WithField("outbox_id", event.ID).Warn("outbox returned an already handled event, drain stopped")
				return
			}
			handled[event.ID] = struct{}{}
		}
		w.process(ctx, events)
	}
}

// ProcessOnce забирает один батч и публикует его. Возвращает число обработанных событий.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	events, ok := w.pull(ctx)
	if !ok || len(events) == 0 {
		return 0
	}
	return w.process(ctx, events)
}

func (w *Worker) pull(ctx context.Context) ([]domain.OutboxMessage, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	w.refreshBacklogMetrics(ctx)

	events, err := w.repo.PullPending(ctx, w.opts.BatchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return nil, false
	}
	return events, true
}

func (w *Worker) process(ctx context.Context, events []domain.OutboxMessage) int {
	var (
		mu      sync.Mutex
		sent    []string
		handled int
	)

	var g errgroup.Group
	g.SetLimit(w.opts.Concurrency)
	for _, queue := range bySession(events) {
		g.Go(func() error {
			published, n := w.publishSession(ctx, queue)
			mu.Lock()
			sent = append(sent, published...)
			handled += n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(sent) > 0 {
		// опубликованное отмечаем и после отмены ctx, иначе оно уйдёт повторно
		markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
		if err := w.repo.MarkSent(markCtx, sent...); err != nil {
			w.logger.WithError(err).WithField("count", len(sent)).Warn("failed to mark outbox messages as sent")
		}
		cancel()
	}

	w.refreshBacklogMetrics(ctx)
	return handled
}

// publishSession публикует события одной сессии по очереди.
// При отмене ctx оставшиеся события сессии остаются pending.
func (w *Worker) publishSession(ctx context.Context, queue []domain.OutboxMessage) (sent []string, handled int) {
	for _, event := range queue {
		if ctx.Err() != nil {
			return sent, handled
		}

		err := w.publishWithRetry(ctx, event)
		switch {
		case err == nil:
			sent = append(sent, event.ID)
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			return sent, handled
		default:
			w.fail(ctx, event, err)
		}
		handled++
	}
	return sent, handled
}

func (w *Worker) fail(ctx context.Context, event domain.OutboxMessage, publishErr error) {
	logger := w.logger.WithFields(log.Fields{
		"outbox_id":  event.ID,
		"session_id": event.AggregateID,
		"event_type": event.EventType,
	})
	logger.WithError(publishErr).Error("outbox publish failed after retries")
	w.metrics.RecordOutboxPublish(publishFailed)

	if err := w.publishToDLQ(event, publishErr); err != nil {
		logger.WithError(err).Warn("failed to publish to DLQ")
		w.metrics.RecordOutboxPublish(publishDLQFailed)
	}
	if err := w.repo.MarkFailed(ctx, event.ID); err != nil {
		logger.WithError(err).Warn("failed to mark outbox message as failed")
	}
}

func (w *Worker) publishWithRetry(ctx context.Context, event domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.opts.MaxAttempts; attempt++ {
		err := w.publisher.Publish(event)
		if err == nil {
			w.metrics.RecordOutboxPublish(publishSent)
			return nil
		}
		lastErr = err
		w.metrics.RecordOutboxPublish(publishRetryError)

		if attempt == w.opts.MaxAttempts {
			break
		}
		if err := sleep(ctx, retryDelay(w.opts.RetryBaseDelay, attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", w.opts.MaxAttempts, lastErr)
}

func (w *Worker) refreshBacklogMetrics(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = time.Since(stats.OldestPendingAt)
	}
	w.metrics.SetOutboxBacklog(stats.PendingCount, age)
}

// dlqEnvelope — событие корзины вместе с причиной, по которой его не удалось опубликовать.
type dlqEnvelope struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	SessionID      string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

func (w *Worker) publishToDLQ(event domain.OutboxMessage, publishErr error) error {
	if w.opts.DLQPublisher == nil {
		return nil
	}

	payload := json.RawMessage(event.Payload)
	if !json.Valid(payload) {
		raw, _ := json.Marshal(string(event.Payload))
		payload = raw
	}
	body, err := json.Marshal(dlqEnvelope{
		OutboxID:       event.ID,
		AggregateType:  event.AggregateType,
		SessionID:      event.AggregateID,
		EventType:      event.EventType,
		Payload:        payload,
		PublishError:   publishErr.Error(),
		DLQPublishedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}

	dlqEvent := event
	dlqEvent.Payload = body
	if err := w.opts.DLQPublisher.Publish(dlqEvent); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

// bySession делит батч на очереди по сессиям, сохраняя порядок событий внутри каждой.
func bySession(events []domain.OutboxMessage) [][]domain.OutboxMessage {
	index := make(map[string]int)
	var queues [][]domain.OutboxMessage
	for _, event := range events {
		i, ok := index[event.AggregateID]
		if !ok {
			i = len(queues)
			index[event.AggregateID] = i
			queues = append(queues, nil)
		}
		queues[i] = append(queues[i], event)
	}
	return queues
}

// retryDelay удваивает base на каждой следующей попытке, не превышая maxRetryDelay.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
