package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/events"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

// initKafkaProducer создаёт producer, если список брокеров не пустой.
// Возвращает nil, nil для пустого списка.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without cart events")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает producer, если он есть.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// cartEvents — цепочка recorder → outbox → worker → kafka.
type cartEvents struct {
	recorder *events.OutboxRecorder
	worker   *outbox.Worker
	producer *kafka.Producer
}

func newCartEvents(cfg Config, repo domain.OutboxRepository, producer *kafka.Producer, m *metrics.Metrics, logger *log.Entry) *cartEvents {
	publisher := kafka.NewOutboxPublisher(producer, kafka.TopicCartEvents)
	worker := outbox.NewWorker(repo, publisher,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(m),
		outbox.WithDLQPublisher(kafka.NewDLQPublisher(producer, publisher.Topic())),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		outbox.WithConcurrency(cfg.OutboxConcurrency),
	)
	recorder := events.NewOutboxRecorder(repo,
		events.WithLogger(logger.WithField("component", "cart-events")),
		events.WithMetrics(m),
	)
	return &cartEvents{recorder: recorder, worker: worker, producer: producer}
}

// shutdown дописывает буфер recorder в outbox, публикует остаток и закрывает producer.
// Сторы корзин к этому моменту уже закрыты, новых событий нет.
func (e *cartEvents) shutdown(ctx context.Context, logger *log.Entry) {
	if e == nil {
		return
	}
	if err := e.recorder.Close(ctx); err != nil {
		logger.WithError(err).Warn("cart events recorder did not drain in time")
	}
	e.worker.Drain(ctx)
	closeKafka(e.producer, logger)
}
