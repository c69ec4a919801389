package kafka

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher публикует outbox-сообщения в заданный topic.
// Ключ сообщения — id сессии, поэтому события одной корзины попадают в одну партицию по порядку.
type OutboxTopicPublisher struct {
	producer      *Producer
	topic         string
	originalTopic string
}

// Envelope — формат сообщения в topic событий корзин.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewOutboxPublisher создаёт паблишер событий корзин; пустой topic — storefront.cart.events.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicCartEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

// NewDLQPublisher создаёт паблишер в DLQ; сообщения помечаются заголовком исходного topic.
func NewDLQPublisher(producer *Producer, originalTopic string) *OutboxTopicPublisher {
	if originalTopic == "" {
		originalTopic = TopicCartEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: TopicDeadLetterQueue, originalTopic: originalTopic}
}

// Topic возвращает topic публикации.
func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	payload := json.RawMessage(event.Payload)
	if !json.Valid(payload) {
		// Не-JSON полезная нагрузка публикуется строкой, чтобы не ломать envelope.
		quoted, err := json.Marshal(string(event.Payload))
		if err != nil {
			return err
		}
		payload = quoted
	}

	now := time.Now().UTC()
	envelope := Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   now,
	}

	var headers []sarama.RecordHeader
	if p.originalTopic != "" {
		headers = append(headers,
			sarama.RecordHeader{Key: []byte(HeaderOriginalTopic), Value: []byte(p.originalTopic)},
			sarama.RecordHeader{Key: []byte(HeaderFailedAt), Value: []byte(now.Format(time.RFC3339Nano))},
		)
	}

	return p.producer.PublishEvent(p.topic, key, envelope, headers...)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
