package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	clientID = "storefront"

	sendRetries = 5
)

// Producer — синхронный producer событий корзин; ключ записи — id сессии.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
}

// NewProducer подключается к brokers с настройками producerConfig.
func NewProducer(brokers []string) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer to %v: %w", brokers, err)
	}
	return NewProducerFromSync(producer), nil
}

// producerConfig — идемпотентная доставка с подтверждением всех реплик:
// повторная отправка после сбоя не дублирует событие корзины и не меняет порядок в партиции.
func producerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Idempotent = true
	config.Producer.Retry.Max = sendRetries
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Net.MaxOpenRequests = 1
	return config
}

// NewProducerFromSync оборачивает готовый sarama.SyncProducer (mocks в тестах).
func NewProducerFromSync(producer sarama.SyncProducer) *Producer {
	return &Producer{
		producer: producer,
		logger:   log.WithField("component", "kafka-producer"),
	}
}

// PublishEvent кодирует event в JSON и отправляет его в topic с ключом sessionID.
func (p *Producer) PublishEvent(topic, sessionID string, event any, headers ...sarama.RecordHeader) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event for session %s: %w", sessionID, err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(sessionID),
		Value:     sarama.ByteEncoder(value),
		Headers:   headers,
		Timestamp: time.Now(),
	}
	logger := p.logger.WithFields(log.Fields{"topic": topic, "session_id": sessionID})

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		logger.WithError(err).Warn("kafka rejected cart event")
		return fmt.Errorf("send cart event to %s: %w", topic, err)
	}
	logger.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("cart event delivered")
	return nil
}

// Close дожидается отправки и закрывает соединения с брокерами.
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
