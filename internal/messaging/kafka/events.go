package kafka

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType определяет тип события корзины.
type EventType string

const (
	EventTypeCartItemAdded       EventType = "cart.item_added"
	EventTypeCartItemRemoved     EventType = "cart.item_removed"
	EventTypeCartQuantityUpdated EventType = "cart.quantity_updated"
	EventTypeCartCleared         EventType = "cart.cleared"
)

// Topics для Kafka
const (
	TopicCartEvents      = "storefront.cart.events"
	TopicDeadLetterQueue = "storefront.dlq" // сообщения, не опубликованные после всех попыток
)

// Kafka headers сообщений DLQ
const (
	HeaderOriginalTopic = "x-original-topic"
	HeaderFailedAt      = "x-failed-at"
)

// CartEvent — полезная нагрузка события корзины.
type CartEvent struct {
	EventType  EventType       `json:"event_type"`
	SessionID  string          `json:"session_id"`
	ItemID     string          `json:"item_id,omitempty"`
	Quantity   int             `json:"quantity,omitempty"`
	TotalItems int             `json:"total_items"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewCartEvent создаёт событие корзины с текущим временем.
func NewCartEvent(eventType EventType, sessionID, itemID string, quantity, totalItems int, totalPrice decimal.Decimal) *CartEvent {
	return &CartEvent{
		EventType:  eventType,
		SessionID:  sessionID,
		ItemID:     itemID,
		Quantity:   quantity,
		TotalItems: totalItems,
		TotalPrice: totalPrice,
		Timestamp:  time.Now().UTC(),
	}
}
