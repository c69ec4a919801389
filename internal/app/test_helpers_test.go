package app

import (
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func newTestOutboxMessage(i int) domain.OutboxMessage {
	return domain.OutboxMessage{
		AggregateType: "cart",
		AggregateID:   fmt.Sprintf("session-%d", i),
		EventType:     "cart.item_added",
		Payload:       []byte(`{}`),
	}
}
