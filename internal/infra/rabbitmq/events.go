package rabbitmq

import (
	"context"
	"time"

	"credit-settlement/internal/domain/ports/adapter"
)

const (
	RoutingSettlementCompleted = "settlement.completed"
	RoutingWalletAdjusted      = "wallet.adjusted"
)

// UserChangedEvent is the message other services consume to drop their caches.
type UserChangedEvent struct {
	adapter.SettlementEvent
	OccurredAt time.Time `json:"occurred_at"`
}

var _ adapter.CacheInvalidator = (*EventInvalidator)(nil)

// EventInvalidator broadcasts user changes on the settlement exchange.
type EventInvalidator struct {
	pub      Publisher
	exchange string
	now      func() time.Time
}

func NewEventInvalidator(pub Publisher, exchange string) *EventInvalidator {
	return &EventInvalidator{pub: pub, exchange: exchange, now: time.Now}
}

func (e *EventInvalidator) InvalidateUser(ctx context.Context, ev adapter.SettlementEvent) error {
	key := RoutingSettlementCompleted
	if ev.Kind == "wallet" {
		key = RoutingWalletAdjusted
	}
	return e.pub.Publish(ctx, e.exchange, key, UserChangedEvent{SettlementEvent: ev, OccurredAt: e.now().UTC()})
}
