package notify

import (
	"context"
	"encoding/json"
	"log"
)

const (
	EventBalanceUpdated = "balance_updated"
	EventTradeReceived  = "trade_received"
	EventTradeCompleted = "trade_completed"
	EventTradeFailed    = "trade_failed"
	EventTradeDeclined  = "trade_declined"
	EventTradeCancelled = "trade_cancelled"
	EventTradeExpired   = "trade_expired"
	EventNFTReceived    = "nft_received"
)

type Outbox interface {
	Enqueue(ctx context.Context, userID int64, eventType, payload string) error
}

// Notifier writes user notifications to the outbox. Delivery failures never
// reach the caller.
type Notifier struct {
	outbox Outbox
}

func New(outbox Outbox) *Notifier {
	return &Notifier{outbox: outbox}
}

func (n *Notifier) Notify(ctx context.Context, userID int64, eventType string, payload map[string]any) {
	if n == nil || n.outbox == nil || userID <= 0 {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notify %s: encode payload: %v", eventType, err)
		return
	}
	if err := n.outbox.Enqueue(ctx, userID, eventType, string(data)); err != nil {
		log.Printf("notify %s for user %d failed: %v", eventType, userID, err)
	}
}
