package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LowStockEvent is published when a decrease leaves an item at or below its minimum.
type LowStockEvent struct {
	EventID         string    `json:"event_id"`
	ItemID          int64     `json:"item_id"`
	Quantity        int       `json:"quantity"`
	MinimumQuantity int       `json:"minimum_quantity"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func NewLowStockEvent(item StockItem, at time.Time) LowStockEvent {
	return LowStockEvent{
		EventID:         uuid.NewString(),
		ItemID:          item.ItemID,
		Quantity:        item.Quantity,
		MinimumQuantity: item.MinimumQuantity,
		OccurredAt:      at.UTC(),
	}
}

// DedupKey identifies the logical event. Events from older publishers carry no ID.
func (e LowStockEvent) DedupKey() string {
	if e.EventID != "" {
		return e.EventID
	}
	return fmt.Sprintf("item-%d-%d", e.ItemID, e.OccurredAt.UnixNano())
}

func (e LowStockEvent) Message() string {
	return fmt.Sprintf("Stock Alert: item %d has reached minimum stock level (quantity %d, minimum %d).",
		e.ItemID, e.Quantity, e.MinimumQuantity)
}

type StockAlert struct {
	ID        int64     `json:"id"`
	EventID   string    `json:"eventId"`
	ItemID    int64     `json:"itemId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
