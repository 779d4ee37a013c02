package port

import (
	"context"

	"github.com/rl1809/vinostock/internal/core/domain"
)

// CatalogClient fails with domain.ErrNotFound for unknown items and
// domain.ErrUpstreamUnavailable when the catalog cannot be reached.
type CatalogClient interface {
	GetItem(ctx context.Context, itemID int64) (*domain.CatalogItem, error)
}

// LedgerClient is the cart side view of the stock ledger.
type LedgerClient interface {
	GetStock(ctx context.Context, itemID int64) (*domain.StockItem, error)

	// DecreaseStock is applied at most once per requestID
	DecreaseStock(ctx context.Context, requestID string, itemID int64, amount int) (*domain.StockItem, error)
}

type AlertPublisher interface {
	PublishLowStock(ctx context.Context, event domain.LowStockEvent) error
}

type AlertBroadcaster interface {
	Broadcast(ctx context.Context, alert domain.StockAlert) error
}

type AlertNotifier interface {
	Notify(ctx context.Context, alert domain.StockAlert) error
}
