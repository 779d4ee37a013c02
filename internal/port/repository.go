package port

import (
	"context"
	"time"

	"github.com/rl1809/vinostock/internal/core/domain"
)

type StockRepository interface {
	// Create persists a new item and, for a positive quantity, its initial INCREASE movement
	Create(ctx context.Context, item domain.StockItem) error

	// Get returns nil without error when the item does not exist
	Get(ctx context.Context, itemID int64) (*domain.StockItem, error)

	List(ctx context.Context) ([]domain.StockItem, error)

	// Increase and Decrease apply the change and append a movement atomically
	Increase(ctx context.Context, itemID int64, amount int, at time.Time) (*domain.StockItem, error)
	Decrease(ctx context.Context, itemID int64, amount int, at time.Time) (*domain.StockItem, error)

	// UpdateMinimum updates the threshold with version check for optimistic locking
	UpdateMinimum(ctx context.Context, item domain.StockItem) error

	// Delete removes the item; movements are kept
	Delete(ctx context.Context, itemID int64) error

	// ListMovements returns movements oldest first
	ListMovements(ctx context.Context, itemID int64) ([]domain.Movement, error)
}

type CartRepository interface {
	// FindOpen returns nil without error when the user has no open cart
	FindOpen(ctx context.Context, userID int64) (*domain.Cart, error)

	// CreateOpen fails with domain.ErrAlreadyExists if another open cart won the race
	CreateOpen(ctx context.Context, userID int64, at time.Time) (*domain.Cart, error)

	// Item mutations bump the cart version. They fail with domain.ErrNotFound on a
	// checked-out cart and domain.ErrCheckoutInProgress on a frozen one

	// UpsertItem adds quantity to the existing row for (cart, item) or creates it
	UpsertItem(ctx context.Context, cartID, itemID int64, quantity int) (*domain.CartItem, error)

	UpdateItemQuantity(ctx context.Context, cartID, cartItemID int64, quantity int) error
	RemoveItem(ctx context.Context, cartID, cartItemID int64) error

	// FreezeForCheckout sets CheckoutPending if the cart is still open at version,
	// otherwise domain.ErrCartChanged
	FreezeForCheckout(ctx context.Context, cartID, version int64) error

	// Unfreeze clears CheckoutPending when a checkout failed before touching stock
	Unfreeze(ctx context.Context, cartID int64) error

	MarkCheckedOut(ctx context.Context, cartID int64, at time.Time) error

	// ListCheckedOut returns the user's finalized carts, newest first
	ListCheckedOut(ctx context.Context, userID int64) ([]domain.Cart, error)

	SaveReconciliation(ctx context.Context, rec domain.Reconciliation) error
}

type AlertRepository interface {
	// Save reports created=false when an alert for the same event already exists
	Save(ctx context.Context, alert domain.StockAlert) (saved *domain.StockAlert, created bool, err error)

	// List returns alerts newest first
	List(ctx context.Context, limit int) ([]domain.StockAlert, error)
}
