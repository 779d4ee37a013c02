package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type CheckoutState string

const (
	CheckoutOpen       CheckoutState = "OPEN"
	CheckoutValidating CheckoutState = "VALIDATING"
	CheckoutCommitted  CheckoutState = "COMMITTED"
	CheckoutRejected   CheckoutState = "REJECTED"
)

// Cart is frozen while CheckoutPending is set: its lines are the ones a
// checkout validated and started to decrement.
type Cart struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"userId"`
	CheckedOut      bool       `json:"checkedOut"`
	CheckoutPending bool       `json:"checkoutPending"`
	Version         int64      `json:"-"`
	CheckoutDate    *time.Time `json:"checkoutDate,omitempty"`
	Items           []CartItem `json:"items"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type CartItem struct {
	ID       int64 `json:"id"`
	CartID   int64 `json:"cartId"`
	ItemID   int64 `json:"itemId"`
	Quantity int   `json:"quantity"`
}

type ItemQuantity struct {
	ItemID   int64 `json:"itemId"`
	Quantity int   `json:"quantity"`
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Totals merges line items by catalog item and returns them ordered by item ID.
func (c *Cart) Totals() []ItemQuantity {
	sums := make(map[int64]int, len(c.Items))
	for _, it := range c.Items {
		sums[it.ItemID] += it.Quantity
	}

	totals := make([]ItemQuantity, 0, len(sums))
	for id, qty := range sums {
		totals = append(totals, ItemQuantity{ItemID: id, Quantity: qty})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].ItemID < totals[j].ItemID })

	return totals
}

// Reconciliation records a checkout that decremented stock but did not complete.
type Reconciliation struct {
	ID           int64          `json:"id"`
	CartID       int64          `json:"cartId"`
	UserID       int64          `json:"userId"`
	FailedItemID int64          `json:"failedItemId"`
	Reason       string         `json:"reason"`
	Decremented  []ItemQuantity `json:"decremented"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type QuoteLine struct {
	ItemID    int64           `json:"itemId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// Quote is a priced view of an open cart.
type Quote struct {
	CartID   int64           `json:"cartId"`
	UserID   int64           `json:"userId"`
	Lines    []QuoteLine     `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
}
