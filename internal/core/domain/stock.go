package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementIncrease MovementType = "INCREASE"
	MovementDecrease MovementType = "DECREASE"
)

// MaxStockQuantity is the largest quantity a ledger row can hold.
const MaxStockQuantity = math.MaxInt32

// StockItem is the ledger row for one catalog item.
type StockItem struct {
	ItemID          int64     `json:"itemId"`
	Quantity        int       `json:"quantity"`
	MinimumQuantity int       `json:"minimumQuantity"`
	Version         int       `json:"version"` // optimistic locking
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// AtOrBelowMinimum reports whether the item should raise a low-stock alert.
func (s StockItem) AtOrBelowMinimum() bool {
	return s.Quantity <= s.MinimumQuantity
}

// Movement is an immutable audit record of one stock mutation.
type Movement struct {
	ID       int64        `json:"id"`
	ItemID   int64        `json:"itemId"`
	Type     MovementType `json:"type"`
	Quantity int          `json:"quantity"`
	Date     time.Time    `json:"date"`
}

// CatalogItem is the subset of a catalog record the core reads.
type CatalogItem struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Winery      string          `json:"winery,omitempty"`
	Varietal    string          `json:"varietal,omitempty"`
	Year        int             `json:"year,omitempty"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
}

// StockDetails joins a ledger row with its catalog record.
type StockDetails struct {
	StockItem
	Item CatalogItem `json:"item"`
}
