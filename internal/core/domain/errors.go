package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrCheckoutInProgress  = errors.New("checkout already in progress")
	ErrCartChanged         = errors.New("cart changed during checkout")
	ErrOptimisticLock      = errors.New("optimistic lock conflict")
)

// InsufficientStockError names the item that could not cover a request.
type InsufficientStockError struct {
	ItemID    int64 `json:"itemId"`
	Available int   `json:"available"`
	Requested int   `json:"requested"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d: available %d, requested %d",
		e.ItemID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// PartialCheckoutError is returned when a checkout failed after some items were
// already decremented. Those decrements are not rolled back.
type PartialCheckoutError struct {
	CartID       int64
	FailedItemID int64
	Decremented  []ItemQuantity
	Err          error
}

func (e *PartialCheckoutError) Error() string {
	return fmt.Sprintf("checkout of cart %d failed at item %d after %d decrements: %v",
		e.CartID, e.FailedItemID, len(e.Decremented), e.Err)
}

func (e *PartialCheckoutError) Unwrap() error {
	return e.Err
}

// Upstream marks err as a collaborator failure unless it already is one.
func Upstream(err error) error {
	if err == nil || errors.Is(err, ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}
