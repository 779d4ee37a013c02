package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/vinostock/internal/core/domain"
	"github.com/rl1809/vinostock/internal/port"
)

const checkoutLockKeyPrefix = "checkout:"

// CheckoutService turns an open cart into a finalized order. Every item is
// validated before any stock is touched; decrements that already happened are
// not compensated when a later one fails, a reconciliation record is kept instead.
//
// The cart is frozen once validation passes, so its lines cannot change while
// stock is being taken. A cart left frozen by a partial failure is retried with
// the same lines: decrement request ids carry cart, item and quantity, so lines
// that already went through replay instead of decreasing twice.
type CheckoutService struct {
	carts   port.CartRepository
	ledger  port.LedgerClient
	locks   port.Locker
	lockTTL time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func NewCheckoutService(carts port.CartRepository, ledger port.LedgerClient, locks port.Locker, lockTTL time.Duration, logger *zap.Logger) *CheckoutService {
	return &CheckoutService{
		carts:   carts,
		ledger:  ledger,
		locks:   locks,
		lockTTL: lockTTL,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type checkoutAttempt struct {
	userID int64
	cartID int64
	state  domain.CheckoutState
	span   trace.Span
	logger *zap.Logger
}

func (a *checkoutAttempt) moveTo(state domain.CheckoutState) {
	a.logger.Debug("checkout state",
		zap.Int64("user_id", a.userID),
		zap.Int64("cart_id", a.cartID),
		zap.String("from", string(a.state)),
		zap.String("to", string(state)),
	)
	a.state = state
	a.span.SetAttributes(attribute.String("checkout.state", string(state)))
}

func (s *CheckoutService) Checkout(ctx context.Context, userID int64) (*domain.Cart, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", domain.ErrInvalidArgument)
	}

	ctx, span := tracer.Start(ctx, "checkout")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	lockKey := fmt.Sprintf("%s%d", checkoutLockKeyPrefix, userID)
	token, ok, err := s.locks.AcquireLock(ctx, lockKey, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire checkout lock: %w", err)
	}
	if !ok {
		return nil, domain.ErrCheckoutInProgress
	}
	defer func() {
		if err := s.locks.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.logger.Warn("failed to release checkout lock", zap.Int64("user_id", userID), zap.Error(err))
		}
	}()

	attempt := &checkoutAttempt{userID: userID, state: domain.CheckoutOpen, span: span, logger: s.logger}

	cart, err := s.carts.FindOpen(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load open cart: %w", err)
	}
	if cart == nil || cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}
	attempt.cartID = cart.ID
	totals := cart.Totals()

	// a frozen cart already had part of its stock taken, validating again
	// would count that stock twice
	wasPending := cart.CheckoutPending
	if !wasPending {
		attempt.moveTo(domain.CheckoutValidating)
		for _, line := range totals {
			stock, err := s.ledger.GetStock(ctx, line.ItemID)
			if err != nil {
				s.reject(attempt, err)
				return nil, fmt.Errorf("validate item %d: %w", line.ItemID, err)
			}
			if stock.Quantity < line.Quantity {
				err := &domain.InsufficientStockError{ItemID: line.ItemID, Available: stock.Quantity, Requested: line.Quantity}
				s.reject(attempt, err)
				return nil, err
			}
		}

		if err := s.carts.FreezeForCheckout(ctx, cart.ID, cart.Version); err != nil {
			s.reject(attempt, err)
			return nil, fmt.Errorf("freeze cart %d: %w", cart.ID, err)
		}
	}

	decremented := make([]domain.ItemQuantity, 0, len(totals))
	for _, line := range totals {
		requestID := fmt.Sprintf("checkout:%d:%d:%d", cart.ID, line.ItemID, line.Quantity)
		if _, err := s.ledger.DecreaseStock(ctx, requestID, line.ItemID, line.Quantity); err != nil {
			s.reject(attempt, err)
			if len(decremented) == 0 && !wasPending {
				s.unfreeze(ctx, cart.ID)
				return nil, fmt.Errorf("decrease item %d: %w", line.ItemID, err)
			}
			return nil, s.reconcile(ctx, cart, line.ItemID, decremented, err)
		}
		decremented = append(decremented, line)
	}

	now := s.now()
	if err := s.carts.MarkCheckedOut(ctx, cart.ID, now); err != nil {
		s.reject(attempt, err)
		return nil, s.reconcile(ctx, cart, 0, decremented, fmt.Errorf("finalize cart: %w", err))
	}

	attempt.moveTo(domain.CheckoutCommitted)
	cart.CheckedOut = true
	cart.CheckoutDate = &now
	cart.UpdatedAt = now

	s.logger.Info("checkout committed",
		zap.Int64("user_id", userID),
		zap.Int64("cart_id", cart.ID),
		zap.Int("distinct_items", len(totals)),
	)
	return cart, nil
}

func (s *CheckoutService) reject(attempt *checkoutAttempt, cause error) {
	attempt.moveTo(domain.CheckoutRejected)
	attempt.span.RecordError(cause)
	attempt.span.SetStatus(codes.Error, "checkout rejected")
}

func (s *CheckoutService) unfreeze(ctx context.Context, cartID int64) {
	if err := s.carts.Unfreeze(context.WithoutCancel(ctx), cartID); err != nil {
		s.logger.Warn("failed to unfreeze cart", zap.Int64("cart_id", cartID), zap.Error(err))
	}
}

// reconcile records stock that left the ledger for a checkout that did not complete.
func (s *CheckoutService) reconcile(ctx context.Context, cart *domain.Cart, failedItemID int64, decremented []domain.ItemQuantity, cause error) error {
	partial := &domain.PartialCheckoutError{
		CartID:       cart.ID,
		FailedItemID: failedItemID,
		Decremented:  decremented,
		Err:          cause,
	}

	rec := domain.Reconciliation{
		CartID:       cart.ID,
		UserID:       cart.UserID,
		FailedItemID: failedItemID,
		Reason:       cause.Error(),
		Decremented:  decremented,
		CreatedAt:    s.now(),
	}
	if err := s.carts.SaveReconciliation(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Error("failed to save checkout reconciliation",
			zap.Int64("cart_id", cart.ID),
			zap.Any("decremented", decremented),
			zap.Error(err),
		)
	}

	s.logger.Error("partial checkout requires reconciliation",
		zap.Int64("user_id", cart.UserID),
		zap.Int64("cart_id", cart.ID),
		zap.Int64("failed_item_id", failedItemID),
		zap.Any("decremented", decremented),
		zap.Error(cause),
	)
	return partial
}
