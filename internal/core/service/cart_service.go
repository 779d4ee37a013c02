package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/vinostock/internal/core/domain"
	"github.com/rl1809/vinostock/internal/port"
)

type CartService struct {
	repo    port.CartRepository
	catalog port.CatalogClient
	ledger  port.LedgerClient
	logger  *zap.Logger
	now     func() time.Time
}

func NewCartService(repo port.CartRepository, catalog port.CatalogClient, ledger port.LedgerClient, logger *zap.Logger) *CartService {
	return &CartService{
		repo:    repo,
		catalog: catalog,
		ledger:  ledger,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns the user's open cart. Concurrent first calls converge on
// the row that won the unique open-cart index.
func (s *CartService) GetOrCreate(ctx context.Context, userID int64) (*domain.Cart, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", domain.ErrInvalidArgument)
	}

	cart, err := s.repo.FindOpen(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find open cart: %w", err)
	}
	if cart != nil {
		return cart, nil
	}

	cart, err = s.repo.CreateOpen(ctx, userID, s.now())
	if errors.Is(err, domain.ErrAlreadyExists) {
		cart, err = s.repo.FindOpen(ctx, userID)
		if err == nil && cart == nil {
			err = fmt.Errorf("open cart for user %d disappeared after conflict", userID)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create open cart: %w", err)
	}

	s.logger.Debug("cart ready", zap.Int64("user_id", userID), zap.Int64("cart_id", cart.ID))
	return cart, nil
}

// AddItem puts quantity of itemID into the user's open cart.
func (s *CartService) AddItem(ctx context.Context, userID, itemID int64, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidArgument)
	}

	cart, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.AddOrUpdateItem(ctx, cart.ID, itemID, quantity); err != nil {
		return nil, err
	}
	return s.GetOrCreate(ctx, userID)
}

// AddOrUpdateItem checks availability without holding stock, then merges the
// quantity into the existing line for the item if there is one.
func (s *CartService) AddOrUpdateItem(ctx context.Context, cartID, itemID int64, quantity int) (*domain.CartItem, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidArgument)
	}

	if _, err := s.catalog.GetItem(ctx, itemID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("catalog item %d: %w", itemID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("look up catalog item %d: %w", itemID, domain.Upstream(err))
	}

	stock, err := s.ledger.GetStock(ctx, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("stock for item %d: %w", itemID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("look up stock for item %d: %w", itemID, domain.Upstream(err))
	}
	if stock.Quantity < quantity {
		return nil, &domain.InsufficientStockError{ItemID: itemID, Available: stock.Quantity, Requested: quantity}
	}

	item, err := s.repo.UpsertItem(ctx, cartID, itemID, quantity)
	if err != nil {
		return nil, fmt.Errorf("save cart item: %w", err)
	}

	s.logger.Info("cart item saved",
		zap.Int64("cart_id", cartID),
		zap.Int64("item_id", itemID),
		zap.Int("quantity", item.Quantity),
	)
	return item, nil
}

func (s *CartService) UpdateQuantity(ctx context.Context, userID, cartItemID int64, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidArgument)
	}

	cart, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateItemQuantity(ctx, cart.ID, cartItemID, quantity); err != nil {
		return nil, err
	}
	return s.GetOrCreate(ctx, userID)
}

func (s *CartService) RemoveItem(ctx context.Context, userID, cartItemID int64) (*domain.Cart, error) {
	cart, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.RemoveItem(ctx, cart.ID, cartItemID); err != nil {
		return nil, err
	}
	return s.GetOrCreate(ctx, userID)
}

func (s *CartService) History(ctx context.Context, userID int64) ([]domain.Cart, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", domain.ErrInvalidArgument)
	}
	return s.repo.ListCheckedOut(ctx, userID)
}

// Quote prices the open cart with current catalog prices.
func (s *CartService) Quote(ctx context.Context, userID int64) (*domain.Quote, error) {
	cart, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	quote := &domain.Quote{
		CartID:   cart.ID,
		UserID:   userID,
		Lines:    []domain.QuoteLine{},
		Subtotal: decimal.Zero,
	}
	for _, line := range cart.Totals() {
		item, err := s.catalog.GetItem(ctx, line.ItemID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("catalog item %d: %w", line.ItemID, domain.ErrNotFound)
			}
			return nil, fmt.Errorf("price item %d: %w", line.ItemID, domain.Upstream(err))
		}

		total := item.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		quote.Lines = append(quote.Lines, domain.QuoteLine{
			ItemID:    line.ItemID,
			Name:      item.Name,
			Quantity:  line.Quantity,
			UnitPrice: item.Price,
			LineTotal: total,
		})
		quote.Subtotal = quote.Subtotal.Add(total)
	}
	return quote, nil
}
