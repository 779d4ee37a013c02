package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/rl1809/vinostock/internal/core/domain"
	"github.com/rl1809/vinostock/internal/port"
)

const (
	ledgerRequestKeyPrefix = "ledger:request:"
	maxVersionRetries      = 3
)

var tracer = otel.Tracer("github.com/rl1809/vinostock/internal/core/service")

type StockService struct {
	repo      port.StockRepository
	catalog   port.CatalogClient
	publisher port.AlertPublisher
	requests  port.IdempotencyStore
	logger    *zap.Logger
	now       func() time.Time
}

func NewStockService(
	repo port.StockRepository,
	catalog port.CatalogClient,
	publisher port.AlertPublisher,
	requests port.IdempotencyStore,
	logger *zap.Logger,
) *StockService {
	return &StockService{
		repo:      repo,
		catalog:   catalog,
		publisher: publisher,
		requests:  requests,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *StockService) CreateItem(ctx context.Context, itemID int64, initialQuantity, minimumQuantity int) (*domain.StockItem, error) {
	if itemID <= 0 {
		return nil, fmt.Errorf("%w: item id must be positive", domain.ErrInvalidArgument)
	}
	if initialQuantity < 0 || minimumQuantity < 0 {
		return nil, fmt.Errorf("%w: quantities must not be negative", domain.ErrInvalidArgument)
	}
	if initialQuantity > domain.MaxStockQuantity || minimumQuantity > domain.MaxStockQuantity {
		return nil, fmt.Errorf("%w: quantities must not exceed %d", domain.ErrInvalidArgument, domain.MaxStockQuantity)
	}

	if _, err := s.catalog.GetItem(ctx, itemID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("catalog item %d: %w", itemID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("validate catalog item %d: %w", itemID, domain.Upstream(err))
	}

	now := s.now()
	item := domain.StockItem{
		ItemID:          itemID,
		Quantity:        initialQuantity,
		MinimumQuantity: minimumQuantity,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}

	s.logger.Info("stock item created",
		zap.Int64("item_id", itemID),
		zap.Int("quantity", initialQuantity),
		zap.Int("minimum_quantity", minimumQuantity),
	)
	return &item, nil
}

func (s *StockService) Get(ctx context.Context, itemID int64) (*domain.StockItem, error) {
	item, err := s.repo.Get(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get stock item: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("stock item %d: %w", itemID, domain.ErrNotFound)
	}
	return item, nil
}

func (s *StockService) List(ctx context.Context) ([]domain.StockItem, error) {
	return s.repo.List(ctx)
}

// Details joins the ledger row with its catalog record.
func (s *StockService) Details(ctx context.Context, itemID int64) (*domain.StockDetails, error) {
	item, err := s.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}

	catalogItem, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("catalog item %d: %w", itemID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("load catalog item %d: %w", itemID, domain.Upstream(err))
	}

	return &domain.StockDetails{StockItem: *item, Item: *catalogItem}, nil
}

// Increase rejects an amount that would push the item past MaxStockQuantity.
func (s *StockService) Increase(ctx context.Context, itemID int64, amount int) (*domain.StockItem, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}
	if amount > domain.MaxStockQuantity {
		return nil, fmt.Errorf("%w: amount must not exceed %d", domain.ErrInvalidArgument, domain.MaxStockQuantity)
	}

	ctx, span := tracer.Start(ctx, "stock.increase")
	defer span.End()
	span.SetAttributes(attribute.Int64("item.id", itemID), attribute.Int("amount", amount))

	item, err := s.repo.Increase(ctx, itemID, amount, s.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "increase failed")
		return nil, err
	}

	s.logger.Info("stock increased", zap.Int64("item_id", itemID), zap.Int("amount", amount), zap.Int("quantity", item.Quantity))
	return item, nil
}

// Decrease rejects a request that would leave the item negative. A resulting
// quantity at or below the minimum publishes one low-stock event.
func (s *StockService) Decrease(ctx context.Context, itemID int64, amount int) (*domain.StockItem, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}

	ctx, span := tracer.Start(ctx, "stock.decrease")
	defer span.End()
	span.SetAttributes(attribute.Int64("item.id", itemID), attribute.Int("amount", amount))

	item, err := s.repo.Decrease(ctx, itemID, amount, s.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decrease failed")
		return nil, err
	}

	s.logger.Info("stock decreased", zap.Int64("item_id", itemID), zap.Int("amount", amount), zap.Int("quantity", item.Quantity))

	if item.AtOrBelowMinimum() {
		span.SetAttributes(attribute.Bool("stock.low", true))
		s.publishLowStock(ctx, *item)
	}
	return item, nil
}

// DecreaseOnce applies Decrease at most once per requestID. A replayed request
// returns the current snapshot without touching stock; reusing a requestID for
// another item or amount is an invalid argument. An empty requestID behaves
// like Decrease.
func (s *StockService) DecreaseOnce(ctx context.Context, requestID string, itemID int64, amount int) (*domain.StockItem, bool, error) {
	if requestID == "" {
		item, err := s.Decrease(ctx, itemID, amount)
		return item, false, err
	}
	if amount <= 0 {
		return nil, false, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}

	key := ledgerRequestKeyPrefix + requestID
	fingerprint := fmt.Sprintf("%d:%d", itemID, amount)
	claimed, ok, err := s.requests.SetIdempotency(ctx, key, fingerprint)
	if err != nil {
		return nil, false, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok && claimed != fingerprint {
		return nil, false, fmt.Errorf("%w: request %s was already used for item:amount %s",
			domain.ErrInvalidArgument, requestID, claimed)
	}
	if !ok {
		s.logger.Info("replayed decrease request", zap.String("request_id", requestID), zap.Int64("item_id", itemID))
		item, err := s.Get(ctx, itemID)
		return item, true, err
	}

	item, err := s.Decrease(ctx, itemID, amount)
	if err != nil {
		if clearErr := s.requests.ClearIdempotency(context.WithoutCancel(ctx), key); clearErr != nil {
			s.logger.Error("failed to release request key", zap.String("request_id", requestID), zap.Error(clearErr))
		}
		return nil, false, err
	}
	return item, false, nil
}

func (s *StockService) SetMinimumQuantity(ctx context.Context, itemID int64, minimum int) (*domain.StockItem, error) {
	if minimum < 0 {
		return nil, fmt.Errorf("%w: minimum quantity must not be negative", domain.ErrInvalidArgument)
	}

	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		item, err := s.Get(ctx, itemID)
		if err != nil {
			return nil, err
		}

		item.MinimumQuantity = minimum
		item.UpdatedAt = s.now()
		err = s.repo.UpdateMinimum(ctx, *item)
		if errors.Is(err, domain.ErrOptimisticLock) {
			continue
		}
		if err != nil {
			return nil, err
		}

		item.Version++
		return item, nil
	}

	return nil, fmt.Errorf("set minimum quantity for item %d: %w", itemID, domain.ErrOptimisticLock)
}

func (s *StockService) Delete(ctx context.Context, itemID int64) error {
	if err := s.repo.Delete(ctx, itemID); err != nil {
		return err
	}
	s.logger.Info("stock item deleted", zap.Int64("item_id", itemID))
	return nil
}

// ListMovements returns the item's history oldest first. It stays available
// after the item itself was deleted.
func (s *StockService) ListMovements(ctx context.Context, itemID int64) ([]domain.Movement, error) {
	return s.repo.ListMovements(ctx, itemID)
}

func (s *StockService) publishLowStock(ctx context.Context, item domain.StockItem) {
	event := domain.NewLowStockEvent(item, s.now())
	if err := s.publisher.PublishLowStock(ctx, event); err != nil {
		s.logger.Warn("failed to publish low stock alert",
			zap.Int64("item_id", item.ItemID),
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("low stock alert published",
		zap.Int64("item_id", item.ItemID),
		zap.String("event_id", event.EventID),
		zap.Int("quantity", item.Quantity),
		zap.Int("minimum_quantity", item.MinimumQuantity),
	)
}
