package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rl1809/vinostock/internal/core/domain"
)

type stockServicer interface {
	CreateItem(ctx context.Context, itemID int64, initialQuantity, minimumQuantity int) (*domain.StockItem, error)
	Get(ctx context.Context, itemID int64) (*domain.StockItem, error)
	List(ctx context.Context) ([]domain.StockItem, error)
	Details(ctx context.Context, itemID int64) (*domain.StockDetails, error)
	Increase(ctx context.Context, itemID int64, amount int) (*domain.StockItem, error)
	DecreaseOnce(ctx context.Context, requestID string, itemID int64, amount int) (*domain.StockItem, bool, error)
	SetMinimumQuantity(ctx context.Context, itemID int64, minimum int) (*domain.StockItem, error)
	Delete(ctx context.Context, itemID int64) error
	ListMovements(ctx context.Context, itemID int64) ([]domain.Movement, error)
}

type CreateStockRequest struct {
	ItemID          int64 `json:"itemId" validate:"required,gt=0"`
	Quantity        *int  `json:"quantity" validate:"required,gte=0"`
	MinimumQuantity *int  `json:"minimumQuantity" validate:"omitempty,gte=0"`
}

type InventoryHandler struct {
	stock  stockServicer
	logger *zap.Logger
}

func NewInventoryHandler(stock stockServicer, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{stock: stock, logger: logger}
}

func (h *InventoryHandler) RegisterRoutes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/", ErrorHandler(h.logger, h.list))
		r.Post("/", ErrorHandler(h.logger, h.create))
		r.Get("/movements/{itemId}", ErrorHandler(h.logger, h.movements))
		r.Get("/{itemId}", ErrorHandler(h.logger, h.details))
		r.Post("/{itemId}/increase", ErrorHandler(h.logger, h.increase))
		r.Post("/{itemId}/decrease", ErrorHandler(h.logger, h.decrease))
		r.Put("/{itemId}/minimum", ErrorHandler(h.logger, h.setMinimum))
		r.Delete("/{itemId}", ErrorHandler(h.logger, h.delete))
	})
}

func (h *InventoryHandler) list(w http.ResponseWriter, r *http.Request) error {
	items, err := h.stock.List(r.Context())
	if err != nil {
		return err
	}
	return writeSuccess(w, http.StatusOK, "inventory listed", items)
}

func (h *InventoryHandler) create(w http.ResponseWriter, r *http.Request) error {
	var req CreateStockRequest
	if err := decodeAndValidate(r, &req); err != nil {
		return err
	}

	minimum := 0
	if req.MinimumQuantity != nil {
		minimum = *req.MinimumQuantity
	}

	item, err := h.stock.CreateItem(r.Context(), req.ItemID, *req.Quantity, minimum)
	if err != nil {
		return err
	}
	return writeSuccess(w, http.StatusCreated, "stock item created", item)
}

func (h *InventoryHandler) details(w http.ResponseWriter, r *http.Request) error {
	itemID, err := pathInt64(r, "itemId")
	if err != nil {
		return err
	}

	details, err := h.stock.Details(r.Context(), itemID)
	if err != nil {
		return err
	}
	return writeSuccess(w, http.StatusOK, "stock item found", details)
}

func (h *InventoryHandler) increase(w http.ResponseWriter, r *http.Request) error {
	itemID, err := pathInt64(r, "itemId")
	if err != nil {
		return err
	}
	amount, err := queryInt(r, "amount")
	if err != nil {
		return err
	}

	item, err := h.stock.Increase(r.Context(), itemID, amount)
	if err != nil {
		return err
	}
	return writeSuccess(w, http.StatusOK, "stock increased", item)
}

// decrease honours an Idempotency-Key header so a retried request is applied once.
// Reusing a key for another item or amount is a 400.
func (h *InventoryHandler) decrease(w http.ResponseWriter, r *http.Request) error {
	itemID, err := pathInt64(r, "itemId")
	if err != nil {
		return err
	}
	amount, err := queryInt(r, "amount")
	if err != nil {
		return err
	}

	item, replayed, err := h.stock.DecreaseOnce(r.Context(), r.Header.Get("Idempotency-Key"), itemID, amount)
	if err != nil {
		return err
	}
	if replayed {
		return writeSuccess(w, http.StatusOK, "request already applied", item)
	}
	return writeSuccess(w, http.StatusOK, "stock decreased", item)
}

func (h *InventoryHandler) setMinimum(w http.ResponseWriter, r *http.Request) error {
	itemID, err := pathInt64(r, "itemId")
	if err != nil {
		return err
	}
	value, err := queryInt(r, "value")
	if err != nil {
		return err
	}

	item, err := h.stock.SetMinimumQuantity(r.Context(), itemID, value)
	if err != nil {
		return err
	}
	return writeSuccess(w, http.StatusOK, "minimum quantity updated", item)
}

func (h *InventoryHandler) delete(w http.ResponseWriter, r *http.Request) error {
	itemID, err := pathInt64(r, "itemId")
	if err != nil {
		return err
	}

	if err := h.stock.Delete(r.Context(), itemID); err != nil {
		return err
	}
	return writeSuccess(w, http.StatusOK, "stock item deleted", nil)
}

func (h *InventoryHandler) movements(w http.ResponseWriter, r *http.Request) error {
	itemID, err := pathInt64(r, "itemId")
	if err != nil {
		return err
	}

	moves, err := h.stock.ListMovements(r.Context(), itemID)
	if err != nil {
		return err
	}
	return writeSuccess(w, http.StatusOK, "movements listed", moves)
}
