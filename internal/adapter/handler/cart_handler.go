package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rl1809/vinostock/internal/core/domain"
)

type cartServicer interface {
	GetOrCreate(ctx context.Context, userID int64) (*domain.Cart, error)
	AddItem(ctx context.Context, userID, itemID int64, quantity int) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, userID, cartItemID int64, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, cartItemID int64) (*domain.Cart, error)
	History(ctx context.Context, userID int64) ([]domain.Cart, error)
	Quote(ctx context.Context, userID int64) (*domain.Quote, error)
}

type checkouter interface {
	Checkout(ctx context.Context, userID int64) (*domain.Cart, error)
}

type CartHandler struct {
	carts    cartServicer
	checkout checkouter
	logger   *zap.Logger
}

func NewCartHandler(carts cartServicer, checkout checkouter, logger *zap.Logger) *CartHandler {
	return &CartHandler{carts: carts, checkout: checkout, logger: logger}
}

func (h *CartHandler) RegisterRoutes(r chi.Router) {
	r.Route("/cart/{userId}", func(r chi.Router) {
		r.Get("/", ErrorHandler(h.logger, h.get))
		r.Post("/add", ErrorHandler(h.logger, h.add))
		r.Put("/update", ErrorHandler(h.logger, h.update))
		r.Delete("/remove", ErrorHandler(h.logger, h.remove))
		r.Get("/quote", ErrorHandler(h.logger, h.quote))
		r.Post("/checkout", ErrorHandler(h.logger, h.checkoutCart))
		r.Get("/history", ErrorHandler(h.logger, h.history))
	})
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathInt64(r, "userId")
	if err != nil {
		return err
	}

	cart, err := h.carts.GetOrCreate(r.Context(), userID)
	if err != nil {
		return err
	}
	return writeSuccess(w, http.StatusOK, "cart loaded", cart)
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathInt64(r, "userId")
	if err != nil {
		return err
	}
	itemID, err := queryInt64(r, "itemId")
	if err != nil {
		return err
	}
	quantity, err := queryInt(r, "quantity")
	if err != nil {
		return err
	}

	cart, err := h.carts.AddItem(r.Context(), userID, itemID, quantity)
	if err != nil {
		return err
	}
	return writeSuccess(w, http.StatusOK, "item added to cart", cart)
}

// update changes a cart line; itemId names the cart line, not the wine.
func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathInt64(r, "userId")
	if err != nil {
		return err
	}
	lineID, err := queryInt64(r, "itemId")
	if err != nil {
		return err
	}
	quantity, err := queryInt(r, "quantity")
	if err != nil {
		return err
	}

	cart, err := h.carts.UpdateQuantity(r.Context(), userID, lineID, quantity)
	if err != nil {
		return err
	}
	return writeSuccess(w, http.StatusOK, "cart item updated", cart)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathInt64(r, "userId")
	if err != nil {
		return err
	}
	lineID, err := queryInt64(r, "itemId")
	if err != nil {
		return err
	}

	cart, err := h.carts.RemoveItem(r.Context(), userID, lineID)
	if err != nil {
		return err
	}
	return writeSuccess(w, http.StatusOK, "cart item removed", cart)
}

func (h *CartHandler) quote(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathInt64(r, "userId")
	if err != nil {
		return err
	}

	quote, err := h.carts.Quote(r.Context(), userID)
	if err != nil {
		return err
	}
	return writeSuccess(w, http.StatusOK, "cart priced", quote)
}

func (h *CartHandler) checkoutCart(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathInt64(r, "userId")
	if err != nil {
		return err
	}

	cart, err := h.checkout.Checkout(r.Context(), userID)
	if err != nil {
		return err
	}
	return writeSuccess(w, http.StatusOK, "checkout completed", cart)
}

func (h *CartHandler) history(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathInt64(r, "userId")
	if err != nil {
		return err
	}

	carts, err := h.carts.History(r.Context(), userID)
	if err != nil {
		return err
	}
	return writeSuccess(w, http.StatusOK, "order history", carts)
}
