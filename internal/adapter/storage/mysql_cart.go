package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/vinostock/internal/core/domain"
)

const cartColumns = `id, user_id, checked_out, checkout_pending, version, checkout_date, created_at, updated_at`

// CartStore keeps carts in MySQL. The unique index on open_user_id allows a
// single open cart per user; checkout clears the column.
//
// Every item mutation bumps carts.version under a row lock. FindOpen reads the
// version before the items, so a checkout that loaded a stale cart fails to freeze it.
type CartStore struct {
	db *sql.DB
}

func NewCartStore(db *sql.DB) *CartStore {
	return &CartStore{db: db}
}

func (s *CartStore) FindOpen(ctx context.Context, userID int64) (*domain.Cart, error) {
	cart, err := scanCart(s.db.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE open_user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query open cart: %w", err)
	}

	if cart.Items, err = s.loadItems(ctx, cart.ID); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartStore) CreateOpen(ctx context.Context, userID int64, at time.Time) (*domain.Cart, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO carts (user_id, open_user_id, checked_out, created_at, updated_at)
		VALUES (?, ?, FALSE, ?, ?)`,
		userID, userID, at, at,
	)
	if isDuplicateEntry(err) {
		return nil, fmt.Errorf("open cart for user %d: %w", userID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("insert cart: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("cart id: %w", err)
	}

	return &domain.Cart{
		ID:        id,
		UserID:    userID,
		Items:     []domain.CartItem{},
		CreatedAt: at,
		UpdatedAt: at,
	}, nil
}

func (s *CartStore) UpsertItem(ctx context.Context, cartID, itemID int64, quantity int) (*domain.CartItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// parent row first so concurrent upserts on one cart queue instead of deadlocking
	if err := touchCart(ctx, tx, cartID); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, item_id, quantity) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity)`,
		cartID, itemID, quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert cart item: %w", err)
	}

	item := domain.CartItem{CartID: cartID, ItemID: itemID}
	err = tx.QueryRowContext(ctx, `
		SELECT id, quantity FROM cart_items WHERE cart_id = ? AND item_id = ?`,
		cartID, itemID,
	).Scan(&item.ID, &item.Quantity)
	if err != nil {
		return nil, fmt.Errorf("read cart item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &item, nil
}

func (s *CartStore) UpdateItemQuantity(ctx context.Context, cartID, cartItemID int64, quantity int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := touchCart(ctx, tx, cartID); err != nil {
		return err
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM cart_items WHERE id = ? AND cart_id = ? FOR UPDATE`,
		cartItemID, cartID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("cart item %d: %w", cartItemID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock cart item: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE cart_items SET quantity = ? WHERE id = ?`, quantity, id); err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}

	return tx.Commit()
}

func (s *CartStore) RemoveItem(ctx context.Context, cartID, cartItemID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := touchCart(ctx, tx, cartID); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = ? AND cart_id = ?`, cartItemID, cartID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("cart item %d: %w", cartItemID, domain.ErrNotFound)
	}
	return tx.Commit()
}

func (s *CartStore) FreezeForCheckout(ctx context.Context, cartID, version int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE carts
		SET checkout_pending = TRUE, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND checked_out = FALSE AND checkout_pending = FALSE`,
		time.Now().UTC(), cartID, version,
	)
	if err != nil {
		return fmt.Errorf("freeze cart: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("cart %d at version %d: %w", cartID, version, domain.ErrCartChanged)
	}
	return nil
}

func (s *CartStore) Unfreeze(ctx context.Context, cartID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE carts
		SET checkout_pending = FALSE, version = version + 1, updated_at = ?
		WHERE id = ? AND checked_out = FALSE AND checkout_pending = TRUE`,
		time.Now().UTC(), cartID,
	)
	if err != nil {
		return fmt.Errorf("unfreeze cart: %w", err)
	}
	return nil
}

func (s *CartStore) MarkCheckedOut(ctx context.Context, cartID int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE carts
		SET checked_out = TRUE, checkout_pending = FALSE, checkout_date = ?, open_user_id = NULL, updated_at = ?
		WHERE id = ? AND checked_out = FALSE`,
		at, at, cartID,
	)
	if err != nil {
		return fmt.Errorf("mark cart checked out: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("open cart %d: %w", cartID, domain.ErrNotFound)
	}
	return nil
}

func (s *CartStore) ListCheckedOut(ctx context.Context, userID int64) ([]domain.Cart, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+cartColumns+` FROM carts
		WHERE user_id = ? AND checked_out = TRUE
		ORDER BY checkout_date DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart history: %w", err)
	}

	carts := []domain.Cart{}
	for rows.Next() {
		cart, err := scanCart(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan cart: %w", err)
		}
		carts = append(carts, *cart)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate carts: %w", err)
	}
	rows.Close()

	for i := range carts {
		if carts[i].Items, err = s.loadItems(ctx, carts[i].ID); err != nil {
			return nil, err
		}
	}
	return carts, nil
}

func (s *CartStore) SaveReconciliation(ctx context.Context, rec domain.Reconciliation) error {
	decremented, err := json.Marshal(rec.Decremented)
	if err != nil {
		return fmt.Errorf("encode decremented items: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkout_reconciliations (cart_id, user_id, failed_item_id, reason, decremented, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.CartID, rec.UserID, rec.FailedItemID, rec.Reason, decremented, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reconciliation: %w", err)
	}
	return nil
}

func (s *CartStore) loadItems(ctx context.Context, cartID int64) ([]domain.CartItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cart_id, item_id, quantity FROM cart_items WHERE cart_id = ? ORDER BY id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	items := []domain.CartItem{}
	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.ItemID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// touchCart locks the cart row and bumps its version. Checked-out carts read as
// missing and frozen ones refuse edits.
func touchCart(ctx context.Context, tx *sql.Tx, cartID int64) error {
	var checkedOut, pending bool
	err := tx.QueryRowContext(ctx,
		`SELECT checked_out, checkout_pending FROM carts WHERE id = ? FOR UPDATE`, cartID,
	).Scan(&checkedOut, &pending)
	if errors.Is(err, sql.ErrNoRows) || checkedOut {
		return fmt.Errorf("open cart %d: %w", cartID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock cart: %w", err)
	}
	if pending {
		return fmt.Errorf("cart %d: %w", cartID, domain.ErrCheckoutInProgress)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE carts SET version = version + 1, updated_at = ? WHERE id = ?`, time.Now().UTC(), cartID,
	); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

func scanCart(row rowScanner) (*domain.Cart, error) {
	var (
		cart         domain.Cart
		checkoutDate sql.NullTime
	)
	err := row.Scan(&cart.ID, &cart.UserID, &cart.CheckedOut, &cart.CheckoutPending, &cart.Version,
		&checkoutDate, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if checkoutDate.Valid {
		t := checkoutDate.Time
		cart.CheckoutDate = &t
	}
	return &cart, nil
}
