package storage

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rl1809/vinostock/internal/core/domain"
)

func resetCarts(t *testing.T, db *sql.DB, userID int64) {
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `DELETE FROM carts WHERE user_id = ?`, userID); err != nil {
		t.Fatalf("cleanup carts: %v", err)
	}
}

func TestCartStore_CreateOpenIsUnique(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewCartStore(db)
	resetCarts(t, db, 700001)

	cart, err := store.CreateOpen(ctx, 700001, time.Now().UTC())
	if err != nil {
		t.Fatalf("CreateOpen failed: %v", err)
	}

	_, err = store.CreateOpen(ctx, 700001, time.Now().UTC())
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got: %v", err)
	}

	open, err := store.FindOpen(ctx, 700001)
	if err != nil {
		t.Fatalf("FindOpen failed: %v", err)
	}
	if open == nil || open.ID != cart.ID {
		t.Errorf("expected open cart %d, got %+v", cart.ID, open)
	}
}

func TestCartStore_ConcurrentCreateOpen(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewCartStore(db)
	resetCarts(t, db, 700002)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CreateOpen(ctx, 700002, time.Now().UTC())
			if err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	var count int
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM carts WHERE user_id = ?`, 700002).Scan(&count)
	if count != 1 {
		t.Errorf("expected exactly 1 cart row, got %d", count)
	}
}

func TestCartStore_UpsertMergesQuantity(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewCartStore(db)
	resetCarts(t, db, 700003)

	cart, err := store.CreateOpen(ctx, 700003, time.Now().UTC())
	if err != nil {
		t.Fatalf("CreateOpen failed: %v", err)
	}

	if _, err := store.UpsertItem(ctx, cart.ID, 42, 2); err != nil {
		t.Fatalf("UpsertItem failed: %v", err)
	}
	item, err := store.UpsertItem(ctx, cart.ID, 42, 3)
	if err != nil {
		t.Fatalf("UpsertItem failed: %v", err)
	}
	if item.Quantity != 5 {
		t.Errorf("expected merged quantity 5, got %d", item.Quantity)
	}

	open, _ := store.FindOpen(ctx, 700003)
	if len(open.Items) != 1 {
		t.Errorf("expected a single cart item row, got %d", len(open.Items))
	}
}

func TestCartStore_UpdateAndRemoveItem(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewCartStore(db)
	resetCarts(t, db, 700004)

	cart, _ := store.CreateOpen(ctx, 700004, time.Now().UTC())
	item, err := store.UpsertItem(ctx, cart.ID, 7, 1)
	if err != nil {
		t.Fatalf("UpsertItem failed: %v", err)
	}

	if err := store.UpdateItemQuantity(ctx, cart.ID, item.ID, 4); err != nil {
		t.Fatalf("UpdateItemQuantity failed: %v", err)
	}
	open, _ := store.FindOpen(ctx, 700004)
	if open.Items[0].Quantity != 4 {
		t.Errorf("expected quantity 4, got %d", open.Items[0].Quantity)
	}

	if err := store.UpdateItemQuantity(ctx, cart.ID, item.ID+1000, 4); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}

	if err := store.RemoveItem(ctx, cart.ID, item.ID); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	if err := store.RemoveItem(ctx, cart.ID, item.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestCartStore_CheckoutFreesOpenSlot(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewCartStore(db)
	resetCarts(t, db, 700005)

	cart, _ := store.CreateOpen(ctx, 700005, time.Now().UTC())
	store.UpsertItem(ctx, cart.ID, 1, 1)

	if err := store.MarkCheckedOut(ctx, cart.ID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkCheckedOut failed: %v", err)
	}
	if err := store.MarkCheckedOut(ctx, cart.ID, time.Now().UTC()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for second checkout, got: %v", err)
	}

	open, _ := store.FindOpen(ctx, 700005)
	if open != nil {
		t.Error("expected no open cart after checkout")
	}

	if _, err := store.CreateOpen(ctx, 700005, time.Now().UTC()); err != nil {
		t.Fatalf("expected a new open cart after checkout, got: %v", err)
	}

	history, err := store.ListCheckedOut(ctx, 700005)
	if err != nil {
		t.Fatalf("ListCheckedOut failed: %v", err)
	}
	if len(history) != 1 || !history[0].CheckedOut || history[0].CheckoutDate == nil {
		t.Errorf("expected one checked-out cart, got %+v", history)
	}
	if len(history[0].Items) != 1 {
		t.Errorf("expected history to include items, got %d", len(history[0].Items))
	}
}

func TestCartStore_FreezeBlocksEdits(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewCartStore(db)
	resetCarts(t, db, 700007)

	cart, _ := store.CreateOpen(ctx, 700007, time.Now().UTC())
	item, err := store.UpsertItem(ctx, cart.ID, 1, 3)
	if err != nil {
		t.Fatalf("UpsertItem failed: %v", err)
	}

	loaded, _ := store.FindOpen(ctx, 700007)
	if loaded.Version <= cart.Version {
		t.Errorf("expected upsert to bump version past %d, got %d", cart.Version, loaded.Version)
	}

	// an edit after the load invalidates the loaded version
	if _, err := store.UpsertItem(ctx, cart.ID, 2, 1); err != nil {
		t.Fatalf("UpsertItem failed: %v", err)
	}
	if err := store.FreezeForCheckout(ctx, cart.ID, loaded.Version); !errors.Is(err, domain.ErrCartChanged) {
		t.Fatalf("expected ErrCartChanged for stale version, got: %v", err)
	}

	loaded, _ = store.FindOpen(ctx, 700007)
	if err := store.FreezeForCheckout(ctx, cart.ID, loaded.Version); err != nil {
		t.Fatalf("FreezeForCheckout failed: %v", err)
	}

	if _, err := store.UpsertItem(ctx, cart.ID, 2, 4); !errors.Is(err, domain.ErrCheckoutInProgress) {
		t.Errorf("expected ErrCheckoutInProgress on upsert, got: %v", err)
	}
	if err := store.UpdateItemQuantity(ctx, cart.ID, item.ID, 6); !errors.Is(err, domain.ErrCheckoutInProgress) {
		t.Errorf("expected ErrCheckoutInProgress on update, got: %v", err)
	}
	if err := store.RemoveItem(ctx, cart.ID, item.ID); !errors.Is(err, domain.ErrCheckoutInProgress) {
		t.Errorf("expected ErrCheckoutInProgress on remove, got: %v", err)
	}

	frozen, _ := store.FindOpen(ctx, 700007)
	if !frozen.CheckoutPending || frozen.Totals()[0].Quantity != 3 {
		t.Errorf("expected frozen cart with unchanged lines, got %+v", frozen)
	}

	if err := store.Unfreeze(ctx, cart.ID); err != nil {
		t.Fatalf("Unfreeze failed: %v", err)
	}
	if err := store.UpdateItemQuantity(ctx, cart.ID, item.ID, 6); err != nil {
		t.Errorf("expected edits after unfreeze, got: %v", err)
	}

	if err := store.MarkCheckedOut(ctx, cart.ID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkCheckedOut failed: %v", err)
	}
	if _, err := store.UpsertItem(ctx, cart.ID, 3, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound on checked-out cart, got: %v", err)
	}
	if err := store.RemoveItem(ctx, cart.ID, item.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound on checked-out cart, got: %v", err)
	}
}

func TestCartStore_SaveReconciliation(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewCartStore(db)

	rec := domain.Reconciliation{
		CartID:       1,
		UserID:       700006,
		FailedItemID: 2,
		Reason:       "insufficient stock",
		Decremented:  []domain.ItemQuantity{{ItemID: 1, Quantity: 3}},
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.SaveReconciliation(ctx, rec); err != nil {
		t.Fatalf("SaveReconciliation failed: %v", err)
	}

	var count int
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkout_reconciliations WHERE user_id = ?`, 700006).Scan(&count)
	if count == 0 {
		t.Error("expected reconciliation row")
	}
	db.ExecContext(ctx, `DELETE FROM checkout_reconciliations WHERE user_id = ?`, 700006)
}
