package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/vinostock/internal/core/domain"
)

const stockColumns = `item_id, quantity, minimum_quantity, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// StockStore is the MySQL ledger. Every mutation writes its movement in the same transaction.
type StockStore struct {
	db *sql.DB
}

func NewStockStore(db *sql.DB) *StockStore {
	return &StockStore{db: db}
}

func (s *StockStore) Create(ctx context.Context, item domain.StockItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_items (item_id, quantity, minimum_quantity, version, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)`,
		item.ItemID, item.Quantity, item.MinimumQuantity, item.CreatedAt, item.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return fmt.Errorf("stock item %d: %w", item.ItemID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert stock item: %w", err)
	}

	if item.Quantity > 0 {
		if err := insertMovement(ctx, tx, item.ItemID, domain.MovementIncrease, item.Quantity, item.CreatedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *StockStore) Get(ctx context.Context, itemID int64) (*domain.StockItem, error) {
	item, err := scanStockItem(s.db.QueryRowContext(ctx,
		`SELECT `+stockColumns+` FROM stock_items WHERE item_id = ?`, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query stock item: %w", err)
	}
	return item, nil
}

func (s *StockStore) List(ctx context.Context) ([]domain.StockItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+stockColumns+` FROM stock_items ORDER BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("query stock items: %w", err)
	}
	defer rows.Close()

	items := []domain.StockItem{}
	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (s *StockStore) Increase(ctx context.Context, itemID int64, amount int, at time.Time) (*domain.StockItem, error) {
	return s.mutate(ctx, itemID, amount, domain.MovementIncrease, at)
}

func (s *StockStore) Decrease(ctx context.Context, itemID int64, amount int, at time.Time) (*domain.StockItem, error) {
	return s.mutate(ctx, itemID, amount, domain.MovementDecrease, at)
}

// mutate locks the row, applies the change guarded on the stored quantity and
// returns the post-change snapshot read inside the same transaction.
func (s *StockStore) mutate(ctx context.Context, itemID int64, amount int, typ domain.MovementType, at time.Time) (*domain.StockItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	item, err := scanStockItem(tx.QueryRowContext(ctx,
		`SELECT `+stockColumns+` FROM stock_items WHERE item_id = ? FOR UPDATE`, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stock item %d: %w", itemID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock stock item: %w", err)
	}

	var result sql.Result
	switch typ {
	case domain.MovementDecrease:
		if item.Quantity < amount {
			return nil, &domain.InsufficientStockError{ItemID: itemID, Available: item.Quantity, Requested: amount}
		}
		result, err = tx.ExecContext(ctx, `
			UPDATE stock_items
			SET quantity = quantity - ?, version = version + 1, updated_at = ?
			WHERE item_id = ? AND quantity >= ?`,
			amount, at, itemID, amount,
		)
		item.Quantity -= amount
	default:
		if amount > domain.MaxStockQuantity-item.Quantity {
			return nil, fmt.Errorf("%w: stock of item %d would exceed %d",
				domain.ErrInvalidArgument, itemID, domain.MaxStockQuantity)
		}
		result, err = tx.ExecContext(ctx, `
			UPDATE stock_items
			SET quantity = quantity + ?, version = version + 1, updated_at = ?
			WHERE item_id = ?`,
			amount, at, itemID,
		)
		item.Quantity += amount
	}
	if err != nil {
		return nil, fmt.Errorf("update stock item: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, domain.ErrOptimisticLock
	}

	if err := insertMovement(ctx, tx, itemID, typ, amount, at); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	item.Version++
	item.UpdatedAt = at
	return item, nil
}

func (s *StockStore) UpdateMinimum(ctx context.Context, item domain.StockItem) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE stock_items
		SET minimum_quantity = ?, version = version + 1, updated_at = ?
		WHERE item_id = ? AND version = ?`,
		item.MinimumQuantity, item.UpdatedAt, item.ItemID, item.Version,
	)
	if err != nil {
		return fmt.Errorf("update minimum quantity: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrOptimisticLock
	}

	return nil
}

func (s *StockStore) Delete(ctx context.Context, itemID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM stock_items WHERE item_id = ?`, itemID)
	if err != nil {
		return fmt.Errorf("delete stock item: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("stock item %d: %w", itemID, domain.ErrNotFound)
	}
	return nil
}

func (s *StockStore) ListMovements(ctx context.Context, itemID int64) ([]domain.Movement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, type, quantity, movement_date
		FROM stock_movements WHERE item_id = ? ORDER BY id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	movements := []domain.Movement{}
	for rows.Next() {
		var m domain.Movement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Type, &m.Quantity, &m.Date); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func insertMovement(ctx context.Context, tx *sql.Tx, itemID int64, typ domain.MovementType, quantity int, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements (item_id, type, quantity, movement_date)
		VALUES (?, ?, ?, ?)`,
		itemID, typ, quantity, at,
	)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

func scanStockItem(row rowScanner) (*domain.StockItem, error) {
	var item domain.StockItem
	err := row.Scan(&item.ItemID, &item.Quantity, &item.MinimumQuantity, &item.Version, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
