package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/rl1809/vinostock/internal/core/domain"
)

const pgUndefinedTable = "42P01"

// AlertStore keeps stock alerts in PostgreSQL. event_id is unique, so a
// redelivered event never produces a second row.
type AlertStore struct {
	db *sql.DB
}

func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db}
}

func (s *AlertStore) Save(ctx context.Context, alert domain.StockAlert) (*domain.StockAlert, bool, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO stock_alerts (event_id, item_id, message, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING id`,
		alert.EventID, alert.ItemID, alert.Message, alert.Timestamp,
	).Scan(&alert.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return &alert, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert stock alert: %w", describePQ(err))
	}
	return &alert, true, nil
}

func (s *AlertStore) List(ctx context.Context, limit int) ([]domain.StockAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, item_id, message, created_at
		FROM stock_alerts
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query stock alerts: %w", describePQ(err))
	}
	defer rows.Close()

	alerts := []domain.StockAlert{}
	for rows.Next() {
		var a domain.StockAlert
		if err := rows.Scan(&a.ID, &a.EventID, &a.ItemID, &a.Message, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan stock alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// describePQ adds a hint for the one server error an operator can act on.
func describePQ(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUndefinedTable {
		return fmt.Errorf("%w (run with AUTO_MIGRATE=true to create it)", err)
	}
	return err
}
