package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/vinostock/internal/core/domain"
	"github.com/rl1809/vinostock/internal/port"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// AlertService persists delivered low-stock events and fans them out.
// Only a failed write is reported back, so the event is redelivered.
type AlertService struct {
	repo        port.AlertRepository
	broadcaster port.AlertBroadcaster
	notifier    port.AlertNotifier
	logger      *zap.Logger
	now         func() time.Time
}

// NewAlertService accepts a nil notifier when e-mail is not configured.
func NewAlertService(repo port.AlertRepository, broadcaster port.AlertBroadcaster, notifier port.AlertNotifier, logger *zap.Logger) *AlertService {
	return &AlertService{
		repo:        repo,
		broadcaster: broadcaster,
		notifier:    notifier,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *AlertService) Handle(ctx context.Context, event domain.LowStockEvent) error {
	ctx, span := tracer.Start(ctx, "alert.handle")
	defer span.End()
	span.SetAttributes(attribute.Int64("item.id", event.ItemID), attribute.String("event.id", event.DedupKey()))

	alert := domain.StockAlert{
		EventID:   event.DedupKey(),
		ItemID:    event.ItemID,
		Message:   event.Message(),
		Timestamp: s.now(),
	}

	saved, created, err := s.repo.Save(ctx, alert)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("persist stock alert: %w", err)
	}
	if !created {
		s.logger.Info("duplicate low stock event ignored", zap.String("event_id", alert.EventID))
		return nil
	}

	s.logger.Info("stock alert stored", zap.Int64("alert_id", saved.ID), zap.Int64("item_id", saved.ItemID))

	if err := s.broadcaster.Broadcast(ctx, *saved); err != nil {
		s.logger.Warn("failed to broadcast stock alert", zap.Int64("alert_id", saved.ID), zap.Error(err))
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, *saved); err != nil {
			s.logger.Warn("failed to send stock alert mail", zap.Int64("alert_id", saved.ID), zap.Error(err))
		}
	}
	return nil
}

// History returns persisted alerts newest first.
func (s *AlertService) History(ctx context.Context, limit int) ([]domain.StockAlert, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.repo.List(ctx, limit)
}
