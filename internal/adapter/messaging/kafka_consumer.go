package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/rl1809/vinostock/internal/core/domain"
)

const (
	minRetryBackoff = 100 * time.Millisecond
	maxRetryBackoff = 10 * time.Second
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AlertHandler consumes decoded low-stock events.
type AlertHandler interface {
	Handle(ctx context.Context, event domain.LowStockEvent) error
}

// AlertConsumer commits an offset only after the handler accepted the
// message, so a crash redelivers it.
type AlertConsumer struct {
	reader  messageReader
	handler AlertHandler
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewAlertConsumer(brokers []string, topic, groupID string, handler AlertHandler, logger *zap.Logger) *AlertConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
	return newAlertConsumer(reader, handler, logger)
}

func newAlertConsumer(reader messageReader, handler AlertHandler, logger *zap.Logger) *AlertConsumer {
	return &AlertConsumer{
		reader:  reader,
		handler: handler,
		logger:  logger,
		sleep:   sleepContext,
	}
}

// Run consumes until ctx is cancelled.
func (c *AlertConsumer) Run(ctx context.Context) error {
	c.logger.Info("stock alert consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("stock alert consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch stock alert: %w", err)
		}

		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				c.logger.Info("stock alert consumer stopped with uncommitted message", zap.Int64("offset", msg.Offset))
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit stock alert offset %d: %w", msg.Offset, err)
		}
	}
}

// process hands msg to the handler, retrying with backoff until it succeeds.
// Undecodable payloads are logged and skipped.
func (c *AlertConsumer) process(ctx context.Context, msg kafka.Message) error {
	carrier := propagation.MapCarrier{}
	for _, header := range msg.Headers {
		carrier[header.Key] = string(header.Value)
	}
	msgCtx := otel.GetTextMapPropagator().Extract(ctx, carrier)

	event, err := decodeLowStock(msg)
	if err != nil {
		c.logger.Error("discarding malformed stock alert",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.ByteString("raw_value", msg.Value),
			zap.Error(err),
		)
		return nil
	}

	backoff := minRetryBackoff
	for attempt := 1; ; attempt++ {
		err := c.handler.Handle(msgCtx, event)
		if err == nil {
			return nil
		}

		c.logger.Warn("stock alert handling failed, retrying",
			zap.String("event_id", event.DedupKey()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := c.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

func (c *AlertConsumer) Close() error {
	return c.reader.Close()
}

func decodeLowStock(msg kafka.Message) (domain.LowStockEvent, error) {
	var event domain.LowStockEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return event, fmt.Errorf("decode low stock event: %w", err)
	}
	if event.ItemID <= 0 {
		return event, errors.New("low stock event without item id")
	}
	return event, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
