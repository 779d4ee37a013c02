package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/rl1809/vinostock/internal/core/domain"
)

type messageWriter interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// AlertProducer publishes low-stock events. Writes are asynchronous; delivery
// failures only reach the log.
type AlertProducer struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

func NewAlertProducer(brokers []string, topic, clientID string, logger *zap.Logger) (*AlertProducer, error) {
	baseWriter := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("failed to deliver stock alerts", zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}

	writer, err := otelkafka.NewWriter(baseWriter,
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingDestinationNameKey.String(topic),
				attribute.String("messaging.kafka.client_id", clientID),
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka writer: %w", err)
	}

	return newAlertProducer(writer, topic, logger), nil
}

func newAlertProducer(writer messageWriter, topic string, logger *zap.Logger) *AlertProducer {
	return &AlertProducer{writer: writer, topic: topic, logger: logger}
}

func (p *AlertProducer) PublishLowStock(ctx context.Context, event domain.LowStockEvent) error {
	msg, err := encodeLowStock(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessage(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

func (p *AlertProducer) Close() error {
	return p.writer.Close()
}

func encodeLowStock(event domain.LowStockEvent) (kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode low stock event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(event.ItemID, 10)),
		Value: payload,
	}, nil
}
