package mail

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/rl1809/vinostock/internal/core/domain"
)

const senderName = "Vinostock Inventory"

type sender interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// AlertMailer e-mails low-stock alerts to the purchasing inbox.
type AlertMailer struct {
	client sender
	from   string
	to     string
	logger *zap.Logger
}

func NewAlertMailer(apiKey, from, to string, logger *zap.Logger) (*AlertMailer, error) {
	if apiKey == "" {
		return nil, errors.New("sendgrid api key is empty")
	}
	return newAlertMailer(sendgrid.NewSendClient(apiKey), from, to, logger)
}

func newAlertMailer(client sender, from, to string, logger *zap.Logger) (*AlertMailer, error) {
	if from == "" {
		return nil, errors.New("from address is empty")
	}
	if to == "" {
		return nil, errors.New("to address is empty")
	}
	return &AlertMailer{client: client, from: from, to: to, logger: logger}, nil
}

func (m *AlertMailer) Notify(ctx context.Context, alert domain.StockAlert) error {
	subject := fmt.Sprintf("Low stock: item %d", alert.ItemID)
	body := fmt.Sprintf("%s\n\nRaised at %s", alert.Message, alert.Timestamp.Format("2006-01-02 15:04:05 MST"))

	message := sgmail.NewSingleEmail(
		sgmail.NewEmail(senderName, m.from),
		subject,
		sgmail.NewEmail("", m.to),
		body,
		fmt.Sprintf("<pre>%s</pre>", html.EscapeString(body)),
	)

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		m.logger.Warn("sendgrid rejected alert mail",
			zap.Int("status", resp.StatusCode),
			zap.String("body", resp.Body),
			zap.Int64("item_id", alert.ItemID),
		)
		return fmt.Errorf("sendgrid send failed: status=%d", resp.StatusCode)
	}

	m.logger.Info("alert mail sent", zap.Int64("item_id", alert.ItemID), zap.Int("status", resp.StatusCode))
	return nil
}
