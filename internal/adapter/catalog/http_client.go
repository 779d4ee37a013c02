package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/rl1809/vinostock/internal/config"
	"github.com/rl1809/vinostock/internal/core/domain"
)

// Client reads wine records from the catalog service.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL, secret string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

func (c *Client) GetItem(ctx context.Context, itemID int64) (*domain.CatalogItem, error) {
	url := fmt.Sprintf("%s/api/v1/wines/%d", c.baseURL, itemID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set(config.GatewayHeader, c.secret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.Upstream(fmt.Errorf("catalog request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("catalog item %d: %w", itemID, domain.ErrNotFound)
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("catalog returned error",
			zap.Int64("item_id", itemID),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return nil, domain.Upstream(fmt.Errorf("catalog responded %d", resp.StatusCode))
	}

	var item domain.CatalogItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, domain.Upstream(fmt.Errorf("decode catalog item: %w", err))
	}
	return &item, nil
}
