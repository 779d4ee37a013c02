package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/rl1809/vinostock/internal/adapter/handler/pb"
	"github.com/rl1809/vinostock/internal/config"
	"github.com/rl1809/vinostock/internal/core/domain"
)

// gatewayCredentials attaches the gateway secret to every call.
type gatewayCredentials struct {
	secret string
}

func (c gatewayCredentials) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{strings.ToLower(config.GatewayHeader): c.secret}, nil
}

func (gatewayCredentials) RequireTransportSecurity() bool {
	return false
}

// Client reaches the inventory service's ledger endpoint. A call that fails as
// Unavailable is retried once; decrements keep their request ID so the retry
// cannot apply twice.
type Client struct {
	conn    *grpc.ClientConn
	stub    pb.StockLedgerClient
	timeout time.Duration
	logger  *zap.Logger
}

func NewClient(addr, secret string, timeout time.Duration, logger *zap.Logger, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithPerRPCCredentials(gatewayCredentials{secret: secret}),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial ledger %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		stub:    pb.NewStockLedgerClient(conn),
		timeout: timeout,
		logger:  logger,
	}, nil
}

func (c *Client) GetStock(ctx context.Context, itemID int64) (*domain.StockItem, error) {
	var level *pb.StockLevel
	err := c.call(ctx, "GetStock", func(ctx context.Context) error {
		var err error
		level, err = c.stub.GetStock(ctx, &pb.GetStockRequest{ItemID: itemID})
		return err
	})
	if err != nil {
		return nil, fromStatus(err, itemID, 0)
	}
	return toStockItem(level), nil
}

func (c *Client) DecreaseStock(ctx context.Context, requestID string, itemID int64, amount int) (*domain.StockItem, error) {
	req := &pb.DecreaseStockRequest{ItemID: itemID, Amount: int32(amount), RequestID: requestID}

	var level *pb.StockLevel
	err := c.call(ctx, "DecreaseStock", func(ctx context.Context) error {
		var err error
		level, err = c.stub.DecreaseStock(ctx, req)
		return err
	})
	if err != nil {
		return nil, fromStatus(err, itemID, amount)
	}
	if level.Replayed {
		c.logger.Info("ledger replayed decrease", zap.String("request_id", requestID), zap.Int64("item_id", itemID))
	}
	return toStockItem(level), nil
}

func (c *Client) call(ctx context.Context, method string, fn func(context.Context) error) error {
	err := c.attempt(ctx, fn)
	if status.Code(err) != codes.Unavailable || ctx.Err() != nil {
		return err
	}

	c.logger.Warn("ledger unavailable, retrying", zap.String("method", method), zap.Error(err))
	return c.attempt(ctx, fn)
}

func (c *Client) attempt(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return fn(callCtx)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func toStockItem(level *pb.StockLevel) *domain.StockItem {
	return &domain.StockItem{
		ItemID:          level.ItemID,
		Quantity:        int(level.Quantity),
		MinimumQuantity: int(level.MinimumQuantity),
		Version:         int(level.Version),
		UpdatedAt:       level.UpdatedAt,
	}
}

// fromStatus turns a ledger status back into the domain error it was made from.
func fromStatus(err error, itemID int64, requested int) error {
	st, ok := status.FromError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return domain.Upstream(err)
		}
		return domain.Upstream(fmt.Errorf("ledger call: %w", err))
	}

	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("stock item %d: %w", itemID, domain.ErrNotFound)
	case codes.FailedPrecondition:
		insufficient := &domain.InsufficientStockError{ItemID: itemID, Requested: requested}
		for _, detail := range st.Details() {
			info, ok := detail.(*errdetails.ErrorInfo)
			if !ok || info.GetReason() != pb.InsufficientStockReason {
				continue
			}
			insufficient.Available, _ = strconv.Atoi(info.GetMetadata()[pb.MetadataAvailable])
			if n, err := strconv.Atoi(info.GetMetadata()[pb.MetadataRequested]); err == nil {
				insufficient.Requested = n
			}
		}
		return insufficient
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, st.Message())
	case codes.Unauthenticated, codes.PermissionDenied:
		return domain.Upstream(fmt.Errorf("ledger rejected service credentials: %s", st.Message()))
	default:
		return domain.Upstream(fmt.Errorf("ledger %s: %s", st.Code(), st.Message()))
	}
}
