package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/vinostock/internal/adapter/handler/pb"
	"github.com/rl1809/vinostock/internal/config"
	"github.com/rl1809/vinostock/internal/core/domain"
)

const healthServicePrefix = "/grpc.health.v1.Health/"

// LedgerService is the part of the stock service the ledger endpoint serves.
type LedgerService interface {
	Get(ctx context.Context, itemID int64) (*domain.StockItem, error)
	DecreaseOnce(ctx context.Context, requestID string, itemID int64, amount int) (*domain.StockItem, bool, error)
}

type GRPCHandler struct {
	ledger LedgerService
	logger *zap.Logger
}

func NewGRPCHandler(ledger LedgerService, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{ledger: ledger, logger: logger}
}

func (h *GRPCHandler) GetStock(ctx context.Context, req *pb.GetStockRequest) (*pb.StockLevel, error) {
	item, err := h.ledger.Get(ctx, req.ItemID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return stockLevel(item, false), nil
}

func (h *GRPCHandler) DecreaseStock(ctx context.Context, req *pb.DecreaseStockRequest) (*pb.StockLevel, error) {
	item, replayed, err := h.ledger.DecreaseOnce(ctx, req.RequestID, req.ItemID, int(req.Amount))
	if err != nil {
		return nil, h.toStatus(err)
	}
	return stockLevel(item, replayed), nil
}

func stockLevel(item *domain.StockItem, replayed bool) *pb.StockLevel {
	return &pb.StockLevel{
		ItemID:          item.ItemID,
		Quantity:        int32(item.Quantity),
		MinimumQuantity: int32(item.MinimumQuantity),
		Version:         int32(item.Version),
		UpdatedAt:       item.UpdatedAt,
		Replayed:        replayed,
	}
}

func (h *GRPCHandler) toStatus(err error) error {
	var insufficient *domain.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		st := status.New(codes.FailedPrecondition, err.Error())
		detailed, detailErr := st.WithDetails(&errdetails.ErrorInfo{
			Reason: pb.InsufficientStockReason,
			Domain: pb.ErrorDomain,
			Metadata: map[string]string{
				pb.MetadataAvailable: strconv.Itoa(insufficient.Available),
				pb.MetadataRequested: strconv.Itoa(insufficient.Requested),
			},
		})
		if detailErr != nil {
			return st.Err()
		}
		return detailed.Err()
	case errors.Is(err, domain.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		h.logger.Error("ledger call failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}

// GatewayAuthInterceptor rejects calls that do not carry the shared gateway
// secret. Health checks are exempt.
func GatewayAuthInterceptor(secret string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthServicePrefix) {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get(strings.ToLower(config.GatewayHeader))
		if len(values) == 0 || subtle.ConstantTimeCompare([]byte(values[0]), []byte(secret)) != 1 {
			return nil, status.Error(codes.Unauthenticated, "access denied")
		}
		return handler(ctx, req)
	}
}
