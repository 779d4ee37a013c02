package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/vinostock/internal/adapter/handler/pb"
	"github.com/rl1809/vinostock/internal/core/domain"
)

func TestGRPCHandler_DecreaseStock(t *testing.T) {
	stock := &mockStock{items: map[int64]domain.StockItem{1: {ItemID: 1, Quantity: 4, MinimumQuantity: 1, Version: 2}}}
	h := NewGRPCHandler(stock, zap.NewNop())

	level, err := h.DecreaseStock(context.Background(), &pb.DecreaseStockRequest{ItemID: 1, Amount: 2, RequestID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, int32(4), level.Quantity)
	assert.Equal(t, int32(2), level.Version)
	assert.Equal(t, "r1", stock.requestID)

	_, err = h.DecreaseStock(context.Background(), &pb.DecreaseStockRequest{ItemID: 1, Amount: 7, RequestID: "r2"})
	st := status.Convert(err)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
	require.Len(t, st.Details(), 1)
	info, ok := st.Details()[0].(*errdetails.ErrorInfo)
	require.True(t, ok)
	assert.Equal(t, pb.InsufficientStockReason, info.Reason)
	assert.Equal(t, "4", info.Metadata[pb.MetadataAvailable])
	assert.Equal(t, "7", info.Metadata[pb.MetadataRequested])
}

func TestGRPCHandler_StatusMapping(t *testing.T) {
	h := NewGRPCHandler(&mockStock{items: map[int64]domain.StockItem{}}, zap.NewNop())

	cases := []struct {
		err  error
		code codes.Code
	}{
		{domain.ErrNotFound, codes.NotFound},
		{domain.ErrInvalidArgument, codes.InvalidArgument},
		{domain.ErrUnauthorized, codes.Unauthenticated},
		{domain.Upstream(errors.New("catalog down")), codes.Unavailable},
		{errors.New("disk on fire"), codes.Internal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, status.Code(h.toStatus(tc.err)), tc.err.Error())
	}
}

func TestGatewayAuthInterceptor(t *testing.T) {
	interceptor := GatewayAuthInterceptor(secret)
	ok := func(ctx context.Context, req any) (any, error) { return "ok", nil }

	ledgerCall := &grpc.UnaryServerInfo{FullMethod: pb.StockLedgerGetStock}
	healthCall := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err := interceptor(context.Background(), nil, ledgerCall, ok)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	wrong := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-gateway-auth", "nope"))
	_, err = interceptor(wrong, nil, ledgerCall, ok)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	right := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-gateway-auth", secret))
	resp, err := interceptor(right, nil, ledgerCall, ok)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)

	_, err = interceptor(context.Background(), nil, healthCall, ok)
	assert.NoError(t, err)
}
