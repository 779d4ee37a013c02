// Package pb describes the StockLedger gRPC service. Messages are plain
// structs carried by the JSON codec registered in this package.
package pb

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

const (
	StockLedgerServiceName   = "vinostock.ledger.v1.StockLedger"
	StockLedgerGetStock      = "/" + StockLedgerServiceName + "/GetStock"
	StockLedgerDecreaseStock = "/" + StockLedgerServiceName + "/DecreaseStock"
	InsufficientStockReason  = "INSUFFICIENT_STOCK"
	ErrorDomain              = "ledger.vinostock"
	MetadataAvailable        = "available"
	MetadataRequested        = "requested"
)

type GetStockRequest struct {
	ItemID int64 `json:"item_id"`
}

type DecreaseStockRequest struct {
	ItemID    int64  `json:"item_id"`
	Amount    int32  `json:"amount"`
	RequestID string `json:"request_id,omitempty"`
}

type StockLevel struct {
	ItemID          int64     `json:"item_id"`
	Quantity        int32     `json:"quantity"`
	MinimumQuantity int32     `json:"minimum_quantity"`
	Version         int32     `json:"version"`
	UpdatedAt       time.Time `json:"updated_at"`
	Replayed        bool      `json:"replayed,omitempty"`
}

// StockLedgerServer is the server API for the StockLedger service.
type StockLedgerServer interface {
	GetStock(context.Context, *GetStockRequest) (*StockLevel, error)
	DecreaseStock(context.Context, *DecreaseStockRequest) (*StockLevel, error)
}

func RegisterStockLedgerServer(s grpc.ServiceRegistrar, srv StockLedgerServer) {
	s.RegisterService(&StockLedger_ServiceDesc, srv)
}

func _StockLedger_GetStock_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetStockRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StockLedgerServer).GetStock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StockLedgerGetStock}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StockLedgerServer).GetStock(ctx, req.(*GetStockRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _StockLedger_DecreaseStock_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DecreaseStockRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StockLedgerServer).DecreaseStock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StockLedgerDecreaseStock}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StockLedgerServer).DecreaseStock(ctx, req.(*DecreaseStockRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var StockLedger_ServiceDesc = grpc.ServiceDesc{
	ServiceName: StockLedgerServiceName,
	HandlerType: (*StockLedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStock", Handler: _StockLedger_GetStock_Handler},
		{MethodName: "DecreaseStock", Handler: _StockLedger_DecreaseStock_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger.json",
}

// StockLedgerClient is the client API for the StockLedger service.
type StockLedgerClient interface {
	GetStock(ctx context.Context, in *GetStockRequest, opts ...grpc.CallOption) (*StockLevel, error)
	DecreaseStock(ctx context.Context, in *DecreaseStockRequest, opts ...grpc.CallOption) (*StockLevel, error)
}

type stockLedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewStockLedgerClient(cc grpc.ClientConnInterface) StockLedgerClient {
	return &stockLedgerClient{cc}
}

func (c *stockLedgerClient) GetStock(ctx context.Context, in *GetStockRequest, opts ...grpc.CallOption) (*StockLevel, error) {
	out := new(StockLevel)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, StockLedgerGetStock, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *stockLedgerClient) DecreaseStock(ctx context.Context, in *DecreaseStockRequest, opts ...grpc.CallOption) (*StockLevel, error) {
	out := new(StockLevel)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, StockLedgerDecreaseStock, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
