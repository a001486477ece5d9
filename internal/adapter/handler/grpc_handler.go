package handler

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/rl1809/nexus-shop/internal/core/domain"
)

// JSONCodecName is the content-subtype clients must select, e.g. with
// grpc.CallContentSubtype(JSONCodecName).
const JSONCodecName = "json"

const InventoryServiceName = "inventory.v1.InventoryService"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type SkuRequest struct {
	SkuCode string `json:"skuCode"`
}

type ItemsRequest struct {
	Items []domain.StockRequestItem `json:"items"`
}

type AdjustRequest struct {
	SkuCode string `json:"skuCode"`
	Delta   int    `json:"delta"`
}

type Empty struct{}

type InventoryServer interface {
	GetStockStatus(context.Context, *SkuRequest) (*domain.StockView, error)
	CheckAvailability(context.Context, *ItemsRequest) (*Empty, error)
	ReserveStock(context.Context, *ItemsRequest) (*Empty, error)
	AdjustStock(context.Context, *AdjustRequest) (*Empty, error)
}

type GRPCHandler struct {
	stock StockEngine
}

func NewGRPCHandler(stock StockEngine) *GRPCHandler {
	return &GRPCHandler{stock: stock}
}

func (h *GRPCHandler) GetStockStatus(ctx context.Context, req *SkuRequest) (*domain.StockView, error) {
	view, err := h.stock.GetStockStatus(ctx, req.SkuCode)
	if err != nil {
		return nil, toStatus(err)
	}
	return &view, nil
}

func (h *GRPCHandler) CheckAvailability(ctx context.Context, req *ItemsRequest) (*Empty, error) {
	if err := h.stock.CheckAvailability(ctx, req.Items); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (h *GRPCHandler) ReserveStock(ctx context.Context, req *ItemsRequest) (*Empty, error) {
	if err := h.stock.ReserveStock(ctx, req.Items); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (h *GRPCHandler) AdjustStock(ctx context.Context, req *AdjustRequest) (*Empty, error) {
	if err := h.stock.AdjustStock(ctx, req.SkuCode, req.Delta); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func RegisterInventoryServer(s grpc.ServiceRegistrar, srv InventoryServer) {
	s.RegisterService(&InventoryServiceDesc, srv)
}

var InventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: InventoryServiceName,
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStockStatus", Handler: unaryHandler("GetStockStatus", InventoryServer.GetStockStatus)},
		{MethodName: "CheckAvailability", Handler: unaryHandler("CheckAvailability", InventoryServer.CheckAvailability)},
		{MethodName: "ReserveStock", Handler: unaryHandler("ReserveStock", InventoryServer.ReserveStock)},
		{MethodName: "AdjustStock", Handler: unaryHandler("AdjustStock", InventoryServer.AdjustStock)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "inventory/v1/inventory.json",
}

func unaryHandler[Req, Resp any](method string, call func(InventoryServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	fullMethod := "/" + InventoryServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InventoryServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(InventoryServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// InventoryClient calls InventoryService over a connection using the JSON codec.
type InventoryClient struct {
	cc grpc.ClientConnInterface
}

func NewInventoryClient(cc grpc.ClientConnInterface) *InventoryClient {
	return &InventoryClient{cc: cc}
}

func (c *InventoryClient) GetStockStatus(ctx context.Context, sku string) (*domain.StockView, error) {
	out := new(domain.StockView)
	return out, c.invoke(ctx, "GetStockStatus", &SkuRequest{SkuCode: sku}, out)
}

func (c *InventoryClient) CheckAvailability(ctx context.Context, items []domain.StockRequestItem) error {
	return c.invoke(ctx, "CheckAvailability", &ItemsRequest{Items: items}, new(Empty))
}

func (c *InventoryClient) ReserveStock(ctx context.Context, items []domain.StockRequestItem) error {
	return c.invoke(ctx, "ReserveStock", &ItemsRequest{Items: items}, new(Empty))
}

func (c *InventoryClient) AdjustStock(ctx context.Context, sku string, delta int) error {
	return c.invoke(ctx, "AdjustStock", &AdjustRequest{SkuCode: sku, Delta: delta}, new(Empty))
}

func (c *InventoryClient) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, "/"+InventoryServiceName+"/"+method, in, out, grpc.CallContentSubtype(JSONCodecName))
}
