package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/kravings/internal/core/domain"
	"github.com/rl1809/kravings/internal/core/service"
	"github.com/rl1809/kravings/internal/port"
)

const checkoutServiceName = "kravings.checkout.v1.CheckoutService"

type CheckoutRPCRequest struct {
	RequestID  string            `json:"request_id"`
	ConsumerID string            `json:"consumer_id"`
	Lines      []domain.CartLine `json:"lines"`
}

type CheckoutRPCResponse struct {
	Success        bool               `json:"success"`
	Message        string             `json:"message"`
	OrderIDs       []string           `json:"order_ids,omitempty"`
	FeeCharged     int64              `json:"fee_charged,omitempty"`
	Committed      []SettlementDTO    `json:"committed,omitempty"`
	Failed         []VendorFailureDTO `json:"failed,omitempty"`
	RemainingLines []domain.CartLine  `json:"remaining_lines,omitempty"`
	OutstandingFee int64              `json:"outstanding_fee,omitempty"`
}

type BalanceRPCRequest struct {
	UserID string `json:"user_id"`
}

type BalanceRPCResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

type CheckoutServer interface {
	Checkout(context.Context, *CheckoutRPCRequest) (*CheckoutRPCResponse, error)
	GetBalance(context.Context, *BalanceRPCRequest) (*BalanceRPCResponse, error)
}

type GRPCHandler struct {
	checkout    *service.CheckoutEngine
	wallets     *service.WalletService
	deliveryFee int64
}

func NewGRPCHandler(checkout *service.CheckoutEngine, wallets *service.WalletService, deliveryFee int64) *GRPCHandler {
	return &GRPCHandler{checkout: checkout, wallets: wallets, deliveryFee: deliveryFee}
}

// Checkout reports a partial checkout in the response rather than as an RPC
// error, since part of it committed.
func (h *GRPCHandler) Checkout(ctx context.Context, req *CheckoutRPCRequest) (*CheckoutRPCResponse, error) {
	if req.ConsumerID == "" {
		return nil, status.Error(codes.InvalidArgument, "consumer_id is required")
	}

	res, err := h.checkout.Checkout(ctx, service.CheckoutRequest{
		RequestID:   req.RequestID,
		ConsumerID:  req.ConsumerID,
		Lines:       req.Lines,
		DeliveryFee: h.deliveryFee,
	})

	var partial *service.PartialCheckoutError
	if errors.As(err, &partial) {
		resp := &CheckoutRPCResponse{
			Success:        false,
			Message:        partial.Error(),
			Committed:      settlementDTOs(partial.Committed),
			RemainingLines: partial.RemainingLines(),
			OutstandingFee: partial.FeeOutstanding,
		}
		for _, f := range partial.Failed {
			resp.Failed = append(resp.Failed, VendorFailureDTO{VendorID: f.VendorID, Error: f.Err.Error()})
		}
		return resp, nil
	}
	if err != nil {
		return nil, grpcError(err)
	}

	return &CheckoutRPCResponse{
		Success:    true,
		Message:    "order placed successfully",
		OrderIDs:   res.OrderIDs,
		FeeCharged: res.FeeCharged,
		Committed:  settlementDTOs(res.Settlements),
	}, nil
}

func (h *GRPCHandler) GetBalance(ctx context.Context, req *BalanceRPCRequest) (*BalanceRPCResponse, error) {
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	balance, err := h.wallets.Balance(ctx, req.UserID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &BalanceRPCResponse{UserID: req.UserID, Balance: balance}, nil
}

func grpcError(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, service.ErrDuplicateRequest):
		code = codes.AlreadyExists
	case errors.Is(err, service.ErrMissingConsumer),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidCartLine),
		errors.Is(err, service.ErrInvalidAmount):
		code = codes.InvalidArgument
	case errors.Is(err, service.ErrUnresolvableProduct),
		errors.Is(err, port.ErrAccountNotFound):
		code = codes.NotFound
	case errors.Is(err, service.ErrPriceChanged),
		errors.Is(err, service.ErrInsufficientFunds):
		code = codes.FailedPrecondition
	case errors.Is(err, service.ErrSettlementConflict):
		code = codes.Aborted
	case errors.Is(err, service.ErrStoreUnavailable):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	if code == codes.Internal {
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

func RegisterCheckoutServer(s grpc.ServiceRegistrar, srv CheckoutServer) {
	s.RegisterService(&checkoutServiceDesc, srv)
}

var checkoutServiceDesc = grpc.ServiceDesc{
	ServiceName: checkoutServiceName,
	HandlerType: (*CheckoutServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Checkout", Handler: checkoutHandler},
		{MethodName: "GetBalance", Handler: getBalanceHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func checkoutHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CheckoutRPCRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServer).Checkout(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + checkoutServiceName + "/Checkout"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(CheckoutServer).Checkout(ctx, req.(*CheckoutRPCRequest))
	})
}

func getBalanceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BalanceRPCRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServer).GetBalance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + checkoutServiceName + "/GetBalance"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(CheckoutServer).GetBalance(ctx, req.(*BalanceRPCRequest))
	})
}

// CheckoutClient calls CheckoutService over the JSON codec.
type CheckoutClient struct {
	conn grpc.ClientConnInterface
}

func NewCheckoutClient(conn grpc.ClientConnInterface) *CheckoutClient {
	return &CheckoutClient{conn: conn}
}

func (c *CheckoutClient) Checkout(ctx context.Context, in *CheckoutRPCRequest, opts ...grpc.CallOption) (*CheckoutRPCResponse, error) {
	out := new(CheckoutRPCResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.conn.Invoke(ctx, "/"+checkoutServiceName+"/Checkout", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CheckoutClient) GetBalance(ctx context.Context, in *BalanceRPCRequest, opts ...grpc.CallOption) (*BalanceRPCResponse, error) {
	out := new(BalanceRPCResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.conn.Invoke(ctx, "/"+checkoutServiceName+"/GetBalance", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
