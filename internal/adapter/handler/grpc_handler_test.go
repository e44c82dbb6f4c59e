package handler

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/kravings/internal/adapter/storage"
	"github.com/rl1809/kravings/internal/core/domain"
	"github.com/rl1809/kravings/internal/core/service"
	"github.com/rl1809/kravings/internal/port"
)

func newGRPCClient(t *testing.T, accounts port.AccountStore, store *storage.MemoryStore) *CheckoutClient {
	t.Helper()

	store.PutProduct(domain.Product{ID: "p1", VendorID: "v1", Name: "Jollof Rice", Price: 2500})
	store.PutProduct(domain.Product{ID: "p2", VendorID: "v2", Name: "Suya", Price: 1000})
	store.SetBalance("v1", 0)
	store.SetBalance("v2", 0)

	retry := service.RetryPolicy{MaxAttempts: 2}
	engine := service.NewCheckoutEngine(accounts, store, service.WithRetryPolicy(retry))

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterCheckoutServer(srv, NewGRPCHandler(engine, service.NewWalletService(accounts, retry), testFee))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewCheckoutClient(conn)
}

func TestGRPC_Checkout(t *testing.T) {
	store := storage.NewMemoryStore()
	client := newGRPCClient(t, store, store)
	store.SetBalance("c1", 5000)

	resp, err := client.Checkout(context.Background(), &CheckoutRPCRequest{
		RequestID:  "req-1",
		ConsumerID: "c1",
		Lines:      []domain.CartLine{{ProductID: "p1", Name: "Jollof Rice", Price: 2500, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Len(t, resp.OrderIDs, 1)
	assert.Equal(t, int64(testFee), resp.FeeCharged)

	bal, err := client.GetBalance(context.Background(), &BalanceRPCRequest{UserID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal.Balance)
}

func TestGRPC_ErrorCodes(t *testing.T) {
	store := storage.NewMemoryStore()
	client := newGRPCClient(t, store, store)
	store.SetBalance("c1", 1000)

	tests := []struct {
		name string
		req  *CheckoutRPCRequest
		code codes.Code
	}{
		{"missing consumer", &CheckoutRPCRequest{}, codes.InvalidArgument},
		{"empty cart", &CheckoutRPCRequest{ConsumerID: "c1"}, codes.InvalidArgument},
		{"insufficient funds", &CheckoutRPCRequest{ConsumerID: "c1", Lines: []domain.CartLine{{ProductID: "p1", Price: 2500, Quantity: 1}}}, codes.FailedPrecondition},
		{"unknown product", &CheckoutRPCRequest{ConsumerID: "c1", Lines: []domain.CartLine{{ProductID: "p9", Price: 1, Quantity: 1}}}, codes.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Checkout(context.Background(), tt.req)
			assert.Equal(t, tt.code, status.Code(err), "err: %v", err)
		})
	}

	_, err := client.GetBalance(context.Background(), &BalanceRPCRequest{UserID: "ghost"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPC_PartialCheckoutInResponse(t *testing.T) {
	store := storage.NewMemoryStore()
	client := newGRPCClient(t, conflictStore{MemoryStore: store, vendor: "v2"}, store)
	store.SetBalance("c1", 10000)

	resp, err := client.Checkout(context.Background(), &CheckoutRPCRequest{
		ConsumerID: "c1",
		Lines: []domain.CartLine{
			{ProductID: "p1", Price: 2500, Quantity: 1},
			{ProductID: "p2", Price: 1000, Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	require.Len(t, resp.Committed, 1)
	assert.Equal(t, "v1", resp.Committed[0].VendorID)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, "v2", resp.Failed[0].VendorID)
	assert.Equal(t, int64(testFee), resp.OutstandingFee)
	assert.Len(t, resp.RemainingLines, 1)
}

func TestGRPCError_Mapping(t *testing.T) {
	assert.Equal(t, codes.Unavailable, status.Code(grpcError(service.ErrStoreUnavailable)))
	assert.Equal(t, codes.Aborted, status.Code(grpcError(service.ErrSettlementConflict)))
	assert.Equal(t, codes.AlreadyExists, status.Code(grpcError(service.ErrDuplicateRequest)))
	assert.Equal(t, codes.Canceled, status.Code(grpcError(context.Canceled)))

	st := status.Convert(grpcError(assert.AnError))
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "internal error", st.Message())
}
