package app

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/rl1809/kravings/internal/adapter/handler"
	"github.com/rl1809/kravings/internal/adapter/storage"
	"github.com/rl1809/kravings/internal/config"
	"github.com/rl1809/kravings/internal/core/service"
	"github.com/rl1809/kravings/internal/logging"
	"github.com/rl1809/kravings/internal/metrics"
	"github.com/rl1809/kravings/internal/port"
)

// Store is the durable backend: balances, orders and the product catalog.
type Store interface {
	port.AccountStore
	port.OrderLog
	port.Catalog
}

// Cache is the session backend: carts and idempotency claims.
type Cache interface {
	port.CartStore
	port.IdempotencyGuard
}

type App struct {
	Checkout *service.CheckoutEngine
	Wallets  *service.WalletService
	Orders   *service.OrderService
	Carts    *service.CartService
	Catalog  *storage.ResilientCatalog
	Registry *prometheus.Registry

	HTTP http.Handler
	GRPC *grpc.Server
}

func New(cfg config.Config, store Store, cache Cache, events port.EventPublisher) *App {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	retry := service.RetryPolicy{
		MaxAttempts: cfg.SettlementMaxAttempts,
		BaseDelay:   cfg.SettlementBaseDelay,
		MaxDelay:    cfg.SettlementMaxDelay,
	}
	catalog := storage.NewResilientCatalog(store, uint32(cfg.CatalogBreakerFailures), cfg.CatalogBreakerTimeout)

	checkout := service.NewCheckoutEngine(store, catalog,
		service.WithCartStore(cache),
		service.WithIdempotencyGuard(cache),
		service.WithEventPublisher(events),
		service.WithMetrics(metrics.NewCheckoutMetrics(reg)),
		service.WithRetryPolicy(retry),
		service.WithPlatformAccount(cfg.PlatformAccountID),
		service.WithStrictPricing(cfg.StrictPricing),
	)
	wallets := service.NewWalletService(store, retry)
	orders := service.NewOrderService(store)
	carts := service.NewCartService(cache)

	httpHandler := handler.NewHTTPHandler(checkout, wallets, orders, carts, cfg.DeliveryFee)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(logUnary))
	handler.RegisterCheckoutServer(grpcServer, handler.NewGRPCHandler(checkout, wallets, cfg.DeliveryFee))

	return &App{
		Checkout: checkout,
		Wallets:  wallets,
		Orders:   orders,
		Carts:    carts,
		Catalog:  catalog,
		Registry: reg,
		HTTP:     handler.NewRouter(httpHandler, metrics.NewServerMetrics(reg), reg),
		GRPC:     grpcServer,
	}
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := next(ctx, req)
	logging.Log(logging.Fields{
		Step:       info.FullMethod,
		Status:     status.Code(err).String(),
		DurationMS: time.Since(start).Milliseconds(),
		Error:      logging.Err(err),
	})
	return resp, err
}
