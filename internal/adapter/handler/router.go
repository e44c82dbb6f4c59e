package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rl1809/kravings/internal/metrics"
)

func NewRouter(h *HTTPHandler, m *metrics.ServerMetrics, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(instrument(m))

	r.Get("/health", h.HealthCheck)
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/checkout", h.Checkout)

		r.Route("/carts/{consumerID}", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/", h.AddCartLine)
			r.Delete("/", h.ClearCart)
			r.Delete("/lines/{productID}", h.RemoveCartLine)
		})

		r.Route("/wallets/{userID}", func(r chi.Router) {
			r.Get("/", h.GetWallet)
			r.Post("/", h.CreateWallet)
			r.Post("/fund", h.FundWallet)
		})

		r.Get("/consumers/{consumerID}/orders", h.ListConsumerOrders)
		r.Get("/vendors/{vendorID}/orders", h.ListVendorOrders)
		r.Post("/vendors/{vendorID}/orders/{orderID}/advance", h.AdvanceOrder)
	})

	return r
}

// instrument records request counts and latency per route pattern.
func instrument(m *metrics.ServerMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			pattern := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				pattern = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.Observe(pattern, status, time.Since(start))
		})
	}
}
