package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/kravings/internal/core/domain"
	"github.com/rl1809/kravings/internal/core/service"
	"github.com/rl1809/kravings/internal/port"
)

type HTTPHandler struct {
	checkout    *service.CheckoutEngine
	wallets     *service.WalletService
	orders      *service.OrderService
	carts       *service.CartService
	deliveryFee int64
}

type CheckoutHTTPRequest struct {
	RequestID  string            `json:"request_id"`
	ConsumerID string            `json:"consumer_id"`
	Lines      []domain.CartLine `json:"lines"`
}

type SettlementDTO struct {
	VendorID string `json:"vendor_id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
}

type CheckoutHTTPResponse struct {
	Success     bool            `json:"success"`
	OrderIDs    []string        `json:"order_ids"`
	Settlements []SettlementDTO `json:"settlements"`
	FeeCharged  int64           `json:"fee_charged"`
	Total       int64           `json:"total"`
}

type VendorFailureDTO struct {
	VendorID string `json:"vendor_id"`
	Error    string `json:"error"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`

	// set for partial checkouts only
	Committed      []SettlementDTO    `json:"committed,omitempty"`
	Failed         []VendorFailureDTO `json:"failed,omitempty"`
	RemainingLines []domain.CartLine  `json:"remaining_lines,omitempty"`
	OutstandingFee int64              `json:"outstanding_fee,omitempty"`

	// set for unresolvable products only
	ProductIDs []string `json:"product_ids,omitempty"`
}

type CartResponse struct {
	ConsumerID string            `json:"consumer_id"`
	Lines      []domain.CartLine `json:"lines"`
	Total      int64             `json:"total"`
}

type WalletResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

type FundRequest struct {
	Amount int64 `json:"amount"`
}

type OrderDTO struct {
	ID         string             `json:"id"`
	ConsumerID string             `json:"consumer_id"`
	VendorID   string             `json:"vendor_id"`
	Items      []domain.OrderItem `json:"items"`
	Total      int64              `json:"total"`
	Status     string             `json:"status"`
	CreatedAt  string             `json:"created_at"`
	UpdatedAt  string             `json:"updated_at"`
}

func NewHTTPHandler(checkout *service.CheckoutEngine, wallets *service.WalletService, orders *service.OrderService, carts *service.CartService, deliveryFee int64) *HTTPHandler {
	return &HTTPHandler{
		checkout:    checkout,
		wallets:     wallets,
		orders:      orders,
		carts:       carts,
		deliveryFee: deliveryFee,
	}
}

// Checkout settles the posted lines, or the stored cart when lines are
// omitted. The request id may also come from the Idempotency-Key header.
func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get("Idempotency-Key")
	}

	res, err := h.checkout.Checkout(r.Context(), service.CheckoutRequest{
		RequestID:   req.RequestID,
		ConsumerID:  req.ConsumerID,
		Lines:       req.Lines,
		DeliveryFee: h.deliveryFee,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CheckoutHTTPResponse{
		Success:     true,
		OrderIDs:    res.OrderIDs,
		Settlements: settlementDTOs(res.Settlements),
		FeeCharged:  res.FeeCharged,
		Total:       res.Total(),
	})
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.Get(r.Context(), chi.URLParam(r, "consumerID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse(cart))
}

func (h *HTTPHandler) AddCartLine(w http.ResponseWriter, r *http.Request) {
	var line domain.CartLine
	if err := json.NewDecoder(r.Body).Decode(&line); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	cart, err := h.carts.AddLine(r.Context(), chi.URLParam(r, "consumerID"), line)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse(cart))
}

func (h *HTTPHandler) RemoveCartLine(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.RemoveLine(r.Context(), chi.URLParam(r, "consumerID"), chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse(cart))
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), chi.URLParam(r, "consumerID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateWallet opens a zero-balance wallet on first sign-in.
func (h *HTTPHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.wallets.EnsureAccount(r.Context(), userID); err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeBalance(w, r, userID)
}

func (h *HTTPHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	h.writeBalance(w, r, chi.URLParam(r, "userID"))
}

func (h *HTTPHandler) FundWallet(w http.ResponseWriter, r *http.Request) {
	var req FundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	userID := chi.URLParam(r, "userID")
	balance, err := h.wallets.Fund(r.Context(), userID, req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WalletResponse{UserID: userID, Balance: balance})
}

func (h *HTTPHandler) writeBalance(w http.ResponseWriter, r *http.Request, userID string) {
	balance, err := h.wallets.Balance(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WalletResponse{UserID: userID, Balance: balance})
}

func (h *HTTPHandler) ListConsumerOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByConsumer(r.Context(), chi.URLParam(r, "consumerID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderDTOs(orders))
}

func (h *HTTPHandler) ListVendorOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByVendor(r.Context(), chi.URLParam(r, "vendorID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderDTOs(orders))
}

func (h *HTTPHandler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Advance(r.Context(), chi.URLParam(r, "vendorID"), chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderDTO(*order))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorStatus maps service errors to an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrPartialCheckout):
		return http.StatusConflict, "partial_checkout"
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate_request"
	case errors.Is(err, service.ErrMissingConsumer),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidCartLine),
		errors.Is(err, service.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, service.ErrUnresolvableProduct):
		return http.StatusUnprocessableEntity, "unresolvable_product"
	case errors.Is(err, service.ErrPriceChanged):
		return http.StatusUnprocessableEntity, "price_changed"
	case errors.Is(err, service.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, service.ErrSettlementConflict):
		return http.StatusConflict, "settlement_conflict"
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, port.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found"
	case errors.Is(err, port.ErrOrderNotFound):
		return http.StatusNotFound, "order_not_found"
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	resp := ErrorResponse{Code: code, Message: err.Error()}
	if status == http.StatusInternalServerError {
		resp.Message = "internal error"
	}

	var partial *service.PartialCheckoutError
	if errors.As(err, &partial) {
		resp.Committed = settlementDTOs(partial.Committed)
		for _, f := range partial.Failed {
			resp.Failed = append(resp.Failed, VendorFailureDTO{VendorID: f.VendorID, Error: f.Err.Error()})
		}
		resp.RemainingLines = partial.RemainingLines()
		resp.OutstandingFee = partial.FeeOutstanding
	}
	var unresolved *service.UnresolvableProductError
	if errors.As(err, &unresolved) {
		resp.ProductIDs = unresolved.ProductIDs
	}

	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func settlementDTOs(settlements []service.Settlement) []SettlementDTO {
	dtos := make([]SettlementDTO, 0, len(settlements))
	for _, s := range settlements {
		dtos = append(dtos, SettlementDTO{VendorID: s.VendorID, OrderID: s.OrderID, Amount: s.Amount})
	}
	return dtos
}

func cartResponse(cart domain.Cart) CartResponse {
	lines := cart.Lines
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return CartResponse{ConsumerID: cart.ConsumerID, Lines: lines, Total: cart.Total()}
}

func orderDTO(o domain.Order) OrderDTO {
	return OrderDTO{
		ID:         o.ID,
		ConsumerID: o.ConsumerID,
		VendorID:   o.VendorID,
		Items:      o.Items,
		Total:      o.Total,
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func orderDTOs(orders []domain.Order) []OrderDTO {
	dtos := make([]OrderDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, orderDTO(o))
	}
	return dtos
}
