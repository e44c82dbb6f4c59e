package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/kravings/internal/core/domain"
	"github.com/rl1809/kravings/internal/logging"
	"github.com/rl1809/kravings/internal/metrics"
	"github.com/rl1809/kravings/internal/port"
)

var ErrMissingConsumer = errors.New("consumer id is required")

type CheckoutRequest struct {
	// RequestID is the client's idempotency key, optional
	RequestID  string
	ConsumerID string

	// Lines is the cart snapshot. Nil loads the consumer's stored cart.
	Lines       []domain.CartLine
	DeliveryFee int64
}

type CheckoutResult struct {
	OrderIDs    []string
	Settlements []Settlement
	FeeCharged  int64
}

// Total is everything debited from the consumer by this checkout.
func (r *CheckoutResult) Total() int64 {
	total := r.FeeCharged
	for _, s := range r.Settlements {
		total += s.Amount
	}
	return total
}

type Option func(*CheckoutEngine)

func WithCartStore(carts port.CartStore) Option {
	return func(e *CheckoutEngine) { e.carts = carts }
}

func WithIdempotencyGuard(guard port.IdempotencyGuard) Option {
	return func(e *CheckoutEngine) { e.guard = guard }
}

func WithEventPublisher(events port.EventPublisher) Option {
	return func(e *CheckoutEngine) { e.events = events }
}

func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(e *CheckoutEngine) { e.metrics = m }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *CheckoutEngine) { e.retry = p }
}

// WithPlatformAccount credits delivery fees to accountID. Without it the fee
// is debited from the consumer and credited nowhere. A checkout made by the
// platform account itself is not charged a fee.
func WithPlatformAccount(accountID string) Option {
	return func(e *CheckoutEngine) { e.platformAccountID = accountID }
}

// WithStrictPricing rejects carts whose snapshot price differs from the
// catalog price.
func WithStrictPricing(strict bool) Option {
	return func(e *CheckoutEngine) { e.strictPricing = strict }
}

func WithClock(now func() time.Time) Option {
	return func(e *CheckoutEngine) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *CheckoutEngine) { e.newID = newID }
}

// CheckoutEngine turns a cart into per-vendor orders, moving money from the
// consumer's wallet to each vendor's wallet one atomic settlement at a time.
type CheckoutEngine struct {
	accounts port.AccountStore
	catalog  port.Catalog
	carts    port.CartStore
	guard    port.IdempotencyGuard
	events   port.EventPublisher
	metrics  *metrics.CheckoutMetrics

	retry             RetryPolicy
	platformAccountID string
	strictPricing     bool
	now               func() time.Time
	newID             func() string
}

func NewCheckoutEngine(accounts port.AccountStore, catalog port.Catalog, opts ...Option) *CheckoutEngine {
	e := &CheckoutEngine{
		accounts: accounts,
		catalog:  catalog,
		retry:    DefaultRetryPolicy,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *CheckoutEngine) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	start := time.Now()

	res, err := e.checkout(ctx, req)

	elapsed := time.Since(start)
	outcome := checkoutOutcome(err)
	e.metrics.ObserveCheckout(outcome, elapsed)
	logging.Log(logging.Fields{
		RequestID:  req.RequestID,
		ConsumerID: req.ConsumerID,
		Step:       "checkout",
		Status:     outcome,
		DurationMS: elapsed.Milliseconds(),
		Error:      logging.Err(err),
	})

	return res, err
}

func (e *CheckoutEngine) checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if req.ConsumerID == "" {
		return nil, ErrMissingConsumer
	}
	if req.DeliveryFee < 0 {
		return nil, fmt.Errorf("delivery fee %d: %w", req.DeliveryFee, ErrInvalidAmount)
	}

	if req.RequestID != "" && e.guard != nil {
		key := idempotencyKey(req.ConsumerID, req.RequestID)
		ok, err := e.guard.Acquire(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: idempotency check: %w", ErrStoreUnavailable, err)
		}
		if !ok {
			return nil, ErrDuplicateRequest
		}

		res, err := e.run(ctx, req)
		if err != nil && !errors.Is(err, ErrPartialCheckout) {
			// nothing committed, the same key may be submitted again
			if relErr := e.guard.Release(context.WithoutCancel(ctx), key); relErr != nil {
				logging.Log(logging.Fields{
					RequestID:  req.RequestID,
					ConsumerID: req.ConsumerID,
					Step:       "idempotency_release",
					Status:     "failed",
					Error:      relErr.Error(),
				})
			}
		}
		return res, err
	}

	return e.run(ctx, req)
}

func (e *CheckoutEngine) run(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	lines := req.Lines
	fromStore := lines == nil
	if fromStore && e.carts != nil {
		cart, err := e.carts.GetCart(ctx, req.ConsumerID)
		if err != nil {
			return nil, fmt.Errorf("%w: load cart: %w", ErrStoreUnavailable, err)
		}
		lines = cart.Lines
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	if _, err := domain.LinesTotal(lines); err != nil {
		return nil, err
	}

	drafts, err := e.resolve(ctx, lines)
	if err != nil {
		return nil, err
	}

	fee := req.DeliveryFee
	if e.platformAccountID != "" && e.platformAccountID == req.ConsumerID {
		fee = 0
	}
	if err := e.checkBalance(ctx, req.ConsumerID, drafts, fee); err != nil {
		return nil, err
	}

	res, err := e.settle(ctx, req.RequestID, req.ConsumerID, drafts, fee)
	if err != nil {
		return nil, err
	}

	if fromStore && e.carts != nil {
		if err := e.carts.DeleteCart(context.WithoutCancel(ctx), req.ConsumerID); err != nil {
			logging.Log(logging.Fields{
				RequestID:  req.RequestID,
				ConsumerID: req.ConsumerID,
				Step:       "clear_cart",
				Status:     "failed",
				Error:      err.Error(),
			})
		}
	}
	return res, nil
}

// Resume settles what a partially failed checkout left behind: the failed
// and unattempted vendor groups, then any outstanding delivery fee.
// Groups already committed are never touched. Once Resume commits anything,
// p is emptied and what is still outstanding travels in the new result or
// error, so resuming p again is a no-op. p must not be resumed concurrently.
func (e *CheckoutEngine) Resume(ctx context.Context, p *PartialCheckoutError) (*CheckoutResult, error) {
	if p == nil || (len(p.Remaining) == 0 && p.FeeOutstanding == 0) {
		return &CheckoutResult{}, nil
	}

	start := time.Now()
	res, err := func() (*CheckoutResult, error) {
		if err := e.checkBalance(ctx, p.ConsumerID, p.Remaining, p.FeeOutstanding); err != nil {
			return nil, err
		}
		return e.settle(ctx, "", p.ConsumerID, p.Remaining, p.FeeOutstanding)
	}()
	if err == nil || errors.Is(err, ErrPartialCheckout) {
		p.Remaining, p.FeeOutstanding = nil, 0
	}

	outcome := checkoutOutcome(err)
	e.metrics.ObserveCheckout(outcome, time.Since(start))
	logging.Log(logging.Fields{
		ConsumerID: p.ConsumerID,
		Step:       "resume",
		Status:     outcome,
		DurationMS: time.Since(start).Milliseconds(),
		Error:      logging.Err(err),
	})
	return res, err
}

func (e *CheckoutEngine) resolve(ctx context.Context, lines []domain.CartLine) ([]domain.OrderDraft, error) {
	ids := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}

	products, err := e.catalog.GetProductsByIDs(ctx, ids)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: catalog lookup: %w", ErrStoreUnavailable, err)
	}

	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		if p.VendorID != "" {
			byID[p.ID] = p
		}
	}

	var missing []string
	vendorOf := make(map[string]string, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		vendorOf[id] = p.VendorID
	}
	if len(missing) > 0 {
		return nil, &UnresolvableProductError{ProductIDs: missing}
	}

	if e.strictPricing {
		for _, l := range lines {
			if p := byID[l.ProductID]; p.Price != l.Price {
				return nil, fmt.Errorf("%w: %s was %d, now %d", ErrPriceChanged, l.ProductID, l.Price, p.Price)
			}
		}
	}

	return domain.GroupByVendor(lines, vendorOf)
}

func (e *CheckoutEngine) checkBalance(ctx context.Context, consumerID string, drafts []domain.OrderDraft, fee int64) error {
	total, err := domain.DraftsTotal(drafts)
	if err != nil {
		return err
	}
	need, ok := domain.AddAmounts(total, fee)
	if !ok {
		return fmt.Errorf("delivery fee %d on total %d: %w: %w", fee, total, ErrInvalidAmount, domain.ErrAmountOverflow)
	}

	balance, err := e.accounts.GetBalance(ctx, consumerID)
	if err != nil {
		return storeError(err)
	}
	if balance < need {
		return fmt.Errorf("%w: balance %d, need %d", ErrInsufficientFunds, balance, need)
	}
	return nil
}

// settle runs the saga: one settlement per draft in order, then the fee.
// It stops at the first failure.
func (e *CheckoutEngine) settle(ctx context.Context, requestID, consumerID string, drafts []domain.OrderDraft, fee int64) (*CheckoutResult, error) {
	res := &CheckoutResult{}

	partial := func(i int, err error) error {
		return &PartialCheckoutError{
			ConsumerID:     consumerID,
			Committed:      res.Settlements,
			Failed:         []VendorFailure{{VendorID: drafts[i].VendorID, Err: err}},
			Remaining:      drafts[i:],
			FeeOutstanding: fee,
		}
	}

	for i, d := range drafts {
		// the caller may abandon the checkout between vendor groups
		if err := ctx.Err(); err != nil {
			if len(res.Settlements) == 0 {
				return nil, err
			}
			return nil, partial(i, err)
		}

		order, err := e.settleVendor(ctx, requestID, consumerID, d)
		if err != nil {
			if len(res.Settlements) == 0 {
				return nil, err
			}
			return nil, partial(i, err)
		}

		res.OrderIDs = append(res.OrderIDs, order.ID)
		res.Settlements = append(res.Settlements, Settlement{VendorID: d.VendorID, OrderID: order.ID, Amount: d.Subtotal})
		e.publish(ctx, order)
	}

	if fee > 0 {
		if err := e.debitFee(ctx, requestID, consumerID, fee); err != nil {
			if len(res.Settlements) == 0 {
				return nil, err
			}
			return nil, &PartialCheckoutError{
				ConsumerID:     consumerID,
				Committed:      res.Settlements,
				FeeOutstanding: fee,
				FeeErr:         err,
			}
		}
		res.FeeCharged = fee
	}

	return res, nil
}

func (e *CheckoutEngine) settleVendor(ctx context.Context, requestID, consumerID string, d domain.OrderDraft) (domain.Order, error) {
	now := e.now()
	order := domain.Order{
		ID:         e.newID(),
		ConsumerID: consumerID,
		VendorID:   d.VendorID,
		Items:      d.Items,
		Total:      d.Subtotal,
		Status:     domain.OrderStatusReceived,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := e.retry.retry(ctx, isConflict, func(attempt int) error {
		// a submitted transaction runs to completion even if ctx is cancelled
		err := e.accounts.RunTransaction(context.WithoutCancel(ctx), func(ctx context.Context, tx port.Tx) error {
			if err := transfer(ctx, tx, consumerID, d.VendorID, d.Subtotal); err != nil {
				return err
			}
			return tx.CreateOrder(ctx, order)
		})
		e.logAttempt(requestID, consumerID, d.VendorID, order.ID, "settle_vendor", attempt, err)
		return err
	})
	if err != nil {
		if isConflict(err) {
			return domain.Order{}, fmt.Errorf("%w: vendor %s: %w", ErrSettlementConflict, d.VendorID, err)
		}
		return domain.Order{}, storeError(err)
	}
	return order, nil
}

func (e *CheckoutEngine) debitFee(ctx context.Context, requestID, consumerID string, fee int64) error {
	err := e.retry.retry(ctx, isConflict, func(attempt int) error {
		err := e.accounts.RunTransaction(context.WithoutCancel(ctx), func(ctx context.Context, tx port.Tx) error {
			return transfer(ctx, tx, consumerID, e.platformAccountID, fee)
		})
		e.logAttempt(requestID, consumerID, e.platformAccountID, "", "debit_fee", attempt, err)
		return err
	})
	if err != nil {
		if isConflict(err) {
			return fmt.Errorf("%w: delivery fee: %w", ErrSettlementConflict, err)
		}
		return storeError(err)
	}
	return nil
}

// transfer debits amount from one account and credits it to another inside
// tx. An empty payee only debits.
func transfer(ctx context.Context, tx port.Tx, from, to string, amount int64) error {
	payer, err := tx.GetAccount(ctx, from)
	if err != nil {
		return fmt.Errorf("read account %s: %w", from, err)
	}
	debited, ok := payer.Debit(amount)
	if !ok {
		return fmt.Errorf("%w: balance %d, need %d", ErrInsufficientFunds, payer.WalletBalance, amount)
	}
	if to == from {
		return nil
	}

	if to != "" {
		payee, err := tx.GetAccount(ctx, to)
		if err != nil {
			return fmt.Errorf("read account %s: %w", to, err)
		}
		if err := tx.PutAccount(ctx, payee.Credit(amount)); err != nil {
			return fmt.Errorf("credit %s: %w", to, err)
		}
	}
	if err := tx.PutAccount(ctx, debited); err != nil {
		return fmt.Errorf("debit %s: %w", from, err)
	}
	return nil
}

func (e *CheckoutEngine) publish(ctx context.Context, order domain.Order) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishOrderCreated(context.WithoutCancel(ctx), order); err != nil {
		logging.Log(logging.Fields{
			ConsumerID: order.ConsumerID,
			VendorID:   order.VendorID,
			OrderID:    order.ID,
			Step:       "publish_order_created",
			Status:     "failed",
			Error:      err.Error(),
		})
	}
}

func (e *CheckoutEngine) logAttempt(requestID, consumerID, vendorID, orderID, step string, attempt int, err error) {
	status := metrics.SettlementCommitted
	switch {
	case err == nil:
	case isConflict(err):
		status = metrics.SettlementConflict
	default:
		status = metrics.SettlementFailed
	}
	e.metrics.ObserveSettlement(status)
	logging.Log(logging.Fields{
		RequestID:  requestID,
		ConsumerID: consumerID,
		VendorID:   vendorID,
		OrderID:    orderID,
		Step:       step,
		Status:     status,
		Attempt:    attempt,
		Error:      logging.Err(err),
	})
}

func isConflict(err error) bool {
	return errors.Is(err, port.ErrConflict)
}

// storeError keeps domain failures as they are and marks anything else as a
// backend failure the caller may retry.
func storeError(err error) error {
	switch {
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, port.ErrAccountNotFound),
		errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func checkoutOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeCompleted
	case errors.Is(err, ErrPartialCheckout):
		return metrics.OutcomePartial
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrInvalidCartLine),
		errors.Is(err, ErrMissingConsumer),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrUnresolvableProduct),
		errors.Is(err, ErrPriceChanged),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrDuplicateRequest),
		errors.Is(err, port.ErrAccountNotFound):
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeFailed
}

func idempotencyKey(consumerID, requestID string) string {
	return fmt.Sprintf("checkout:%s:%s", consumerID, requestID)
}
