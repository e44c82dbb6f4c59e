package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rl1809/kravings/internal/core/domain"
)

var (
	ErrDuplicateRequest    = errors.New("duplicate request")
	ErrEmptyCart           = errors.New("cart is empty, nothing to checkout")
	ErrInvalidCartLine     = domain.ErrInvalidCartLine
	ErrUnresolvableProduct = errors.New("product no longer available")
	ErrPriceChanged        = errors.New("product price changed since it was added to the cart")
	ErrInsufficientFunds   = errors.New("insufficient wallet balance")
	ErrSettlementConflict  = errors.New("settlement conflict, retries exhausted")
	ErrPartialCheckout     = errors.New("checkout partially settled")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidTransition   = errors.New("illegal transition of order status")
)

type UnresolvableProductError struct {
	ProductIDs []string
}

func (e *UnresolvableProductError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnresolvableProduct, strings.Join(e.ProductIDs, ", "))
}

func (e *UnresolvableProductError) Is(target error) bool {
	return target == ErrUnresolvableProduct
}

type Settlement struct {
	VendorID string
	OrderID  string
	Amount   int64
}

type VendorFailure struct {
	VendorID string
	Err      error
}

// PartialCheckoutError is returned when some vendor groups committed and a
// later step did not. Committed groups must not be resubmitted.
type PartialCheckoutError struct {
	ConsumerID string
	Committed  []Settlement
	Failed     []VendorFailure

	// Remaining holds the drafts not yet settled, failed group first
	Remaining []domain.OrderDraft

	// FeeOutstanding is the delivery fee not yet debited
	FeeOutstanding int64
	FeeErr         error
}

func (e *PartialCheckoutError) Error() string {
	committed := make([]string, 0, len(e.Committed))
	for _, s := range e.Committed {
		committed = append(committed, s.VendorID)
	}
	failed := make([]string, 0, len(e.Failed)+1)
	for _, f := range e.Failed {
		failed = append(failed, fmt.Sprintf("%s (%v)", f.VendorID, f.Err))
	}
	if e.FeeErr != nil {
		failed = append(failed, fmt.Sprintf("delivery fee (%v)", e.FeeErr))
	}
	return fmt.Sprintf("%s: committed [%s], failed [%s]",
		ErrPartialCheckout, strings.Join(committed, ", "), strings.Join(failed, ", "))
}

func (e *PartialCheckoutError) Is(target error) bool {
	return target == ErrPartialCheckout
}

func (e *PartialCheckoutError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed)+1)
	for _, f := range e.Failed {
		errs = append(errs, f.Err)
	}
	if e.FeeErr != nil {
		errs = append(errs, e.FeeErr)
	}
	return errs
}

// RemainingLines flattens Remaining back into cart lines.
func (e *PartialCheckoutError) RemainingLines() []domain.CartLine {
	var lines []domain.CartLine
	for _, d := range e.Remaining {
		lines = append(lines, d.Lines()...)
	}
	return lines
}

func (e *PartialCheckoutError) CommittedOrderIDs() []string {
	ids := make([]string, 0, len(e.Committed))
	for _, s := range e.Committed {
		ids = append(ids, s.OrderID)
	}
	return ids
}
