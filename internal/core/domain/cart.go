package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidCartLine = errors.New("invalid cart line")

type CartLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	ImageURL  string `json:"image_url"`
	Quantity  int    `json:"quantity"`
}

func (l CartLine) Validate() error {
	if l.ProductID == "" {
		return fmt.Errorf("%w: missing product id", ErrInvalidCartLine)
	}
	if l.Quantity < 1 {
		return fmt.Errorf("%w: product %s quantity %d", ErrInvalidCartLine, l.ProductID, l.Quantity)
	}
	if l.Price < 0 {
		return fmt.Errorf("%w: product %s price %d", ErrInvalidCartLine, l.ProductID, l.Price)
	}
	if _, ok := lineAmount(l.Price, l.Quantity); !ok {
		return fmt.Errorf("%w: product %s price %d x %d: %w", ErrInvalidCartLine, l.ProductID, l.Price, l.Quantity, ErrAmountOverflow)
	}
	return nil
}

// Amount is Price times Quantity. Only meaningful for a line that passed
// Validate.
func (l CartLine) Amount() int64 {
	amount, _ := lineAmount(l.Price, l.Quantity)
	return amount
}

// LinesTotal validates every line and sums their amounts.
func LinesTotal(lines []CartLine) (int64, error) {
	var total int64
	for _, l := range lines {
		if err := l.Validate(); err != nil {
			return 0, err
		}
		sum, ok := AddAmounts(total, l.Amount())
		if !ok {
			return 0, fmt.Errorf("%w: cart total: %w", ErrInvalidCartLine, ErrAmountOverflow)
		}
		total = sum
	}
	return total, nil
}

type Cart struct {
	ConsumerID string     `json:"consumer_id"`
	Lines      []CartLine `json:"lines"`
}

// Total is the cart value for display. An invalid cart reports zero.
func (c Cart) Total() int64 {
	total, err := LinesTotal(c.Lines)
	if err != nil {
		return 0
	}
	return total
}
