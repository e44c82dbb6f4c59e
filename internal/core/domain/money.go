package domain

import (
	"errors"
	"math"
)

// Amounts are integer minor units. Every product and sum is checked so a
// large quantity cannot wrap into a small or negative charge.
var ErrAmountOverflow = errors.New("amount overflows int64")

func lineAmount(price int64, quantity int) (int64, bool) {
	if price < 0 || quantity < 0 {
		return 0, false
	}
	if price > 0 && int64(quantity) > math.MaxInt64/price {
		return 0, false
	}
	return price * int64(quantity), true
}

// AddAmounts sums non-negative amounts, reporting false on overflow or a
// negative operand.
func AddAmounts(amounts ...int64) (int64, bool) {
	var total int64
	for _, a := range amounts {
		if a < 0 || a > math.MaxInt64-total {
			return 0, false
		}
		total += a
	}
	return total, true
}
