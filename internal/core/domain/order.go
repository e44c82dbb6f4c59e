package domain

import (
	"fmt"
	"time"
)

type OrderStatus string

// Values are the strings shown in the order history views.
const (
	OrderStatusReceived         OrderStatus = "Order Received"
	OrderStatusProcessing       OrderStatus = "Processing"
	OrderStatusReadyForDispatch OrderStatus = "Ready for Dispatch"
)

// Next returns the status a vendor may advance to, or false at the end of
// the lifecycle.
func (s OrderStatus) Next() (OrderStatus, bool) {
	switch s {
	case OrderStatusReceived:
		return OrderStatusProcessing, true
	case OrderStatusProcessing:
		return OrderStatusReadyForDispatch, true
	}
	return "", false
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusReceived, OrderStatusProcessing, OrderStatusReadyForDispatch:
		return true
	}
	return false
}

func CanTransitionTo(from, to OrderStatus) bool {
	next, ok := from.Next()
	return ok && next == to
}

type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
	ImageURL  string `json:"image_url"`
}

type Order struct {
	ID         string
	ConsumerID string
	VendorID   string
	Items      []OrderItem
	Total      int64
	Status     OrderStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func ItemsTotal(items []OrderItem) (int64, error) {
	var total int64
	for _, it := range items {
		amount, ok := lineAmount(it.Price, it.Quantity)
		if !ok {
			return 0, fmt.Errorf("item %s price %d x %d: %w", it.ProductID, it.Price, it.Quantity, ErrAmountOverflow)
		}
		if total, ok = AddAmounts(total, amount); !ok {
			return 0, ErrAmountOverflow
		}
	}
	return total, nil
}

func (o Order) Validate() error {
	got, err := ItemsTotal(o.Items)
	if err != nil {
		return fmt.Errorf("order %s: %w", o.ID, err)
	}
	if got != o.Total {
		return fmt.Errorf("order %s total %d does not match items %d", o.ID, o.Total, got)
	}
	if !o.Status.Valid() {
		return fmt.Errorf("order %s has unknown status %q", o.ID, o.Status)
	}
	return nil
}
