package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/kravings/internal/core/domain"
	"github.com/rl1809/kravings/internal/logging"
	"github.com/rl1809/kravings/internal/port"
)

// OrderService serves the order history views and the vendor's status
// updates. Orders are only ever created by the CheckoutEngine.
type OrderService struct {
	orders port.OrderLog
}

func NewOrderService(orders port.OrderLog) *OrderService {
	return &OrderService{orders: orders}
}

func (s *OrderService) ListByConsumer(ctx context.Context, consumerID string) ([]domain.Order, error) {
	orders, err := s.orders.ListOrdersByConsumer(ctx, consumerID)
	if err != nil {
		return nil, storeError(err)
	}
	return orders, nil
}

func (s *OrderService) ListByVendor(ctx context.Context, vendorID string) ([]domain.Order, error) {
	orders, err := s.orders.ListOrdersByVendor(ctx, vendorID)
	if err != nil {
		return nil, storeError(err)
	}
	return orders, nil
}

// Advance moves one of vendorID's orders to its next status.
func (s *OrderService) Advance(ctx context.Context, vendorID, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, port.ErrOrderNotFound) {
			return nil, err
		}
		return nil, storeError(err)
	}
	if order.VendorID != vendorID {
		return nil, port.ErrOrderNotFound
	}

	next, ok := order.Status.Next()
	if !ok {
		return nil, fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, orderID, order.Status)
	}

	if err := s.orders.UpdateOrderStatus(ctx, orderID, order.Status, next); err != nil {
		if errors.Is(err, port.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTransition, err)
		}
		return nil, storeError(err)
	}

	logging.Log(logging.Fields{
		VendorID: vendorID,
		OrderID:  orderID,
		Step:     "advance_order",
		Status:   string(next),
	})

	order.Status = next
	return order, nil
}
