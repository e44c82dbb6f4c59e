package service

import (
	"context"

	"github.com/rl1809/kravings/internal/core/domain"
	"github.com/rl1809/kravings/internal/port"
)

type CartService struct {
	carts port.CartStore
}

func NewCartService(carts port.CartStore) *CartService {
	return &CartService{carts: carts}
}

func (s *CartService) Get(ctx context.Context, consumerID string) (domain.Cart, error) {
	cart, err := s.carts.GetCart(ctx, consumerID)
	if err != nil {
		return domain.Cart{}, storeError(err)
	}
	return cart, nil
}

// AddLine adds line to the cart, merging quantities for a product already
// present. The price snapshot of the existing line is kept.
func (s *CartService) AddLine(ctx context.Context, consumerID string, line domain.CartLine) (domain.Cart, error) {
	if consumerID == "" {
		return domain.Cart{}, ErrMissingConsumer
	}
	if err := line.Validate(); err != nil {
		return domain.Cart{}, err
	}

	cart, err := s.Get(ctx, consumerID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.ConsumerID = consumerID

	merged := false
	for i := range cart.Lines {
		if cart.Lines[i].ProductID == line.ProductID {
			cart.Lines[i].Quantity += line.Quantity
			merged = true
			break
		}
	}
	if !merged {
		cart.Lines = append(cart.Lines, line)
	}
	if _, err := domain.LinesTotal(cart.Lines); err != nil {
		return domain.Cart{}, err
	}

	if err := s.carts.SaveCart(ctx, cart); err != nil {
		return domain.Cart{}, storeError(err)
	}
	return cart, nil
}

func (s *CartService) RemoveLine(ctx context.Context, consumerID, productID string) (domain.Cart, error) {
	cart, err := s.Get(ctx, consumerID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.ConsumerID = consumerID

	kept := cart.Lines[:0]
	for _, l := range cart.Lines {
		if l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	cart.Lines = kept

	if len(cart.Lines) == 0 {
		err = s.carts.DeleteCart(ctx, consumerID)
	} else {
		err = s.carts.SaveCart(ctx, cart)
	}
	if err != nil {
		return domain.Cart{}, storeError(err)
	}
	return cart, nil
}

func (s *CartService) Clear(ctx context.Context, consumerID string) error {
	if err := s.carts.DeleteCart(ctx, consumerID); err != nil {
		return storeError(err)
	}
	return nil
}
