package storage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/kravings/internal/core/domain"
	"github.com/rl1809/kravings/internal/logging"
	"github.com/rl1809/kravings/internal/port"
)

// ResilientCatalog wraps a catalog with a circuit breaker and collapses
// identical concurrent lookups into one backend call.
type ResilientCatalog struct {
	next    port.Catalog
	sfg     singleflight.Group
	breaker *gobreaker.CircuitBreaker[[]domain.Product]
}

func NewResilientCatalog(next port.Catalog, maxFailures uint32, openTimeout time.Duration) *ResilientCatalog {
	settings := gobreaker.Settings{
		Name:    "catalog",
		Timeout: openTimeout,
		// a caller giving up says nothing about the backend
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Log(logging.Fields{
				Step:    "circuit_breaker",
				Status:  to.String(),
				Message: name + " breaker left " + from.String(),
			})
		},
	}
	return &ResilientCatalog{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[[]domain.Product](settings),
	}
}

// GetProductsByIDs joins any identical lookup already in flight. The shared
// call is detached from ctx so one caller leaving does not fail the others;
// each caller still returns as soon as its own ctx is done.
func (c *ResilientCatalog) GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	key := slices.Clone(ids)
	slices.Sort(key)

	shared := context.WithoutCancel(ctx)
	ch := c.sfg.DoChan(strings.Join(key, "\x00"), func() (interface{}, error) {
		return c.breaker.Execute(func() ([]domain.Product, error) {
			return c.next.GetProductsByIDs(shared, ids)
		})
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return slices.Clone(r.Val.([]domain.Product)), nil
	}
}

func (c *ResilientCatalog) State() gobreaker.State {
	return c.breaker.State()
}
