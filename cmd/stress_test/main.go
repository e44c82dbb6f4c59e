package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/kravings/internal/adapter/storage"
	"github.com/rl1809/kravings/internal/core/domain"
	"github.com/rl1809/kravings/internal/core/service"
)

const (
	redisAddr         = "localhost:6379"
	consumers         = 50
	requestsPerUser   = 6
	startingBalance   = 10000
	deliveryFee       = 1500
	checkoutAmount    = 2500 + 1000 // one item from each vendor
	expectedPerUser   = startingBalance / (checkoutAmount + deliveryFee)
	duplicatesPerUser = 1
)

var vendors = []string{"vendor-a", "vendor-b"}

func main() {
	ctx := context.Background()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Clear previous test data
	keys, _ := rdb.Keys(ctx, "idempotency:checkout:stress-*").Result()
	for _, k := range keys {
		rdb.Del(ctx, k)
	}

	store := storage.NewMemoryStore()
	store.PutProduct(domain.Product{ID: "jollof", VendorID: vendors[0], Name: "Jollof Rice", Price: 2500})
	store.PutProduct(domain.Product{ID: "suya", VendorID: vendors[1], Name: "Suya", Price: 1000})
	for _, v := range vendors {
		store.SetBalance(v, 0)
	}
	for i := 0; i < consumers; i++ {
		store.SetBalance(consumerID(i), startingBalance)
	}

	cache := storage.NewRedisAdapter(rdb, time.Minute, time.Minute)
	engine := service.NewCheckoutEngine(store, store,
		service.WithIdempotencyGuard(cache),
		service.WithRetryPolicy(service.RetryPolicy{MaxAttempts: 20, BaseDelay: time.Millisecond, MaxDelay: 50 * time.Millisecond}),
	)

	lines := []domain.CartLine{
		{ProductID: "jollof", Name: "Jollof Rice", Price: 2500, Quantity: 1},
		{ProductID: "suya", Name: "Suya", Price: 1000, Quantity: 1},
	}

	// Counters
	var successCount, duplicateCount, fundsCount, conflictCount, partialCount, otherCount atomic.Int32
	var feesCharged atomic.Int64

	// Spawn concurrent checkouts; the first request id of each user is sent twice
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < consumers; i++ {
		for r := 0; r < requestsPerUser+duplicatesPerUser; r++ {
			wg.Add(1)
			go func(user, req int) {
				defer wg.Done()

				res, err := engine.Checkout(ctx, service.CheckoutRequest{
					RequestID:   fmt.Sprintf("stress-%d-%d", user, min(req, requestsPerUser-1)),
					ConsumerID:  consumerID(user),
					Lines:       lines,
					DeliveryFee: deliveryFee,
				})
				switch {
				case err == nil:
					successCount.Add(1)
					feesCharged.Add(res.FeeCharged)
				case errors.Is(err, service.ErrPartialCheckout):
					partialCount.Add(1)
				case errors.Is(err, service.ErrDuplicateRequest):
					duplicateCount.Add(1)
				case errors.Is(err, service.ErrInsufficientFunds):
					fundsCount.Add(1)
				case errors.Is(err, service.ErrSettlementConflict):
					conflictCount.Add(1)
				default:
					otherCount.Add(1)
					log.Printf("unexpected error: %v", err)
				}
			}(i, r)
		}
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Conservation: money only leaves the system as delivery fees
	var total int64
	negative := 0
	for i := 0; i < consumers; i++ {
		b, _ := store.GetBalance(ctx, consumerID(i))
		if b < 0 {
			negative++
		}
		total += b
	}
	for _, v := range vendors {
		b, _ := store.GetBalance(ctx, v)
		total += b
	}
	initial := int64(consumers * startingBalance)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Consumers:           %d\n", consumers)
	fmt.Printf("Requests:            %d\n", consumers*(requestsPerUser+duplicatesPerUser))
	fmt.Printf("Successful:          %d\n", successCount.Load())
	fmt.Printf("Duplicates:          %d\n", duplicateCount.Load())
	fmt.Printf("Insufficient funds:  %d\n", fundsCount.Load())
	fmt.Printf("Conflicts:           %d\n", conflictCount.Load())
	fmt.Printf("Partial:             %d\n", partialCount.Load())
	fmt.Printf("Other errors:        %d\n", otherCount.Load())
	fmt.Printf("Duration:            %v\n", elapsed)
	fmt.Println("==========================================")

	if total+feesCharged.Load() == initial {
		fmt.Printf("PASS: money conserved (%d in wallets + %d fees)\n", total, feesCharged.Load())
	} else {
		fmt.Printf("FAIL: expected %d, got %d in wallets + %d fees\n", initial, total, feesCharged.Load())
	}

	if negative == 0 {
		fmt.Println("PASS: no negative balances")
	} else {
		fmt.Printf("FAIL: %d negative balances\n", negative)
	}

	// a claim released after a rejected checkout lets its twin run again
	if duplicateCount.Load() <= int32(consumers*duplicatesPerUser) {
		fmt.Printf("PASS: %d duplicate requests rejected\n", duplicateCount.Load())
	} else {
		fmt.Printf("FAIL: %d duplicates reported for %d repeated ids\n", duplicateCount.Load(), consumers*duplicatesPerUser)
	}

	if successCount.Load() <= int32(consumers*expectedPerUser) {
		fmt.Printf("PASS: at most %d checkouts per consumer\n", expectedPerUser)
	} else {
		fmt.Printf("FAIL: %d checkouts exceed what balances allow\n", successCount.Load())
	}
}

func consumerID(i int) string {
	return fmt.Sprintf("consumer-%d", i)
}
