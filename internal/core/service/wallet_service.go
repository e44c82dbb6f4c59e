package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/kravings/internal/logging"
	"github.com/rl1809/kravings/internal/port"
)

type WalletService struct {
	accounts port.AccountStore
	retry    RetryPolicy
}

func NewWalletService(accounts port.AccountStore, retry RetryPolicy) *WalletService {
	return &WalletService{accounts: accounts, retry: retry}
}

// EnsureAccount creates a zero-balance wallet on first sign-in. Existing
// accounts are left untouched.
func (s *WalletService) EnsureAccount(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrMissingConsumer
	}
	err := s.accounts.CreateAccount(ctx, userID)
	if err != nil && !errors.Is(err, port.ErrAccountExists) {
		return storeError(err)
	}
	return nil
}

func (s *WalletService) Balance(ctx context.Context, userID string) (int64, error) {
	balance, err := s.accounts.GetBalance(ctx, userID)
	if err != nil {
		return 0, storeError(err)
	}
	return balance, nil
}

// Fund credits amount to the wallet and returns the new balance.
func (s *WalletService) Fund(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("fund %d: %w", amount, ErrInvalidAmount)
	}

	var balance int64
	err := s.retry.retry(ctx, isConflict, func(attempt int) error {
		return s.accounts.RunTransaction(context.WithoutCancel(ctx), func(ctx context.Context, tx port.Tx) error {
			acct, err := tx.GetAccount(ctx, userID)
			if err != nil {
				return err
			}
			acct = acct.Credit(amount)
			if err := tx.PutAccount(ctx, acct); err != nil {
				return err
			}
			balance = acct.WalletBalance
			return nil
		})
	})
	if err != nil {
		if isConflict(err) {
			return 0, fmt.Errorf("%w: fund %s: %w", ErrSettlementConflict, userID, err)
		}
		return 0, storeError(err)
	}

	logging.Log(logging.Fields{ConsumerID: userID, Step: "fund_wallet", Status: "committed"})
	return balance, nil
}
