package domain

import "time"

type Account struct {
	UserID        string
	WalletBalance int64 // minor currency units
	Version       int64 // optimistic locking
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Debit returns the account with amount removed, or false if the balance
// would go negative.
func (a Account) Debit(amount int64) (Account, bool) {
	if amount < 0 || a.WalletBalance < amount {
		return a, false
	}
	a.WalletBalance -= amount
	return a, true
}

func (a Account) Credit(amount int64) Account {
	a.WalletBalance += amount
	return a
}
