package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/mrops-br/emmytech-marketplace/internal/domain"
)

var ErrBalanceOverflow = errors.New("balance overflow")

// Ledger keeps account balances in memory.
type Ledger struct {
	mu       sync.RWMutex
	balances map[domain.Address]int64
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[domain.Address]int64)}
}

// Credit adds a positive amount to the account.
func (l *Ledger) Credit(_ context.Context, account domain.Address, amount int64) error {
	if !account.Valid() {
		return fmt.Errorf("%w: account address is required", domain.ErrInvalidInput)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: credit amount must be positive", domain.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.balances[account]
	if current > math.MaxInt64-amount {
		return fmt.Errorf("%w: account %s", ErrBalanceOverflow, account)
	}
	l.balances[account] = current + amount
	return nil
}

// Balance returns zero for accounts that never received funds.
func (l *Ledger) Balance(_ context.Context, account domain.Address) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account], nil
}
