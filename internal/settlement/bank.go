package settlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/observability"
)

// ErrInsufficientBalance is returned when a transfer exceeds the sender's balance.
var ErrInsufficientBalance = errors.New("settlement: insufficient balance")

// Bank is an in-memory balance sheet that settles transfers immediately.
// Used in development mode and tests.
type Bank struct {
	mu       sync.RWMutex
	balances map[domain.Identity]uint64
	history  []domain.Transfer
	now      func() time.Time
}

// NewBank creates an empty Bank.
func NewBank() *Bank {
	return &Bank{
		balances: make(map[domain.Identity]uint64),
		now:      time.Now,
	}
}

// Fund credits amount to owner, saturating at the uint64 maximum.
func (b *Bank) Fund(owner domain.Identity, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	balance := b.balances[owner] + amount
	if balance < amount {
		balance = ^uint64(0)
	}
	b.balances[owner] = balance
}

// AvailableBalance returns owner's balance.
func (b *Bank) AvailableBalance(_ context.Context, owner domain.Identity) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[owner], nil
}

// Transfer moves amount from one identity to another.
func (b *Bank) Transfer(ctx context.Context, from, to domain.Identity, amount uint64, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == 0 || from == to {
		return ErrInvalidTransfer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.balances[from] < amount {
		return ErrInsufficientBalance
	}
	credited := b.balances[to] + amount
	if credited < amount {
		return ErrInvalidTransfer
	}
	b.balances[from] -= amount
	b.balances[to] = credited

	b.history = append(b.history, domain.Transfer{
		TransferID: uuid.NewString(),
		From:       from,
		To:         to,
		Amount:     amount,
		Reason:     reason,
		Status:     domain.TransferSettled,
		CreatedAt:  b.now().Unix(),
	})
	observability.RecordTransfer(reason)
	return nil
}

// History returns settled transfers in execution order.
func (b *Bank) History() []domain.Transfer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]domain.Transfer(nil), b.history...)
}
