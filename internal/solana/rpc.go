package solana

import (
	"context"

	"dynamic-pricing-ledger/internal/domain"
)

// BalanceSource reports spendable lamports of an identity.
type BalanceSource interface {
	AvailableBalance(ctx context.Context, owner domain.Identity) (uint64, error)
}
