package protocol

import (
	"context"

	"dynamic-pricing-ledger/internal/storage"
)

// FeeQuote is the fee owed on a transaction at the current liquidity depth.
type FeeQuote struct {
	Amount         uint64 `json:"amount"`
	RatePercent    uint64 `json:"rate_percent"`
	Fee            uint64 `json:"fee"`
	TotalLiquidity uint64 `json:"total_liquidity"`
}

// FeeRate returns the percent charged at totalLiquidity: the first tier whose
// bound exceeds it, else DefaultFeePercent.
func (p Params) FeeRate(totalLiquidity uint64) uint64 {
	for _, tier := range p.FeeTiers {
		if totalLiquidity < tier.Below {
			return tier.Percent
		}
	}
	return p.DefaultFeePercent
}

// ComputeFee prices a transaction of amount at totalLiquidity.
func (p Params) ComputeFee(amount, totalLiquidity uint64) (FeeQuote, error) {
	rate := p.FeeRate(totalLiquidity)
	fee, err := mulDivU64(amount, rate, percentDenominator)
	if err != nil {
		return FeeQuote{}, err
	}
	return FeeQuote{Amount: amount, RatePercent: rate, Fee: fee, TotalLiquidity: totalLiquidity}, nil
}

// FeeFor quotes the fee on amount against the asset's current total liquidity.
func (p *Protocol) FeeFor(ctx context.Context, amount uint64) (FeeQuote, error) {
	var quote FeeQuote
	err := p.view(ctx, func(tx storage.Tx) error {
		state, err := p.loadPrice(ctx, tx)
		if err != nil {
			return err
		}
		quote, err = p.params.ComputeFee(amount, state.TotalLiquidity)
		return err
	})
	return quote, err
}
