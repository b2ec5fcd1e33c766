package protocol

import (
	"context"
	"fmt"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/storage"
)

// Distribution is the result of DistributeAll.
type Distribution struct {
	TotalRevenue   uint64                `json:"total_revenue"`
	TotalLiquidity uint64                `json:"total_liquidity"`
	Shares         []domain.RevenueShare `json:"shares"`
	Distributed    uint64                `json:"distributed"`
	Remainder      uint64                `json:"remainder"` // left undistributed by floor rounding
}

// Distribute credits owner with floor(liquidity × totalRevenue / totalLiquidity)
// and returns the share.
func (p *Protocol) Distribute(ctx context.Context, caller, owner domain.Identity, totalRevenue uint64) (uint64, error) {
	if err := checkCaller(caller); err != nil {
		return 0, err
	}

	var share uint64
	err := p.apply(ctx, "distribute", func(tx storage.Tx, now int64, fx *effects) error {
		state, err := p.loadPriceAs(ctx, tx, caller)
		if err != nil {
			return err
		}
		if state.TotalLiquidity == 0 {
			return ErrNoLiquidity
		}
		if totalRevenue == 0 {
			return ErrInvalidAmount
		}
		pos, err := p.loadPosition(ctx, tx, owner)
		if err != nil {
			return err
		}
		if share, err = revenueShare(pos.Liquidity, state.TotalLiquidity, totalRevenue); err != nil {
			return err
		}
		if pos.Rewards, err = addU64(pos.Rewards, share); err != nil {
			return err
		}
		if err := p.savePosition(ctx, tx, pos); err != nil {
			return err
		}

		fx.emit(&domain.LedgerEvent{
			Type:    domain.EventRevenueDistributed,
			Actor:   caller,
			Subject: owner,
			Amount:  share,
			Detail:  fmt.Sprintf("total_revenue=%d total_liquidity=%d", totalRevenue, state.TotalLiquidity),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return share, nil
}

// DistributeAll splits totalRevenue across every position of the asset in one
// update. The sum of shares never exceeds totalRevenue.
func (p *Protocol) DistributeAll(ctx context.Context, caller domain.Identity, totalRevenue uint64) (*Distribution, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}

	var dist *Distribution
	err := p.apply(ctx, "distribute_all", func(tx storage.Tx, now int64, fx *effects) error {
		state, err := p.loadPriceAs(ctx, tx, caller)
		if err != nil {
			return err
		}
		if state.TotalLiquidity == 0 {
			return ErrNoLiquidity
		}
		if totalRevenue == 0 {
			return ErrInvalidAmount
		}
		positions, err := storage.LoadAll[domain.LiquidityPosition](ctx, tx, storage.KindPosition, storage.AssetPrefix(p.params.Asset))
		if err != nil {
			return err
		}

		var sum uint64
		for _, pos := range positions {
			if sum, err = addU64(sum, pos.Liquidity); err != nil {
				return err
			}
		}
		if sum != state.TotalLiquidity {
			return fmt.Errorf("%w: positions hold %d, total liquidity is %d", ErrInvalidState, sum, state.TotalLiquidity)
		}

		dist = &Distribution{
			TotalRevenue:   totalRevenue,
			TotalLiquidity: state.TotalLiquidity,
			Shares:         make([]domain.RevenueShare, 0, len(positions)),
		}
		for _, pos := range positions {
			share, err := revenueShare(pos.Liquidity, state.TotalLiquidity, totalRevenue)
			if err != nil {
				return err
			}
			if share > 0 {
				if pos.Rewards, err = addU64(pos.Rewards, share); err != nil {
					return err
				}
				if err := p.savePosition(ctx, tx, pos); err != nil {
					return err
				}
			}
			dist.Shares = append(dist.Shares, domain.RevenueShare{Owner: pos.Owner, Share: share})
			dist.Distributed += share
		}
		dist.Remainder = totalRevenue - dist.Distributed

		fx.emit(&domain.LedgerEvent{
			Type:   domain.EventRevenueDistributed,
			Actor:  caller,
			Amount: dist.Distributed,
			Detail: fmt.Sprintf("total_revenue=%d providers=%d remainder=%d", totalRevenue, len(positions), dist.Remainder),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dist, nil
}

func revenueShare(liquidity, totalLiquidity, totalRevenue uint64) (uint64, error) {
	if liquidity > totalLiquidity {
		return 0, fmt.Errorf("%w: position liquidity %d exceeds total %d", ErrInvalidState, liquidity, totalLiquidity)
	}
	return mulDivU64(liquidity, totalRevenue, totalLiquidity)
}
