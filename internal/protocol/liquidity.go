package protocol

import (
	"context"
	"errors"
	"fmt"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/storage"
)

// SlashResult reports the outcome of SlashInactive.
type SlashResult struct {
	Position *domain.LiquidityPosition `json:"position"`
	Slashed  bool                      `json:"slashed"`
	Amount   uint64                    `json:"amount"` // rewards removed
}

// Contribute adds amount to owner's liquidity and accrues RewardRateBps of it
// as rewards. The asset's total liquidity grows by the same amount.
func (p *Protocol) Contribute(ctx context.Context, owner domain.Identity, amount uint64) (*domain.LiquidityPosition, error) {
	if err := checkCaller(owner); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	reward, err := mulDivU64(amount, p.params.RewardRateBps, bpsDenominator)
	if err != nil {
		return nil, err
	}

	var pos *domain.LiquidityPosition
	err = p.apply(ctx, "contribute", func(tx storage.Tx, now int64, fx *effects) error {
		state, err := p.loadPrice(ctx, tx)
		if err != nil {
			return err
		}

		key := storage.PositionKey(p.params.Asset, owner)
		pos, err = storage.Load[domain.LiquidityPosition](ctx, tx, key)
		created := errors.Is(err, storage.ErrNotFound)
		switch {
		case created:
			pos = &domain.LiquidityPosition{
				Asset:              p.params.Asset,
				Owner:              owner,
				LastClaimTimestamp: now,
				CreatedAt:          now,
			}
		case err != nil:
			return err
		}

		if pos.Liquidity, err = addU64(pos.Liquidity, amount); err != nil {
			return err
		}
		if pos.Rewards, err = addU64(pos.Rewards, reward); err != nil {
			return err
		}
		if state.TotalLiquidity, err = addU64(state.TotalLiquidity, amount); err != nil {
			return err
		}

		if created {
			err = storage.Create(ctx, tx, key, pos)
		} else {
			err = storage.Save(ctx, tx, key, pos)
		}
		if err != nil {
			return err
		}
		if err := p.savePrice(ctx, tx, state, now, fx); err != nil {
			return err
		}

		fx.emit(&domain.LedgerEvent{
			Type:    domain.EventLiquidityAdded,
			Actor:   owner,
			Subject: owner,
			Amount:  amount,
			Price:   state.Price,
			Detail:  fmt.Sprintf("reward=%d", reward),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// VestAndClaim withdraws amount of owner's rewards once more than
// VestingPeriod has passed since the last claim. The withdrawal is reported
// as a treasury → owner transfer.
func (p *Protocol) VestAndClaim(ctx context.Context, owner domain.Identity, amount uint64) (*domain.LiquidityPosition, error) {
	if err := checkCaller(owner); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	var pos *domain.LiquidityPosition
	err := p.apply(ctx, "vest_and_claim", func(tx storage.Tx, now int64, fx *effects) error {
		var err error
		if pos, err = p.loadPosition(ctx, tx, owner); err != nil {
			return err
		}
		if elapsed := now - pos.LastClaimTimestamp; elapsed <= p.params.vestingSeconds() {
			return fmt.Errorf("%w: %ds elapsed, need more than %ds", ErrVestingPeriodNotMet, elapsed, p.params.vestingSeconds())
		}
		if amount > pos.Rewards {
			return fmt.Errorf("%w: requested %d, accrued %d", ErrInsufficientRewards, amount, pos.Rewards)
		}

		pos.Rewards -= amount
		pos.LastClaimTimestamp = now
		if err := p.savePosition(ctx, tx, pos); err != nil {
			return err
		}
		if err := p.transfer(ctx, tx, p.params.Treasury, owner, amount, ReasonRewardClaim); err != nil {
			return err
		}

		fx.emit(&domain.LedgerEvent{Type: domain.EventRewardsClaimed, Actor: owner, Subject: owner, Amount: amount})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// SlashInactive halves owner's rewards if the position has been idle for more
// than inactivityPeriod seconds. A slash restarts the inactivity window, so
// rewards halve at most once per window. An active position is left as is.
func (p *Protocol) SlashInactive(ctx context.Context, caller, owner domain.Identity, inactivityPeriod int64) (*SlashResult, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	if inactivityPeriod <= 0 {
		return nil, ErrInvalidAmount
	}

	var result *SlashResult
	err := p.apply(ctx, "slash_inactive", func(tx storage.Tx, now int64, fx *effects) error {
		if _, err := p.loadPriceAs(ctx, tx, caller); err != nil {
			return err
		}
		pos, err := p.loadPosition(ctx, tx, owner)
		if err != nil {
			return err
		}

		result = &SlashResult{Position: pos}
		if now-pos.LastActivity() <= inactivityPeriod {
			return nil
		}

		halved := pos.Rewards / 2
		result.Amount = pos.Rewards - halved
		result.Slashed = true
		pos.Rewards = halved
		pos.LastSlashTimestamp = now
		if err := p.savePosition(ctx, tx, pos); err != nil {
			return err
		}

		fx.emit(&domain.LedgerEvent{
			Type:    domain.EventRewardsSlashed,
			Actor:   caller,
			Subject: owner,
			Amount:  result.Amount,
			Detail:  fmt.Sprintf("inactivity_period=%d", inactivityPeriod),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Position returns owner's liquidity position.
func (p *Protocol) Position(ctx context.Context, owner domain.Identity) (*domain.LiquidityPosition, error) {
	var pos *domain.LiquidityPosition
	err := p.view(ctx, func(tx storage.Tx) error {
		var err error
		pos, err = p.loadPosition(ctx, tx, owner)
		return err
	})
	return pos, err
}

// Positions returns every liquidity position of the asset, ordered by owner.
func (p *Protocol) Positions(ctx context.Context) ([]*domain.LiquidityPosition, error) {
	var positions []*domain.LiquidityPosition
	err := p.view(ctx, func(tx storage.Tx) error {
		var err error
		positions, err = storage.LoadAll[domain.LiquidityPosition](ctx, tx, storage.KindPosition, storage.AssetPrefix(p.params.Asset))
		return err
	})
	return positions, err
}
