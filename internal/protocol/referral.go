package protocol

import (
	"context"
	"errors"
	"fmt"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/storage"
)

// RegisterReferral links user to referrer. A later registration replaces the
// link; the journal records the referrer it replaced.
func (p *Protocol) RegisterReferral(ctx context.Context, user, referrer domain.Identity) (*domain.UserProfile, error) {
	if err := checkCaller(user); err != nil {
		return nil, err
	}
	if referrer.IsZero() || referrer == user {
		return nil, ErrInvalidReferrer
	}

	var profile *domain.UserProfile
	err := p.apply(ctx, "register_referral", func(tx storage.Tx, now int64, fx *effects) error {
		key := storage.ProfileKey(p.params.Asset, user)
		var err error
		profile, err = storage.Load[domain.UserProfile](ctx, tx, key)
		created := errors.Is(err, storage.ErrNotFound)
		switch {
		case created:
			profile = &domain.UserProfile{Asset: p.params.Asset, User: user}
		case err != nil:
			return err
		}

		previous := profile.Referrer
		ref := referrer
		profile.Referrer = &ref
		profile.UpdatedAt = now
		if created {
			err = storage.Create(ctx, tx, key, profile)
		} else {
			err = storage.Save(ctx, tx, key, profile)
		}
		if err != nil {
			return err
		}

		ev := &domain.LedgerEvent{Type: domain.EventReferralRegistered, Actor: user, Subject: referrer}
		if previous != nil {
			if *previous == referrer {
				return nil
			}
			ev.Type = domain.EventReferralReassigned
			ev.Detail = fmt.Sprintf("previous=%s", previous)
		}
		fx.emit(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// RewardReferrer credits user's referrer with ReferralRewardPercent of
// rewardAmount and returns the credited amount. Users without a referrer
// yield zero whatever the amount.
func (p *Protocol) RewardReferrer(ctx context.Context, caller, user domain.Identity, rewardAmount uint64) (uint64, error) {
	if err := checkCaller(caller); err != nil {
		return 0, err
	}
	credit, err := mulDivU64(rewardAmount, p.params.ReferralRewardPercent, percentDenominator)
	if err != nil {
		return 0, err
	}

	var credited uint64
	err = p.apply(ctx, "reward_referrer", func(tx storage.Tx, now int64, fx *effects) error {
		credited = 0
		if _, err := p.loadPriceAs(ctx, tx, caller); err != nil {
			return err
		}
		profile, err := storage.Load[domain.UserProfile](ctx, tx, storage.ProfileKey(p.params.Asset, user))
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if profile.Referrer == nil {
			return nil
		}
		if rewardAmount == 0 {
			return ErrInvalidAmount
		}

		if _, err := p.creditRewards(ctx, tx, *profile.Referrer, credit); err != nil {
			return err
		}
		credited = credit
		fx.emit(&domain.LedgerEvent{
			Type:    domain.EventReferrerRewarded,
			Actor:   caller,
			Subject: *profile.Referrer,
			Amount:  credit,
			Detail:  fmt.Sprintf("user=%s reward=%d", user, rewardAmount),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return credited, nil
}

// Profile returns user's referral profile; the referrer is nil if never registered.
func (p *Protocol) Profile(ctx context.Context, user domain.Identity) (*domain.UserProfile, error) {
	var profile *domain.UserProfile
	err := p.view(ctx, func(tx storage.Tx) error {
		var err error
		profile, err = storage.Load[domain.UserProfile](ctx, tx, storage.ProfileKey(p.params.Asset, user))
		if errors.Is(err, storage.ErrNotFound) {
			profile = &domain.UserProfile{Asset: p.params.Asset, User: user}
			return nil
		}
		return err
	})
	return profile, err
}
