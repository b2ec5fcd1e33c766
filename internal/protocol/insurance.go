package protocol

import (
	"context"
	"errors"
	"fmt"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/storage"
)

// InitializeInsurancePool opens the asset's insurance pool with no funds.
func (p *Protocol) InitializeInsurancePool(ctx context.Context, caller domain.Identity) (*domain.InsurancePool, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}

	var pool *domain.InsurancePool
	err := p.apply(ctx, "initialize_insurance_pool", func(tx storage.Tx, now int64, fx *effects) error {
		if _, err := p.loadPriceAs(ctx, tx, caller); err != nil {
			return err
		}
		pool = &domain.InsurancePool{Asset: p.params.Asset, Authority: caller, UpdatedAt: now}
		err := storage.Create(ctx, tx, storage.InsuranceKey(p.params.Asset), pool)
		if errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("%w: insurance pool already initialized", ErrInvalidState)
		}
		if err != nil {
			return err
		}
		fx.pool = pool
		fx.emit(&domain.LedgerEvent{Type: domain.EventInsuranceOpened, Actor: caller})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// ContributeInsurance moves amount from contributor into the pool.
func (p *Protocol) ContributeInsurance(ctx context.Context, contributor domain.Identity, amount uint64) (*domain.InsurancePool, error) {
	if err := checkCaller(contributor); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	var pool *domain.InsurancePool
	err := p.apply(ctx, "contribute_insurance", func(tx storage.Tx, now int64, fx *effects) error {
		var err error
		if pool, err = p.loadPool(ctx, tx); err != nil {
			return err
		}
		if pool.TotalFunds, err = addU64(pool.TotalFunds, amount); err != nil {
			return err
		}
		if err := p.savePool(ctx, tx, pool, now, fx); err != nil {
			return err
		}
		if err := p.transfer(ctx, tx, contributor, p.params.Treasury, amount, ReasonInsuranceContribution); err != nil {
			return err
		}
		fx.emit(&domain.LedgerEvent{Type: domain.EventInsuranceFunded, Actor: contributor, Subject: contributor, Amount: amount})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// ClaimInsurance pays amount from the pool into owner's rewards.
func (p *Protocol) ClaimInsurance(ctx context.Context, caller, owner domain.Identity, amount uint64) (*domain.InsurancePool, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	var pool *domain.InsurancePool
	err := p.apply(ctx, "claim_insurance", func(tx storage.Tx, now int64, fx *effects) error {
		var err error
		if pool, err = p.loadPool(ctx, tx); err != nil {
			return err
		}
		if pool.Authority != caller {
			return ErrUnauthorized
		}
		if amount > pool.TotalFunds {
			return fmt.Errorf("%w: requested %d, pool holds %d", ErrInsufficientFunds, amount, pool.TotalFunds)
		}
		if _, err := p.creditRewards(ctx, tx, owner, amount); err != nil {
			return err
		}
		pool.TotalFunds -= amount
		if err := p.savePool(ctx, tx, pool, now, fx); err != nil {
			return err
		}
		fx.emit(&domain.LedgerEvent{Type: domain.EventInsuranceClaimed, Actor: caller, Subject: owner, Amount: amount})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// InsurancePool returns the asset's insurance pool.
func (p *Protocol) InsurancePool(ctx context.Context) (*domain.InsurancePool, error) {
	var pool *domain.InsurancePool
	err := p.view(ctx, func(tx storage.Tx) error {
		var err error
		pool, err = p.loadPool(ctx, tx)
		return err
	})
	return pool, err
}

func (p *Protocol) loadPool(ctx context.Context, tx storage.Tx) (*domain.InsurancePool, error) {
	pool, err := storage.Load[domain.InsurancePool](ctx, tx, storage.InsuranceKey(p.params.Asset))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPoolNotFound
	}
	return pool, err
}

func (p *Protocol) savePool(ctx context.Context, tx storage.Tx, pool *domain.InsurancePool, now int64, fx *effects) error {
	pool.UpdatedAt = now
	if err := storage.Save(ctx, tx, storage.InsuranceKey(p.params.Asset), pool); err != nil {
		return err
	}
	fx.pool = pool
	return nil
}
