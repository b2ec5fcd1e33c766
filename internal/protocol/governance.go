package protocol

import (
	"context"
	"errors"
	"fmt"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/storage"
)

// DistributeGovernanceTokens credits owner with amount governance tokens.
func (p *Protocol) DistributeGovernanceTokens(ctx context.Context, caller, owner domain.Identity, amount uint64) (*domain.GovernanceTokenBalance, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	if owner.IsZero() || amount == 0 {
		return nil, ErrInvalidAmount
	}

	var balance *domain.GovernanceTokenBalance
	err := p.apply(ctx, "distribute_governance_tokens", func(tx storage.Tx, now int64, fx *effects) error {
		if _, err := p.loadPriceAs(ctx, tx, caller); err != nil {
			return err
		}

		key := storage.GovTokenKey(p.params.Asset, owner)
		var err error
		balance, err = storage.Load[domain.GovernanceTokenBalance](ctx, tx, key)
		created := errors.Is(err, storage.ErrNotFound)
		switch {
		case created:
			balance = &domain.GovernanceTokenBalance{Asset: p.params.Asset, Owner: owner}
		case err != nil:
			return err
		}
		if balance.Balance, err = addU64(balance.Balance, amount); err != nil {
			return err
		}
		if created {
			err = storage.Create(ctx, tx, key, balance)
		} else {
			err = storage.Save(ctx, tx, key, balance)
		}
		if err != nil {
			return err
		}

		fx.emit(&domain.LedgerEvent{Type: domain.EventGovTokensIssued, Actor: caller, Subject: owner, Amount: amount})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// ProposeFeeChange opens a new proposal round for feePercentage with zeroed
// tallies. Votes cast in earlier rounds do not carry over.
func (p *Protocol) ProposeFeeChange(ctx context.Context, caller domain.Identity, feePercentage uint64) (*domain.GovernanceProposal, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	if feePercentage > p.params.MaxFeePercentage {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrInvalidFeePercentage, feePercentage, p.params.MaxFeePercentage)
	}

	var proposal *domain.GovernanceProposal
	err := p.apply(ctx, "propose_fee_change", func(tx storage.Tx, now int64, fx *effects) error {
		if _, err := p.loadPriceAs(ctx, tx, caller); err != nil {
			return err
		}

		key := storage.ProposalKey(p.params.Asset)
		previous, err := storage.Load[domain.GovernanceProposal](ctx, tx, key)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		proposal = &domain.GovernanceProposal{
			Asset:                 p.params.Asset,
			Authority:             caller,
			Round:                 1,
			ProposedFeePercentage: feePercentage,
			ProposedAt:            now,
		}
		if previous == nil {
			err = storage.Create(ctx, tx, key, proposal)
		} else {
			if previous.Authority != caller {
				return ErrUnauthorized
			}
			if proposal.Round, err = addU64(previous.Round, 1); err != nil {
				return err
			}
			err = storage.Save(ctx, tx, key, proposal)
		}
		if err != nil {
			return err
		}

		fx.emit(&domain.LedgerEvent{
			Type:   domain.EventProposalCreated,
			Actor:  caller,
			Amount: feePercentage,
			Detail: fmt.Sprintf("round=%d", proposal.Round),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return proposal, nil
}

// Vote adds voter's current governance token balance to the for or against
// tally of the open round. Each voter votes once per round.
func (p *Protocol) Vote(ctx context.Context, voter domain.Identity, inFavor bool) (*domain.GovernanceProposal, error) {
	if err := checkCaller(voter); err != nil {
		return nil, err
	}

	var proposal *domain.GovernanceProposal
	err := p.apply(ctx, "vote", func(tx storage.Tx, now int64, fx *effects) error {
		var err error
		proposal, err = storage.Load[domain.GovernanceProposal](ctx, tx, storage.ProposalKey(p.params.Asset))
		if errors.Is(err, storage.ErrNotFound) {
			return ErrProposalNotFound
		}
		if err != nil {
			return err
		}

		balance, err := storage.Load[domain.GovernanceTokenBalance](ctx, tx, storage.GovTokenKey(p.params.Asset, voter))
		if errors.Is(err, storage.ErrNotFound) || (err == nil && balance.Balance == 0) {
			return ErrNoVotingPower
		}
		if err != nil {
			return err
		}

		record := &domain.VoteRecord{
			Asset:   p.params.Asset,
			Round:   proposal.Round,
			Voter:   voter,
			Weight:  balance.Balance,
			InFavor: inFavor,
			CastAt:  now,
		}
		err = storage.Create(ctx, tx, storage.VoteKey(p.params.Asset, proposal.Round, voter), record)
		if errors.Is(err, storage.ErrDuplicateKey) {
			return ErrAlreadyVoted
		}
		if err != nil {
			return err
		}

		if inFavor {
			proposal.VotesFor, err = addU64(proposal.VotesFor, balance.Balance)
		} else {
			proposal.VotesAgainst, err = addU64(proposal.VotesAgainst, balance.Balance)
		}
		if err != nil {
			return err
		}
		if err := storage.Save(ctx, tx, storage.ProposalKey(p.params.Asset), proposal); err != nil {
			return err
		}

		fx.emit(&domain.LedgerEvent{
			Type:    domain.EventVoteCast,
			Actor:   voter,
			Subject: voter,
			Amount:  balance.Balance,
			Detail:  fmt.Sprintf("round=%d in_favor=%t", proposal.Round, inFavor),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return proposal, nil
}

// Proposal returns the current fee proposal.
func (p *Protocol) Proposal(ctx context.Context) (*domain.GovernanceProposal, error) {
	var proposal *domain.GovernanceProposal
	err := p.view(ctx, func(tx storage.Tx) error {
		var err error
		proposal, err = storage.Load[domain.GovernanceProposal](ctx, tx, storage.ProposalKey(p.params.Asset))
		if errors.Is(err, storage.ErrNotFound) {
			return ErrProposalNotFound
		}
		return err
	})
	return proposal, err
}

// GovernanceBalance returns owner's governance tokens; zero if never credited.
func (p *Protocol) GovernanceBalance(ctx context.Context, owner domain.Identity) (*domain.GovernanceTokenBalance, error) {
	var balance *domain.GovernanceTokenBalance
	err := p.view(ctx, func(tx storage.Tx) error {
		var err error
		balance, err = storage.Load[domain.GovernanceTokenBalance](ctx, tx, storage.GovTokenKey(p.params.Asset, owner))
		if errors.Is(err, storage.ErrNotFound) {
			balance = &domain.GovernanceTokenBalance{Asset: p.params.Asset, Owner: owner}
			return nil
		}
		return err
	})
	return balance, err
}
