// Package audit checks the stored ledger state of an asset against the
// invariants every committed operation preserves.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/protocol"
	"dynamic-pricing-ledger/internal/storage"
)

// Check is the outcome of one invariant.
type Check struct {
	Name     string // invariant checked
	Expected string // required value or bound
	Actual   string // observed value
	Pass     bool
}

// Report contains every check run against one asset.
type Report struct {
	Asset       string
	GeneratedAt time.Time
	Initialized bool
	Positions   int
	Events      int // journaled events inspected, 0 without a journal
	Checks      []Check
}

// Passed reports whether every check passed.
func (r *Report) Passed() bool {
	for _, c := range r.Checks {
		if !c.Pass {
			return false
		}
	}
	return true
}

// Failures returns the failed checks.
func (r *Report) Failures() []Check {
	var failed []Check
	for _, c := range r.Checks {
		if !c.Pass {
			failed = append(failed, c)
		}
	}
	return failed
}

// Auditor reads ledger state and the optional event journal.
type Auditor struct {
	state   storage.StateStore
	journal storage.EventStore
	params  protocol.Params
	now     func() time.Time
}

// New creates an Auditor. journal and now may be nil.
func New(state storage.StateStore, journal storage.EventStore, params protocol.Params, now func() time.Time) *Auditor {
	if now == nil {
		now = time.Now
	}
	return &Auditor{state: state, journal: journal, params: params, now: now}
}

// snapshot is every cell of the asset read in one view.
type snapshot struct {
	price     *domain.PriceState
	positions []*domain.LiquidityPosition
	proposal  *domain.GovernanceProposal
	votes     []*domain.VoteRecord
	pool      *domain.InsurancePool
	profiles  []*domain.UserProfile
}

// Run audits the asset and returns the report.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	snap, err := a.load(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Asset:       a.params.Asset,
		GeneratedAt: a.now().UTC(),
		Initialized: snap.price != nil,
		Positions:   len(snap.positions),
	}

	if snap.price == nil {
		report.add("no state without price cell", "0 cells", fmt.Sprintf("%d cells", a.orphanCount(snap)), a.orphanCount(snap) == 0)
		return report, nil
	}

	price := snap.price
	report.add("price > 0", "> 0", fmt.Sprint(price.Price), price.Price > 0)
	report.add("supply + demand = initial supply",
		fmt.Sprint(a.params.InitialSupply),
		fmt.Sprintf("%d + %d", price.Supply, price.Demand),
		price.Demand <= a.params.InitialSupply && price.Supply == a.params.InitialSupply-price.Demand)

	var liquidity uint64
	overflow := false
	for _, pos := range snap.positions {
		next := liquidity + pos.Liquidity
		if next < liquidity {
			overflow = true
		}
		liquidity = next
	}
	report.add("sum(position.liquidity) = total_liquidity",
		fmt.Sprint(price.TotalLiquidity), fmt.Sprint(liquidity),
		!overflow && liquidity == price.TotalLiquidity)

	now := report.GeneratedAt.Unix()
	var future int
	for _, pos := range snap.positions {
		if pos.LastClaimTimestamp > now || pos.LastSlashTimestamp > now {
			future++
		}
	}
	report.add("position clocks not ahead of audit time", "0 positions", fmt.Sprintf("%d positions", future), future == 0)

	if snap.proposal != nil {
		prop := snap.proposal
		report.add("proposed fee <= max fee percentage",
			fmt.Sprintf("<= %d", a.params.MaxFeePercentage), fmt.Sprint(prop.ProposedFeePercentage),
			prop.ProposedFeePercentage <= a.params.MaxFeePercentage)

		var forWeight, againstWeight uint64
		for _, v := range snap.votes {
			if v.InFavor {
				forWeight += v.Weight
			} else {
				againstWeight += v.Weight
			}
		}
		report.add("tally = recorded votes of current round",
			fmt.Sprintf("%d/%d", forWeight, againstWeight),
			fmt.Sprintf("%d/%d", prop.VotesFor, prop.VotesAgainst),
			forWeight == prop.VotesFor && againstWeight == prop.VotesAgainst)
	}

	var selfReferred int
	for _, profile := range snap.profiles {
		if profile.Referrer != nil && *profile.Referrer == profile.User {
			selfReferred++
		}
	}
	report.add("no self-referral", "0 profiles", fmt.Sprintf("%d profiles", selfReferred), selfReferred == 0)

	if snap.pool != nil {
		report.add("insurance authority = price authority",
			price.Authority.String(), snap.pool.Authority.String(),
			snap.pool.Authority == price.Authority)
	}

	if a.journal != nil {
		if err := a.auditJournal(ctx, report, snap); err != nil {
			return nil, err
		}
	}

	return report, nil
}

// auditJournal replays insurance movements from the journal. An incomplete
// journal (best-effort writes) shows up as a failed check, never as an error.
func (a *Auditor) auditJournal(ctx context.Context, report *Report, snap *snapshot) error {
	events, err := a.journal.GetByAsset(ctx, a.params.Asset)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	report.Events = len(events)

	if snap.pool == nil {
		return nil
	}
	var contributed, claimed uint64
	for _, ev := range events {
		switch ev.Type {
		case domain.EventInsuranceFunded:
			contributed += ev.Amount
		case domain.EventInsuranceClaimed:
			claimed += ev.Amount
		}
	}
	expected := "underflow"
	pass := false
	if contributed >= claimed {
		expected = fmt.Sprint(contributed - claimed)
		pass = contributed-claimed == snap.pool.TotalFunds
	}
	report.add("insurance funds = contributions - claims", expected, fmt.Sprint(snap.pool.TotalFunds), pass)
	return nil
}

func (a *Auditor) load(ctx context.Context) (*snapshot, error) {
	asset := a.params.Asset
	prefix := storage.AssetPrefix(asset)
	snap := &snapshot{}

	err := a.state.View(ctx, func(tx storage.Tx) error {
		var err error
		if snap.price, err = optional[domain.PriceState](ctx, tx, storage.PriceKey(asset)); err != nil {
			return err
		}
		if snap.positions, err = storage.LoadAll[domain.LiquidityPosition](ctx, tx, storage.KindPosition, prefix); err != nil {
			return err
		}
		if snap.proposal, err = optional[domain.GovernanceProposal](ctx, tx, storage.ProposalKey(asset)); err != nil {
			return err
		}
		if snap.proposal != nil {
			if snap.votes, err = storage.LoadAll[domain.VoteRecord](ctx, tx, storage.KindVote, storage.VoteRoundPrefix(asset, snap.proposal.Round)); err != nil {
				return err
			}
		}
		if snap.pool, err = optional[domain.InsurancePool](ctx, tx, storage.InsuranceKey(asset)); err != nil {
			return err
		}
		snap.profiles, err = storage.LoadAll[domain.UserProfile](ctx, tx, storage.KindProfile, prefix)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return snap, nil
}

func (a *Auditor) orphanCount(snap *snapshot) int {
	n := len(snap.positions)
	if snap.proposal != nil {
		n++
	}
	if snap.pool != nil {
		n++
	}
	return n
}

func optional[T any](ctx context.Context, tx storage.Tx, key storage.Key) (*T, error) {
	v, err := storage.Load[T](ctx, tx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

func (r *Report) add(name, expected, actual string, pass bool) {
	r.Checks = append(r.Checks, Check{Name: name, Expected: expected, Actual: actual, Pass: pass})
}
