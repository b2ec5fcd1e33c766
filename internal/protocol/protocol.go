// Package protocol implements the ledger's state transitions: pricing,
// liquidity and rewards, revenue sharing, fees, governance, insurance and
// referrals. Every operation runs as one all-or-nothing StateStore update.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/idhash"
	"dynamic-pricing-ledger/internal/observability"
	"dynamic-pricing-ledger/internal/storage"
)

// Options holds the collaborators of a Protocol.
type Options struct {
	State     storage.StateStore // required
	Journal   storage.EventStore // optional; events are dropped when nil
	Oracle    Oracle             // required for ImportOraclePrice
	Balances  BalanceSource      // required for RecordBuy
	Transfers Transferer         // required for RecordBuy, VestAndClaim, ContributeInsurance
	Clock     func() time.Time   // defaults to time.Now
	Logger    *log.Logger        // defaults to a discarding logger
}

// Protocol executes ledger operations against one asset.
type Protocol struct {
	params    Params
	state     storage.StateStore
	journal   storage.EventStore
	oracle    Oracle
	balances  BalanceSource
	transfers Transferer
	now       func() time.Time
	logger    *log.Logger
}

// New creates a Protocol. Params must be valid and State set.
func New(params Params, opts Options) (*Protocol, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if opts.State == nil {
		return nil, errors.New("state store is required")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	params.FeeTiers = append([]FeeTier(nil), params.FeeTiers...)

	return &Protocol{
		params:    params,
		state:     opts.State,
		journal:   opts.Journal,
		oracle:    opts.Oracle,
		balances:  opts.Balances,
		transfers: opts.Transfers,
		now:       opts.Clock,
		logger:    opts.Logger,
	}, nil
}

// Params returns a copy of the protocol parameters.
func (p *Protocol) Params() Params {
	params := p.params
	params.FeeTiers = append([]FeeTier(nil), p.params.FeeTiers...)
	return params
}

// effects collects what a committed update publishes.
type effects struct {
	events []*domain.LedgerEvent
	price  *domain.PriceState
	pool   *domain.InsurancePool
}

func (fx *effects) emit(ev *domain.LedgerEvent) {
	fx.events = append(fx.events, ev)
}

// eventCursor is the last journal sequence number assigned for an asset.
type eventCursor struct {
	Last uint64 `json:"last"`
}

// apply runs fn in one state update. On commit, gauges are refreshed and the
// collected events are journaled.
func (p *Protocol) apply(ctx context.Context, op string, fn func(tx storage.Tx, now int64, fx *effects) error) error {
	now := p.now().Unix()
	fx := &effects{}

	err := p.state.Update(ctx, func(tx storage.Tx) error {
		fx.events = fx.events[:0]
		fx.price, fx.pool = nil, nil
		if err := fn(tx, now, fx); err != nil {
			return err
		}
		return p.sequenceEvents(ctx, tx, now, fx.events)
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		// A concurrent update created the same cell first.
		return fmt.Errorf("%w: %s: %v", storage.ErrConflict, op, err)
	}
	if err != nil {
		return err
	}

	observability.RecordCommit(now)
	if fx.price != nil {
		observability.UpdatePriceState(fx.price.Price, fx.price.Supply, fx.price.Demand, fx.price.TotalLiquidity)
	}
	if fx.pool != nil {
		observability.UpdateInsuranceFunds(fx.pool.TotalFunds)
	}
	p.journalEvents(ctx, op, fx.events)
	return nil
}

// sequenceEvents numbers events from the asset's cursor cell inside the
// update, so sequences continue across restarts and server instances.
func (p *Protocol) sequenceEvents(ctx context.Context, tx storage.Tx, now int64, events []*domain.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}

	key := storage.SequenceKey(p.params.Asset)
	cursor, err := storage.Load[eventCursor](ctx, tx, key)
	created := errors.Is(err, storage.ErrNotFound)
	switch {
	case created:
		cursor = &eventCursor{}
	case err != nil:
		return err
	}

	for _, ev := range events {
		cursor.Last++
		ev.Asset = p.params.Asset
		ev.Timestamp = now
		ev.Sequence = cursor.Last
		ev.EventID = idhash.ComputeEventID(ev.Asset, ev.Type, ev.Actor, ev.Subject, ev.Timestamp, ev.Sequence)
	}

	if created {
		return storage.Create(ctx, tx, key, cursor)
	}
	return storage.Save(ctx, tx, key, cursor)
}

// journalEvents appends committed events. Failures are logged, never returned.
func (p *Protocol) journalEvents(ctx context.Context, op string, events []*domain.LedgerEvent) {
	if len(events) == 0 || p.journal == nil {
		return
	}

	err := p.journal.InsertBulk(context.WithoutCancel(ctx), events)
	for range events {
		observability.RecordJournalWrite(err)
	}
	if err != nil {
		p.logger.Printf("%s: journal %d events: %v", op, len(events), err)
	}
}

// Events returns journaled events of the asset with timestamps in [from, to].
func (p *Protocol) Events(ctx context.Context, from, to int64) ([]*domain.LedgerEvent, error) {
	if p.journal == nil {
		return nil, nil
	}
	return p.journal.GetByTimeRange(ctx, p.params.Asset, from, to)
}

func (p *Protocol) view(ctx context.Context, fn func(tx storage.Tx) error) error {
	return p.state.View(ctx, fn)
}

func checkCaller(caller domain.Identity) error {
	if caller.IsZero() {
		return ErrUnauthorized
	}
	return nil
}

func (p *Protocol) loadPrice(ctx context.Context, tx storage.Tx) (*domain.PriceState, error) {
	state, err := storage.Load[domain.PriceState](ctx, tx, storage.PriceKey(p.params.Asset))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	return state, err
}

// loadPriceAs loads the price cell and checks that caller administers it.
func (p *Protocol) loadPriceAs(ctx context.Context, tx storage.Tx, caller domain.Identity) (*domain.PriceState, error) {
	state, err := p.loadPrice(ctx, tx)
	if err != nil {
		return nil, err
	}
	if state.Authority != caller {
		return nil, ErrUnauthorized
	}
	return state, nil
}

func (p *Protocol) savePrice(ctx context.Context, tx storage.Tx, state *domain.PriceState, now int64, fx *effects) error {
	state.UpdatedAt = now
	if err := storage.Save(ctx, tx, storage.PriceKey(p.params.Asset), state); err != nil {
		return err
	}
	fx.price = state
	return nil
}

func (p *Protocol) loadPosition(ctx context.Context, tx storage.Tx, owner domain.Identity) (*domain.LiquidityPosition, error) {
	pos, err := storage.Load[domain.LiquidityPosition](ctx, tx, storage.PositionKey(p.params.Asset, owner))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPositionNotFound
	}
	return pos, err
}

func (p *Protocol) savePosition(ctx context.Context, tx storage.Tx, pos *domain.LiquidityPosition) error {
	return storage.Save(ctx, tx, storage.PositionKey(p.params.Asset, pos.Owner), pos)
}

// creditRewards adds amount to owner's rewards. The position must exist.
func (p *Protocol) creditRewards(ctx context.Context, tx storage.Tx, owner domain.Identity, amount uint64) (*domain.LiquidityPosition, error) {
	pos, err := p.loadPosition(ctx, tx, owner)
	if err != nil {
		return nil, err
	}
	if pos.Rewards, err = addU64(pos.Rewards, amount); err != nil {
		return nil, err
	}
	if err := p.savePosition(ctx, tx, pos); err != nil {
		return nil, err
	}
	return pos, nil
}

// transfer reports a movement to the settlement collaborator.
func (p *Protocol) transfer(ctx context.Context, tx storage.Tx, from, to domain.Identity, amount uint64, reason string) error {
	if p.transfers == nil {
		return fmt.Errorf("%w: no transfer collaborator", ErrTransferFailed)
	}
	var err error
	if txt, ok := p.transfers.(TxTransferer); ok {
		err = txt.TransferTx(ctx, tx, from, to, amount, reason)
	} else {
		err = p.transfers.Transfer(ctx, from, to, amount, reason)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransferFailed, reason, err)
	}
	return nil
}
