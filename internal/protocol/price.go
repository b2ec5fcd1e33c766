package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/storage"
)

// adjustDivisor damps the supply/demand imbalance applied per adjustment.
const adjustDivisor = 10

// BuyReceipt describes a settled purchase.
type BuyReceipt struct {
	Buyer  domain.Identity    `json:"buyer"`
	Amount uint64             `json:"amount"`
	Price  uint64             `json:"price"`
	Cost   uint64             `json:"cost"`
	State  *domain.PriceState `json:"state"`
}

// Initialize creates the price cell with supply = InitialSupply. The caller
// becomes the asset authority.
func (p *Protocol) Initialize(ctx context.Context, caller domain.Identity, initialPrice uint64) (*domain.PriceState, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	if initialPrice == 0 {
		return nil, ErrInvalidPrice
	}

	var state *domain.PriceState
	err := p.apply(ctx, "initialize", func(tx storage.Tx, now int64, fx *effects) error {
		state = &domain.PriceState{
			Asset:     p.params.Asset,
			Authority: caller,
			Price:     initialPrice,
			Supply:    p.params.InitialSupply,
			UpdatedAt: now,
		}
		err := storage.Create(ctx, tx, storage.PriceKey(p.params.Asset), state)
		if errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("%w: asset %s already initialized", ErrInvalidState, p.params.Asset)
		}
		if err != nil {
			return err
		}
		fx.price = state
		fx.emit(&domain.LedgerEvent{Type: domain.EventPriceInitialized, Actor: caller, Amount: state.Supply, Price: state.Price})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// SetPrice overwrites the price.
func (p *Protocol) SetPrice(ctx context.Context, caller domain.Identity, newPrice uint64) (*domain.PriceState, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	if newPrice == 0 {
		return nil, ErrInvalidPrice
	}
	return p.mutatePrice(ctx, "set_price", caller, domain.EventPriceSet, func(state *domain.PriceState) (string, error) {
		previous := state.Price
		state.Price = newPrice
		return fmt.Sprintf("previous=%d", previous), nil
	})
}

// ImportOraclePrice replaces the price with the latest reading of the
// configured feed, scaled to PriceDecimals and truncated.
func (p *Protocol) ImportOraclePrice(ctx context.Context, caller domain.Identity) (*domain.PriceState, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	if p.oracle == nil {
		return nil, fmt.Errorf("%w: no oracle configured", ErrOracleUnavailable)
	}

	reading, err := p.oracle.LatestPrice(ctx, p.params.OracleFeedID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	price, err := p.scaleOraclePrice(reading, p.now().Unix())
	if err != nil {
		return nil, err
	}

	return p.mutatePrice(ctx, "import_oracle_price", caller, domain.EventPriceOracle, func(state *domain.PriceState) (string, error) {
		state.Price = price
		return fmt.Sprintf("feed=%s publish_time=%d", p.params.OracleFeedID, reading.PublishTime), nil
	})
}

// scaleOraclePrice validates an oracle reading and converts it to a price.
func (p *Protocol) scaleOraclePrice(r OraclePrice, now int64) (uint64, error) {
	if r.Price <= 0 {
		return 0, fmt.Errorf("%w: non-positive price %d", ErrOracleUnavailable, r.Price)
	}
	if maxAge := int64(p.params.OracleMaxStaleness.Seconds()); maxAge > 0 && now-r.PublishTime > maxAge {
		return 0, fmt.Errorf("%w: reading is %ds old", ErrOracleUnavailable, now-r.PublishTime)
	}
	if p.params.OracleMaxConfidenceBps > 0 {
		// conf/price <= maxBps/10000
		lhs, err := mulU64(r.Confidence, bpsDenominator)
		if err != nil {
			return 0, fmt.Errorf("%w: confidence out of range", ErrOracleUnavailable)
		}
		rhs, err := mulU64(uint64(r.Price), p.params.OracleMaxConfidenceBps)
		if err != nil {
			return 0, err
		}
		if lhs > rhs {
			return 0, fmt.Errorf("%w: confidence %d too wide for price %d", ErrOracleUnavailable, r.Confidence, r.Price)
		}
	}

	scaled := decimal.New(r.Price, r.Expo).Shift(p.params.PriceDecimals).Truncate(0)
	if !scaled.IsPositive() {
		return 0, fmt.Errorf("%w: price rounds to zero", ErrOracleUnavailable)
	}
	value := scaled.BigInt()
	if !value.IsUint64() {
		return 0, ErrOverflow
	}
	return value.Uint64(), nil
}

// AdjustBySupplyDemand moves the price by a tenth of the demand/supply
// imbalance. The price never drops below 1.
func (p *Protocol) AdjustBySupplyDemand(ctx context.Context, caller domain.Identity) (*domain.PriceState, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	return p.mutatePrice(ctx, "adjust_by_supply_demand", caller, domain.EventPriceAdjusted, func(state *domain.PriceState) (string, error) {
		previous := state.Price
		if state.Demand > state.Supply {
			delta := (state.Demand - state.Supply) / adjustDivisor
			next, err := addU64(state.Price, delta)
			if err != nil {
				return "", err
			}
			state.Price = next
		} else {
			delta := (state.Supply - state.Demand) / adjustDivisor
			if delta >= state.Price {
				state.Price = 1
			} else {
				state.Price -= delta
			}
		}
		return fmt.Sprintf("previous=%d demand=%d supply=%d", previous, state.Demand, state.Supply), nil
	})
}

// Smooth blends newPrice into the current price with weight factor:
// price = (price*factor + newPrice) / (factor + 1). A zero newPrice is
// rejected as in SetPrice.
func (p *Protocol) Smooth(ctx context.Context, caller domain.Identity, newPrice, factor uint64) (*domain.PriceState, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	if newPrice == 0 {
		return nil, ErrInvalidPrice
	}
	return p.mutatePrice(ctx, "smooth", caller, domain.EventPriceSmoothed, func(state *domain.PriceState) (string, error) {
		previous := state.Price
		next, err := weightedAverage(state.Price, newPrice, factor)
		if err != nil {
			return "", err
		}
		state.Price = next
		return fmt.Sprintf("previous=%d target=%d factor=%d", previous, newPrice, factor), nil
	})
}

// mutatePrice runs an authority-gated change to the price cell.
func (p *Protocol) mutatePrice(ctx context.Context, op string, caller domain.Identity, typ domain.EventType, fn func(state *domain.PriceState) (string, error)) (*domain.PriceState, error) {
	var state *domain.PriceState
	err := p.apply(ctx, op, func(tx storage.Tx, now int64, fx *effects) error {
		var err error
		if state, err = p.loadPriceAs(ctx, tx, caller); err != nil {
			return err
		}
		detail, err := fn(state)
		if err != nil {
			return err
		}
		if state.Price == 0 {
			return ErrInvalidPrice
		}
		if err := p.savePrice(ctx, tx, state, now, fx); err != nil {
			return err
		}
		fx.emit(&domain.LedgerEvent{Type: typ, Actor: caller, Price: state.Price, Detail: detail})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// RecordBuy sells amount units to buyer at the current price. The cost is
// reported as a buyer → treasury transfer; a settlement failure aborts the buy.
func (p *Protocol) RecordBuy(ctx context.Context, buyer domain.Identity, amount uint64) (*BuyReceipt, error) {
	if err := checkCaller(buyer); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if p.balances == nil {
		return nil, fmt.Errorf("%w: no balance source", ErrTransferFailed)
	}

	var receipt *BuyReceipt
	err := p.apply(ctx, "record_buy", func(tx storage.Tx, now int64, fx *effects) error {
		state, err := p.loadPrice(ctx, tx)
		if err != nil {
			return err
		}
		cost, err := mulU64(state.Price, amount)
		if err != nil {
			return err
		}

		balance, err := p.balances.AvailableBalance(ctx, buyer)
		if err != nil {
			return fmt.Errorf("%w: balance lookup: %v", ErrTransferFailed, err)
		}
		if balance < cost {
			return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, balance, cost)
		}
		if amount > state.Supply {
			return fmt.Errorf("%w: %d requested, %d left", ErrSupplyExhausted, amount, state.Supply)
		}

		state.Supply -= amount
		if state.Demand, err = addU64(state.Demand, amount); err != nil {
			return err
		}
		if err := p.savePrice(ctx, tx, state, now, fx); err != nil {
			return err
		}
		if err := p.transfer(ctx, tx, buyer, p.params.Treasury, cost, ReasonBuy); err != nil {
			return err
		}

		receipt = &BuyReceipt{Buyer: buyer, Amount: amount, Price: state.Price, Cost: cost, State: state}
		fx.emit(&domain.LedgerEvent{
			Type:    domain.EventAssetBought,
			Actor:   buyer,
			Subject: buyer,
			Amount:  amount,
			Price:   state.Price,
			Detail:  fmt.Sprintf("cost=%d", cost),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Price returns the price cell.
func (p *Protocol) Price(ctx context.Context) (*domain.PriceState, error) {
	var state *domain.PriceState
	err := p.view(ctx, func(tx storage.Tx) error {
		var err error
		state, err = p.loadPrice(ctx, tx)
		return err
	})
	return state, err
}
