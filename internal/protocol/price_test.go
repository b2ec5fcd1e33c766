package protocol

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamic-pricing-ledger/internal/domain"
)

func TestInitialize(t *testing.T) {
	f := newFixture(t)

	_, err := f.p.Initialize(f.ctx, f.admin, 0)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	state, err := f.p.Initialize(f.ctx, f.admin, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), state.Price)
	assert.Equal(t, uint64(DefaultInitialSupply), state.Supply)
	assert.Zero(t, state.Demand)
	assert.Zero(t, state.TotalLiquidity)
	assert.Equal(t, f.admin, state.Authority)

	_, err = f.p.Initialize(f.ctx, f.alice, 200)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSetPrice(t *testing.T) {
	f := newFixture(t)

	_, err := f.p.SetPrice(f.ctx, f.admin, 150)
	assert.ErrorIs(t, err, ErrNotInitialized)

	f.init(t, 100)

	_, err = f.p.SetPrice(f.ctx, f.admin, 150)
	require.NoError(t, err)
	state, err := f.p.Price(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), state.Price)

	_, err = f.p.SetPrice(f.ctx, f.admin, 0)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = f.p.SetPrice(f.ctx, f.alice, 10)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.p.SetPrice(f.ctx, domain.ZeroIdentity, 10)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSmooth(t *testing.T) {
	f := newFixture(t)
	f.init(t, 100)

	state, err := f.p.Smooth(f.ctx, f.admin, 150, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(112), state.Price)

	state, err = f.p.Smooth(f.ctx, f.admin, 40, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), state.Price)

	_, err = f.p.Smooth(f.ctx, f.admin, 0, 3)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestSmooth_WideIntermediate(t *testing.T) {
	f := newFixture(t)
	f.init(t, math.MaxUint64)

	state, err := f.p.Smooth(f.ctx, f.admin, math.MaxUint64, math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), state.Price)
}

func TestAdjustBySupplyDemand(t *testing.T) {
	t.Run("clamps at one", func(t *testing.T) {
		f := newFixture(t)
		f.init(t, 5)

		// supply 100, demand 0: delta 10 exceeds the price
		state, err := f.p.AdjustBySupplyDemand(f.ctx, f.admin)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), state.Price)

		state, err = f.p.AdjustBySupplyDemand(f.ctx, f.admin)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), state.Price)
	})

	t.Run("decreases by a tenth of the surplus", func(t *testing.T) {
		f := newFixture(t)
		f.init(t, 50)

		state, err := f.p.AdjustBySupplyDemand(f.ctx, f.admin)
		require.NoError(t, err)
		assert.Equal(t, uint64(40), state.Price)
	})

	t.Run("increases with excess demand", func(t *testing.T) {
		f := newFixture(t)
		f.init(t, 1)
		f.bank.Fund(f.alice, 1000)

		_, err := f.p.RecordBuy(f.ctx, f.alice, 75)
		require.NoError(t, err)

		// demand 75, supply 25
		state, err := f.p.AdjustBySupplyDemand(f.ctx, f.admin)
		require.NoError(t, err)
		assert.Equal(t, uint64(6), state.Price)
	})

	t.Run("requires authority", func(t *testing.T) {
		f := newFixture(t)
		f.init(t, 50)
		_, err := f.p.AdjustBySupplyDemand(f.ctx, f.bob)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestRecordBuy(t *testing.T) {
	f := newFixture(t)
	f.init(t, 10)
	f.bank.Fund(f.alice, 500)

	_, err := f.p.RecordBuy(f.ctx, f.alice, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.p.RecordBuy(f.ctx, f.alice, 51)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	receipt, err := f.p.RecordBuy(f.ctx, f.alice, 30)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), receipt.Cost)
	assert.Equal(t, uint64(70), receipt.State.Supply)
	assert.Equal(t, uint64(30), receipt.State.Demand)

	balance, err := f.bank.AvailableBalance(f.ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), balance)

	history := f.bank.History()
	require.Len(t, history, 1)
	assert.Equal(t, f.alice, history[0].From)
	assert.Equal(t, f.treasury, history[0].To)
	assert.Equal(t, ReasonBuy, history[0].Reason)
}

func TestRecordBuy_SupplyExhausted(t *testing.T) {
	f := newFixture(t)
	f.init(t, 1)
	f.bank.Fund(f.alice, 10_000)

	_, err := f.p.RecordBuy(f.ctx, f.alice, DefaultInitialSupply+1)
	assert.ErrorIs(t, err, ErrSupplyExhausted)

	state, err := f.p.Price(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(DefaultInitialSupply), state.Supply)
	assert.Zero(t, state.Demand)
}

func TestRecordBuy_TransferFailureLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	f.init(t, 1)

	// The treasury buying from itself cannot settle.
	_, err := f.p.RecordBuy(f.ctx, f.treasury, 5)
	assert.ErrorIs(t, err, ErrTransferFailed)

	state, err := f.p.Price(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(DefaultInitialSupply), state.Supply)
	assert.Zero(t, state.Demand)
}

func TestRecordBuy_Overflow(t *testing.T) {
	f := newFixture(t)
	f.init(t, math.MaxUint64)
	f.bank.Fund(f.alice, math.MaxUint64)

	_, err := f.p.RecordBuy(f.ctx, f.alice, 2)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestImportOraclePrice(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).Unix()

	tests := []struct {
		name    string
		reading OraclePrice
		err     error
		want    uint64
		wantErr error
	}{
		{name: "scaled and truncated", reading: OraclePrice{Price: 12345, Expo: -2, Confidence: 10, PublishTime: now}, want: 123},
		{name: "positive exponent", reading: OraclePrice{Price: 7, Expo: 2, PublishTime: now}, want: 700},
		{name: "negative price", reading: OraclePrice{Price: -5, PublishTime: now}, wantErr: ErrOracleUnavailable},
		{name: "rounds to zero", reading: OraclePrice{Price: 5, Expo: -3, PublishTime: now}, wantErr: ErrOracleUnavailable},
		{name: "stale", reading: OraclePrice{Price: 100, PublishTime: now - 61}, wantErr: ErrOracleUnavailable},
		{name: "wide confidence", reading: OraclePrice{Price: 10000, Confidence: 201, PublishTime: now}, wantErr: ErrOracleUnavailable},
		{name: "confidence at limit", reading: OraclePrice{Price: 10000, Confidence: 200, PublishTime: now}, want: 10000},
		{name: "feed error", err: errors.New("no price"), wantErr: ErrOracleUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.init(t, 1)
			f.oracle.reading = tt.reading
			f.oracle.err = tt.err

			state, err := f.p.ImportOraclePrice(f.ctx, f.admin)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				current, err := f.p.Price(f.ctx)
				require.NoError(t, err)
				assert.Equal(t, uint64(1), current.Price)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, state.Price)
		})
	}
}
