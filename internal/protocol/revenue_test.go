package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamic-pricing-ledger/internal/domain"
)

func TestDistribute(t *testing.T) {
	f := newFixture(t)
	f.init(t, 10)

	_, err := f.p.Distribute(f.ctx, f.admin, f.alice, 100)
	assert.ErrorIs(t, err, ErrNoLiquidity)

	_, err = f.p.Contribute(f.ctx, f.alice, 300)
	require.NoError(t, err)
	_, err = f.p.Contribute(f.ctx, f.bob, 700)
	require.NoError(t, err)

	_, err = f.p.Distribute(f.ctx, f.admin, f.alice, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.p.Distribute(f.ctx, f.alice, f.alice, 100)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.p.Distribute(f.ctx, f.admin, f.carol, 100)
	assert.ErrorIs(t, err, ErrPositionNotFound)

	share, err := f.p.Distribute(f.ctx, f.admin, f.alice, 101)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), share)

	pos, err := f.p.Position(f.ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(3+30), pos.Rewards)
}

func TestDistributeAll(t *testing.T) {
	f := newFixture(t)
	f.init(t, 10)

	_, err := f.p.DistributeAll(f.ctx, f.admin, 10)
	assert.ErrorIs(t, err, ErrNoLiquidity)

	for _, owner := range []domain.Identity{f.alice, f.bob, f.carol} {
		_, err := f.p.Contribute(f.ctx, owner, 100)
		require.NoError(t, err)
	}

	dist, err := f.p.DistributeAll(f.ctx, f.admin, 10)
	require.NoError(t, err)
	require.Len(t, dist.Shares, 3)

	var sum uint64
	for _, s := range dist.Shares {
		assert.Equal(t, uint64(3), s.Share)
		sum += s.Share
	}
	assert.Equal(t, uint64(9), dist.Distributed)
	assert.Equal(t, sum, dist.Distributed)
	assert.Equal(t, uint64(1), dist.Remainder)
	assert.LessOrEqual(t, dist.Distributed, dist.TotalRevenue)

	pos, err := f.p.Position(f.ctx, f.bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(1+3), pos.Rewards)
}

func TestComputeFee(t *testing.T) {
	params := DefaultParams(testAsset)

	tests := []struct {
		liquidity uint64
		wantRate  uint64
		wantFee   uint64
	}{
		{0, 5, 50},
		{999, 5, 50},
		{1000, 2, 20},
		{4999, 2, 20},
		{5000, 1, 10},
		{1 << 40, 1, 10},
	}

	var prev uint64 = 1 << 63
	for _, tt := range tests {
		quote, err := params.ComputeFee(1000, tt.liquidity)
		require.NoError(t, err)
		assert.Equal(t, tt.wantRate, quote.RatePercent, "liquidity %d", tt.liquidity)
		assert.Equal(t, tt.wantFee, quote.Fee, "liquidity %d", tt.liquidity)
		assert.LessOrEqual(t, quote.Fee, prev)
		prev = quote.Fee
	}

	quote, err := params.ComputeFee(^uint64(0), 0)
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0)/100*5+(^uint64(0)%100)*5/100, quote.Fee)
}

func TestFeeFor(t *testing.T) {
	f := newFixture(t)

	_, err := f.p.FeeFor(f.ctx, 1000)
	assert.ErrorIs(t, err, ErrNotInitialized)

	f.init(t, 10)
	_, err = f.p.Contribute(f.ctx, f.alice, 1000)
	require.NoError(t, err)

	quote, err := f.p.FeeFor(f.ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), quote.Fee)
	assert.Equal(t, uint64(1000), quote.TotalLiquidity)
}

func TestDistribute_ZeroRevenueWithoutLiquidity(t *testing.T) {
	f := newFixture(t)
	f.init(t, 10)

	_, err := f.p.Distribute(f.ctx, f.admin, f.alice, 0)
	assert.ErrorIs(t, err, ErrNoLiquidity)
	_, err = f.p.DistributeAll(f.ctx, f.admin, 0)
	assert.ErrorIs(t, err, ErrNoLiquidity)

	_, err = f.p.Contribute(f.ctx, f.alice, 100)
	require.NoError(t, err)
	_, err = f.p.DistributeAll(f.ctx, f.admin, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
