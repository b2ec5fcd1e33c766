package protocol

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/settlement"
	"dynamic-pricing-ledger/internal/storage/memory"
)

const testAsset = "TEST"

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type stubOracle struct {
	reading OraclePrice
	err     error
}

func (o *stubOracle) LatestPrice(_ context.Context, feedID string) (OraclePrice, error) {
	if o.err != nil {
		return OraclePrice{}, o.err
	}
	r := o.reading
	r.FeedID = feedID
	return r, nil
}

type fixture struct {
	ctx      context.Context
	p        *Protocol
	clock    *fakeClock
	bank     *settlement.Bank
	oracle   *stubOracle
	state    *memory.StateStore
	journal  *memory.EventStore
	admin    domain.Identity
	alice    domain.Identity
	bob      domain.Identity
	carol    domain.Identity
	treasury domain.Identity
}

func testIdentity(t *testing.T, seed byte) domain.Identity {
	t.Helper()
	s := make([]byte, ed25519.SeedSize)
	for i := range s {
		s[i] = seed
	}
	id, err := domain.IdentityFromBytes(ed25519.NewKeyFromSeed(s).Public().(ed25519.PublicKey))
	require.NoError(t, err)
	return id
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ctx:      context.Background(),
		clock:    &fakeClock{now: time.Unix(1_700_000_000, 0)},
		bank:     settlement.NewBank(),
		oracle:   &stubOracle{},
		state:    memory.NewStateStore(),
		journal:  memory.NewEventStore(),
		admin:    testIdentity(t, 1),
		alice:    testIdentity(t, 2),
		bob:      testIdentity(t, 3),
		carol:    testIdentity(t, 4),
		treasury: testIdentity(t, 9),
	}
	f.bank.Fund(f.treasury, 1_000_000)

	params := DefaultParams(testAsset)
	params.Treasury = f.treasury
	params.OracleFeedID = "TEST/USD"

	p, err := New(params, Options{
		State:     f.state,
		Journal:   f.journal,
		Oracle:    f.oracle,
		Balances:  f.bank,
		Transfers: f.bank,
		Clock:     f.clock.Now,
	})
	require.NoError(t, err)
	f.p = p
	return f
}

// sibling builds another Protocol for asset over the fixture's stores, as a
// second server instance would.
func (f *fixture) sibling(t *testing.T, asset string) *Protocol {
	t.Helper()
	params := DefaultParams(asset)
	params.Treasury = f.treasury
	p, err := New(params, Options{
		State:     f.state,
		Journal:   f.journal,
		Balances:  f.bank,
		Transfers: f.bank,
		Clock:     f.clock.Now,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) init(t *testing.T, price uint64) {
	t.Helper()
	_, err := f.p.Initialize(f.ctx, f.admin, price)
	require.NoError(t, err)
}

func TestNew_RejectsInvalidParams(t *testing.T) {
	_, err := New(Params{}, Options{State: memory.NewStateStore()})
	assert.Error(t, err)

	_, err = New(DefaultParams(testAsset), Options{})
	assert.Error(t, err)

	params := DefaultParams(testAsset)
	params.FeeTiers = []FeeTier{{Below: 5000, Percent: 2}, {Below: 1000, Percent: 5}}
	assert.Error(t, params.Validate())
}

func TestNew_RejectsAssetWithKeySeparator(t *testing.T) {
	_, err := New(DefaultParams("TEST|X"), Options{State: memory.NewStateStore()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not contain")
}

func TestAssetsSharingStoreStayIsolated(t *testing.T) {
	f := newFixture(t)
	f.init(t, 10)
	_, err := f.p.Contribute(f.ctx, f.alice, 1000)
	require.NoError(t, err)

	other := f.sibling(t, "TESTX")
	_, err = other.Initialize(f.ctx, f.admin, 10)
	require.NoError(t, err)
	_, err = other.Contribute(f.ctx, f.alice, 500)
	require.NoError(t, err)

	positions, err := f.p.Positions(f.ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, uint64(1000), positions[0].Liquidity)

	dist, err := f.p.DistributeAll(f.ctx, f.admin, 100)
	require.NoError(t, err)
	require.NotNil(t, dist)
}

func TestCode(t *testing.T) {
	assert.Equal(t, "OK", Code(nil))
	assert.Equal(t, "NoLiquidity", Code(ErrNoLiquidity))
	assert.Equal(t, "TransferFailed", Code(errors.Join(errors.New("context"), ErrTransferFailed)))
	assert.Equal(t, "Internal", Code(errors.New("boom")))
}
