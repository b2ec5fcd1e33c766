package audit

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/protocol"
	"dynamic-pricing-ledger/internal/settlement"
	"dynamic-pricing-ledger/internal/storage"
	"dynamic-pricing-ledger/internal/storage/memory"
)

var testNow = time.Unix(1_700_000_000, 0)

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

type ledger struct {
	state   *memory.StateStore
	journal *memory.EventStore
	params  protocol.Params
	admin   domain.Identity
	alice   domain.Identity
	bob     domain.Identity
}

// newLedger runs a representative set of operations against a memory store.
func newLedger(t *testing.T) *ledger {
	t.Helper()
	ctx := context.Background()

	l := &ledger{
		state:   memory.NewStateStore(),
		journal: memory.NewEventStore(),
		admin:   testIdentity(t, 1),
		alice:   testIdentity(t, 2),
		bob:     testIdentity(t, 3),
	}
	treasury := testIdentity(t, 9)
	bank := settlement.NewBank()
	bank.Fund(treasury, 1_000_000)
	bank.Fund(l.alice, 10_000)

	l.params = protocol.DefaultParams("AUDIT")
	l.params.Treasury = treasury

	p, err := protocol.New(l.params, protocol.Options{
		State:     l.state,
		Journal:   l.journal,
		Balances:  bank,
		Transfers: bank,
		Clock:     func() time.Time { return testNow },
	})
	require.NoError(t, err)

	_, err = p.Initialize(ctx, l.admin, 100)
	require.NoError(t, err)
	_, err = p.RecordBuy(ctx, l.alice, 40)
	require.NoError(t, err)
	_, err = p.Contribute(ctx, l.alice, 300)
	require.NoError(t, err)
	_, err = p.Contribute(ctx, l.bob, 700)
	require.NoError(t, err)

	_, err = p.DistributeGovernanceTokens(ctx, l.admin, l.alice, 5)
	require.NoError(t, err)
	_, err = p.DistributeGovernanceTokens(ctx, l.admin, l.bob, 7)
	require.NoError(t, err)
	_, err = p.ProposeFeeChange(ctx, l.admin, 3)
	require.NoError(t, err)
	_, err = p.Vote(ctx, l.alice, true)
	require.NoError(t, err)
	_, err = p.Vote(ctx, l.bob, false)
	require.NoError(t, err)

	_, err = p.InitializeInsurancePool(ctx, l.admin)
	require.NoError(t, err)
	_, err = p.ContributeInsurance(ctx, l.alice, 500)
	require.NoError(t, err)
	_, err = p.ClaimInsurance(ctx, l.admin, l.bob, 200)
	require.NoError(t, err)

	_, err = p.RegisterReferral(ctx, l.bob, l.alice)
	require.NoError(t, err)
	return l
}

func (l *ledger) audit(t *testing.T, withJournal bool) *Report {
	t.Helper()
	var journal storage.EventStore
	if withJournal {
		journal = l.journal
	}
	report, err := New(l.state, journal, l.params, func() time.Time { return testNow }).Run(context.Background())
	require.NoError(t, err)
	return report
}

func checkNamed(t *testing.T, r *Report, name string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not in report", name)
	return Check{}
}

func TestRun_ConsistentLedger(t *testing.T) {
	l := newLedger(t)

	report := l.audit(t, true)
	assert.True(t, report.Passed(), RenderMarkdown(report))
	assert.True(t, report.Initialized)
	assert.Equal(t, 2, report.Positions)
	assert.NotZero(t, report.Events)
	assert.Equal(t, "AUDIT", report.Asset)

	tally := checkNamed(t, report, "tally = recorded votes of current round")
	assert.Equal(t, "5/7", tally.Actual)

	funds := checkNamed(t, report, "insurance funds = contributions - claims")
	assert.Equal(t, "300", funds.Actual)
}

func TestRun_WithoutJournalSkipsReplay(t *testing.T) {
	l := newLedger(t)

	report := l.audit(t, false)
	assert.True(t, report.Passed())
	assert.Zero(t, report.Events)
	for _, c := range report.Checks {
		assert.NotEqual(t, "insurance funds = contributions - claims", c.Name)
	}
}

func TestRun_DetectsCorruption(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		check  string
		mutate func(t *testing.T, l *ledger, tx storage.Tx)
	}{
		{
			name:  "liquidity drift",
			check: "sum(position.liquidity) = total_liquidity",
			mutate: func(t *testing.T, l *ledger, tx storage.Tx) {
				key := storage.PositionKey(l.params.Asset, l.alice)
				pos, err := storage.Load[domain.LiquidityPosition](ctx, tx, key)
				require.NoError(t, err)
				pos.Liquidity++
				require.NoError(t, storage.Save(ctx, tx, key, pos))
			},
		},
		{
			name:  "supply leak",
			check: "supply + demand = initial supply",
			mutate: func(t *testing.T, l *ledger, tx storage.Tx) {
				key := storage.PriceKey(l.params.Asset)
				state, err := storage.Load[domain.PriceState](ctx, tx, key)
				require.NoError(t, err)
				state.Supply -= 10
				require.NoError(t, storage.Save(ctx, tx, key, state))
			},
		},
		{
			name:  "inflated tally",
			check: "tally = recorded votes of current round",
			mutate: func(t *testing.T, l *ledger, tx storage.Tx) {
				key := storage.ProposalKey(l.params.Asset)
				prop, err := storage.Load[domain.GovernanceProposal](ctx, tx, key)
				require.NoError(t, err)
				prop.VotesFor += 100
				require.NoError(t, storage.Save(ctx, tx, key, prop))
			},
		},
		{
			name:  "fee above cap",
			check: "proposed fee <= max fee percentage",
			mutate: func(t *testing.T, l *ledger, tx storage.Tx) {
				key := storage.ProposalKey(l.params.Asset)
				prop, err := storage.Load[domain.GovernanceProposal](ctx, tx, key)
				require.NoError(t, err)
				prop.ProposedFeePercentage = l.params.MaxFeePercentage + 1
				require.NoError(t, storage.Save(ctx, tx, key, prop))
			},
		},
		{
			name:  "self referral",
			check: "no self-referral",
			mutate: func(t *testing.T, l *ledger, tx storage.Tx) {
				key := storage.ProfileKey(l.params.Asset, l.bob)
				profile, err := storage.Load[domain.UserProfile](ctx, tx, key)
				require.NoError(t, err)
				self := l.bob
				profile.Referrer = &self
				require.NoError(t, storage.Save(ctx, tx, key, profile))
			},
		},
		{
			name:  "pool minted",
			check: "insurance funds = contributions - claims",
			mutate: func(t *testing.T, l *ledger, tx storage.Tx) {
				key := storage.InsuranceKey(l.params.Asset)
				pool, err := storage.Load[domain.InsurancePool](ctx, tx, key)
				require.NoError(t, err)
				pool.TotalFunds += 1_000
				require.NoError(t, storage.Save(ctx, tx, key, pool))
			},
		},
		{
			name:  "pool authority swapped",
			check: "insurance authority = price authority",
			mutate: func(t *testing.T, l *ledger, tx storage.Tx) {
				key := storage.InsuranceKey(l.params.Asset)
				pool, err := storage.Load[domain.InsurancePool](ctx, tx, key)
				require.NoError(t, err)
				pool.Authority = l.alice
				require.NoError(t, storage.Save(ctx, tx, key, pool))
			},
		},
		{
			name:  "claim clock in the future",
			check: "position clocks not ahead of audit time",
			mutate: func(t *testing.T, l *ledger, tx storage.Tx) {
				key := storage.PositionKey(l.params.Asset, l.bob)
				pos, err := storage.Load[domain.LiquidityPosition](ctx, tx, key)
				require.NoError(t, err)
				pos.LastClaimTimestamp = testNow.Add(time.Hour).Unix()
				require.NoError(t, storage.Save(ctx, tx, key, pos))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLedger(t)
			require.NoError(t, l.state.Update(ctx, func(tx storage.Tx) error {
				tt.mutate(t, l, tx)
				return nil
			}))

			report := l.audit(t, true)
			assert.False(t, report.Passed())
			failures := report.Failures()
			require.Len(t, failures, 1)
			assert.Equal(t, tt.check, failures[0].Name)
			assert.Contains(t, RenderMarkdown(report), "| FAIL |")
		})
	}
}

func TestRun_UninitializedAsset(t *testing.T) {
	ctx := context.Background()
	state := memory.NewStateStore()
	params := protocol.DefaultParams("EMPTY")

	report, err := New(state, nil, params, nil).Run(ctx)
	require.NoError(t, err)
	assert.False(t, report.Initialized)
	assert.True(t, report.Passed())

	owner := testIdentity(t, 5)
	require.NoError(t, state.Update(ctx, func(tx storage.Tx) error {
		return storage.Create(ctx, tx, storage.PositionKey("EMPTY", owner), &domain.LiquidityPosition{Asset: "EMPTY", Owner: owner, Liquidity: 1})
	}))

	report, err = New(state, nil, params, nil).Run(ctx)
	require.NoError(t, err)
	assert.False(t, report.Passed())
}

func TestRenderMarkdown(t *testing.T) {
	report := &Report{
		Asset:       "AUDIT",
		GeneratedAt: testNow.UTC(),
		Initialized: true,
		Checks: []Check{
			{Name: "price > 0", Expected: "> 0", Actual: "100", Pass: true},
			{Name: "no self-referral", Expected: "0 profiles", Actual: "1 profiles", Pass: false},
		},
	}

	md := RenderMarkdown(report)
	assert.Contains(t, md, "# Ledger Audit Report")
	assert.Contains(t, md, "| 1 | price > 0 | > 0 | 100 | PASS |")
	assert.Contains(t, md, "| 2 | no self-referral | 0 profiles | 1 profiles | FAIL |")
	assert.Contains(t, md, "Checks: 1/2 passed")
	assert.Contains(t, md, "- no self-referral (expected 0 profiles, actual 1 profiles)")
}
