package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProposeFeeChange(t *testing.T) {
	f := newFixture(t)
	f.init(t, 10)

	_, err := f.p.ProposeFeeChange(f.ctx, f.admin, DefaultMaxFeePercentage+1)
	assert.ErrorIs(t, err, ErrInvalidFeePercentage)
	_, err = f.p.ProposeFeeChange(f.ctx, f.alice, 5)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.p.Proposal(f.ctx)
	assert.ErrorIs(t, err, ErrProposalNotFound)

	proposal, err := f.p.ProposeFeeChange(f.ctx, f.admin, DefaultMaxFeePercentage)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), proposal.Round)
	assert.Equal(t, uint64(DefaultMaxFeePercentage), proposal.ProposedFeePercentage)
	assert.Equal(t, f.admin, proposal.Authority)
}

func TestVote(t *testing.T) {
	f := newFixture(t)
	f.init(t, 10)

	_, err := f.p.Vote(f.ctx, f.alice, true)
	assert.ErrorIs(t, err, ErrProposalNotFound)

	_, err = f.p.ProposeFeeChange(f.ctx, f.admin, 3)
	require.NoError(t, err)

	_, err = f.p.Vote(f.ctx, f.alice, true)
	assert.ErrorIs(t, err, ErrNoVotingPower)

	_, err = f.p.DistributeGovernanceTokens(f.ctx, f.alice, f.alice, 40)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.p.DistributeGovernanceTokens(f.ctx, f.admin, f.alice, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	balance, err := f.p.DistributeGovernanceTokens(f.ctx, f.admin, f.alice, 40)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), balance.Balance)
	_, err = f.p.DistributeGovernanceTokens(f.ctx, f.admin, f.bob, 20)
	require.NoError(t, err)
	balance, err = f.p.DistributeGovernanceTokens(f.ctx, f.admin, f.bob, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), balance.Balance)

	proposal, err := f.p.Vote(f.ctx, f.alice, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), proposal.VotesFor)

	proposal, err = f.p.Vote(f.ctx, f.bob, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), proposal.VotesFor)
	assert.Equal(t, uint64(25), proposal.VotesAgainst)

	_, err = f.p.Vote(f.ctx, f.alice, false)
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	// Later balance changes do not touch recorded weights.
	_, err = f.p.DistributeGovernanceTokens(f.ctx, f.admin, f.alice, 100)
	require.NoError(t, err)
	proposal, err = f.p.Proposal(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), proposal.VotesFor)

	// A new round resets tallies and markers.
	proposal, err = f.p.ProposeFeeChange(f.ctx, f.admin, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), proposal.Round)
	assert.Zero(t, proposal.VotesFor)
	assert.Zero(t, proposal.VotesAgainst)

	proposal, err = f.p.Vote(f.ctx, f.alice, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(140), proposal.VotesFor)
}

func TestGovernanceBalance_DefaultsToZero(t *testing.T) {
	f := newFixture(t)

	balance, err := f.p.GovernanceBalance(f.ctx, f.carol)
	require.NoError(t, err)
	assert.Zero(t, balance.Balance)
	assert.Equal(t, f.carol, balance.Owner)
}
