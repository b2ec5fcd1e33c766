package domain

// GovernanceTokenBalance is the voting weight held by an owner.
type GovernanceTokenBalance struct {
	Asset   string   `json:"asset"`
	Owner   Identity `json:"owner"`
	Balance uint64   `json:"balance"`
}

// GovernanceProposal is the fee-change proposal of an asset.
// Each propose call starts a new Round and resets the tallies.
type GovernanceProposal struct {
	Asset                 string   `json:"asset"`
	Authority             Identity `json:"authority"`
	Round                 uint64   `json:"round"`
	ProposedFeePercentage uint64   `json:"proposed_fee_percentage"` // <= MaxFeePercentage
	VotesFor              uint64   `json:"votes_for"`
	VotesAgainst          uint64   `json:"votes_against"`
	ProposedAt            int64    `json:"proposed_at"`
}

// VoteRecord marks that a voter has cast a vote in a proposal round.
type VoteRecord struct {
	Asset   string   `json:"asset"`
	Round   uint64   `json:"round"`
	Voter   Identity `json:"voter"`
	Weight  uint64   `json:"weight"` // balance snapshot at cast time
	InFavor bool     `json:"in_favor"`
	CastAt  int64    `json:"cast_at"`
}
