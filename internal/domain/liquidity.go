package domain

// LiquidityPosition is a provider's staked liquidity and accrued rewards.
// Created on first contribution; never deleted.
type LiquidityPosition struct {
	Asset              string   `json:"asset"`
	Owner              Identity `json:"owner"`
	Liquidity          uint64   `json:"liquidity"`
	Rewards            uint64   `json:"rewards"`
	LastClaimTimestamp int64    `json:"last_claim_timestamp"` // unix seconds, non-decreasing
	LastSlashTimestamp int64    `json:"last_slash_timestamp"` // unix seconds, 0 if never slashed
	CreatedAt          int64    `json:"created_at"`
}

// LastActivity returns the most recent claim or slash time. Inactivity windows are measured from it.
func (p *LiquidityPosition) LastActivity() int64 {
	if p.LastSlashTimestamp > p.LastClaimTimestamp {
		return p.LastSlashTimestamp
	}
	return p.LastClaimTimestamp
}

// RevenueShare is one provider's allocation from a revenue distribution.
type RevenueShare struct {
	Owner Identity `json:"owner"`
	Share uint64   `json:"share"`
}
