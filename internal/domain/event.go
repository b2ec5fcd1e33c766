package domain

// EventType names a committed ledger operation.
type EventType string

const (
	EventPriceInitialized   EventType = "price.initialized"
	EventPriceSet           EventType = "price.set"
	EventPriceOracle        EventType = "price.oracle"
	EventPriceAdjusted      EventType = "price.adjusted"
	EventPriceSmoothed      EventType = "price.smoothed"
	EventAssetBought        EventType = "asset.bought"
	EventLiquidityAdded     EventType = "liquidity.contributed"
	EventRewardsClaimed     EventType = "rewards.claimed"
	EventRewardsSlashed     EventType = "rewards.slashed"
	EventRevenueDistributed EventType = "revenue.distributed"
	EventGovTokensIssued    EventType = "governance.tokens_issued"
	EventProposalCreated    EventType = "governance.proposed"
	EventVoteCast           EventType = "governance.voted"
	EventInsuranceOpened    EventType = "insurance.initialized"
	EventInsuranceFunded    EventType = "insurance.contributed"
	EventInsuranceClaimed   EventType = "insurance.claimed"
	EventReferralRegistered EventType = "referral.registered"
	EventReferralReassigned EventType = "referral.reassigned"
	EventReferrerRewarded   EventType = "referral.rewarded"
)

// String returns the string representation of EventType.
func (t EventType) String() string {
	return string(t)
}

// LedgerEvent is an append-only journal entry describing one committed operation.
// Corresponds to the ledger_events table in ClickHouse.
type LedgerEvent struct {
	EventID   string    // deterministic hash
	Asset     string    // asset the operation ran against
	Type      EventType // operation kind
	Actor     Identity  // authenticated caller
	Subject   Identity  // affected owner/user (zero when not applicable)
	Amount    uint64    // primary amount of the operation
	Price     uint64    // asset price after the operation
	Detail    string    // free-form context (previous referrer, round, ...)
	Timestamp int64     // unix seconds
	Sequence  uint64    // per-process emission counter
}
