package protocol

import (
	"context"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/storage"
)

// OraclePrice is one aggregate reading of a price feed.
// The real value is Price × 10^Expo; Confidence is in the same units as Price.
type OraclePrice struct {
	FeedID      string `json:"feed_id"`
	Price       int64  `json:"price"`
	Expo        int32  `json:"expo"`
	Confidence  uint64 `json:"conf"`
	PublishTime int64  `json:"publish_time"`
}

// Oracle serves the latest reading of a price feed.
type Oracle interface {
	LatestPrice(ctx context.Context, feedID string) (OraclePrice, error)
}

// BalanceSource reports spendable native balances.
type BalanceSource interface {
	AvailableBalance(ctx context.Context, owner domain.Identity) (uint64, error)
}

// Transferer accepts native-currency movements for settlement.
type Transferer interface {
	Transfer(ctx context.Context, from, to domain.Identity, amount uint64, reason string) error
}

// TxTransferer is a Transferer that can record a movement inside the state
// update that produced it.
type TxTransferer interface {
	Transferer
	TransferTx(ctx context.Context, tx storage.Tx, from, to domain.Identity, amount uint64, reason string) error
}

// Transfer reasons.
const (
	ReasonBuy                   = "buy"
	ReasonRewardClaim           = "reward_claim"
	ReasonInsuranceContribution = "insurance_contribution"
)
