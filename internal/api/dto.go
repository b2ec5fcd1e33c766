package api

import (
	"dynamic-pricing-ledger/internal/domain"
)

// Request bodies of the signed routes. The caller is always the signer.
type (
	initializeRequest struct {
		InitialPrice uint64 `json:"initial_price"`
	}
	setPriceRequest struct {
		Price uint64 `json:"price"`
	}
	smoothRequest struct {
		Price  uint64 `json:"price"`
		Factor uint64 `json:"factor"`
	}
	amountRequest struct {
		Amount uint64 `json:"amount"`
	}
	ownerAmountRequest struct {
		Owner  domain.Identity `json:"owner"`
		Amount uint64          `json:"amount"`
	}
	slashRequest struct {
		Owner            domain.Identity `json:"owner"`
		InactivityPeriod int64           `json:"inactivity_period"`
	}
	distributeRequest struct {
		Owner        domain.Identity `json:"owner"`
		TotalRevenue uint64          `json:"total_revenue"`
	}
	distributeAllRequest struct {
		TotalRevenue uint64 `json:"total_revenue"`
	}
	proposeRequest struct {
		FeePercentage uint64 `json:"fee_percentage"`
	}
	voteRequest struct {
		InFavor bool `json:"in_favor"`
	}
	registerReferralRequest struct {
		Referrer domain.Identity `json:"referrer"`
	}
	rewardReferrerRequest struct {
		User         domain.Identity `json:"user"`
		RewardAmount uint64          `json:"reward_amount"`
	}
	resolveTransferRequest struct {
		Settled bool `json:"settled"`
	}
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the stable code and a human-readable message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status     string                `json:"status"`
	Asset      string                `json:"asset"`
	Uptime     string                `json:"uptime"`
	Started    int64                 `json:"started"`
	Price      *domain.PriceState    `json:"price,omitempty"`
	Insurance  *domain.InsurancePool `json:"insurance,omitempty"`
	Settlement string                `json:"settlement"`
	Chain      *ChainStatus          `json:"chain,omitempty"`
}

// ChainStatus is the settlement chain view included in StatusResponse.
type ChainStatus struct {
	Slot             int64   `json:"slot"`
	TreasuryLamports *uint64 `json:"treasury_lamports,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// EventView is the wire form of a journaled ledger event.
type EventView struct {
	EventID   string           `json:"event_id"`
	Asset     string           `json:"asset"`
	Type      domain.EventType `json:"type"`
	Actor     domain.Identity  `json:"actor"`
	Subject   *domain.Identity `json:"subject,omitempty"`
	Amount    uint64           `json:"amount"`
	Price     uint64           `json:"price"`
	Detail    string           `json:"detail,omitempty"`
	Timestamp int64            `json:"timestamp"`
	Sequence  uint64           `json:"sequence"`
}

func newEventView(ev *domain.LedgerEvent) EventView {
	v := EventView{
		EventID:   ev.EventID,
		Asset:     ev.Asset,
		Type:      ev.Type,
		Actor:     ev.Actor,
		Amount:    ev.Amount,
		Price:     ev.Price,
		Detail:    ev.Detail,
		Timestamp: ev.Timestamp,
		Sequence:  ev.Sequence,
	}
	if !ev.Subject.IsZero() {
		subject := ev.Subject
		v.Subject = &subject
	}
	return v
}

// TransferView is the wire form of a settlement transfer.
type TransferView struct {
	TransferID string                `json:"transfer_id"`
	From       domain.Identity       `json:"from"`
	To         domain.Identity       `json:"to"`
	Amount     uint64                `json:"amount"`
	Reason     string                `json:"reason"`
	Status     domain.TransferStatus `json:"status"`
	CreatedAt  int64                 `json:"created_at"`
}

func newTransferView(t *domain.Transfer) TransferView {
	return TransferView{
		TransferID: t.TransferID,
		From:       t.From,
		To:         t.To,
		Amount:     t.Amount,
		Reason:     t.Reason,
		Status:     t.Status,
		CreatedAt:  t.CreatedAt,
	}
}
