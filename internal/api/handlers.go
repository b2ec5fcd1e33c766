package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dynamic-pricing-ledger/internal/auth"
	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/protocol"
)

// caller is the authenticated signer of r.
func caller(r *http.Request) domain.Identity {
	return auth.SignerFrom(r.Context())
}

// Reads

func (s *Server) getPrice(r *http.Request) (any, error) {
	return s.protocol.Price(r.Context())
}

func (s *Server) getFee(r *http.Request) (any, error) {
	amount, err := uintQuery(r, "amount", true)
	if err != nil {
		return nil, err
	}
	return s.protocol.FeeFor(r.Context(), amount)
}

func (s *Server) listPositions(r *http.Request) (any, error) {
	return s.protocol.Positions(r.Context())
}

func (s *Server) getPosition(r *http.Request) (any, error) {
	owner, err := identityParam(r, "owner")
	if err != nil {
		return nil, err
	}
	return s.protocol.Position(r.Context(), owner)
}

func (s *Server) getProposal(r *http.Request) (any, error) {
	return s.protocol.Proposal(r.Context())
}

func (s *Server) getGovernanceBalance(r *http.Request) (any, error) {
	owner, err := identityParam(r, "owner")
	if err != nil {
		return nil, err
	}
	return s.protocol.GovernanceBalance(r.Context(), owner)
}

func (s *Server) getInsurancePool(r *http.Request) (any, error) {
	return s.protocol.InsurancePool(r.Context())
}

func (s *Server) getProfile(r *http.Request) (any, error) {
	user, err := identityParam(r, "user")
	if err != nil {
		return nil, err
	}
	return s.protocol.Profile(r.Context(), user)
}

func (s *Server) listEvents(r *http.Request) (any, error) {
	from, err := intQuery(r, "from", 0)
	if err != nil {
		return nil, err
	}
	to, err := intQuery(r, "to", s.now().Unix())
	if err != nil {
		return nil, err
	}
	events, err := s.protocol.Events(r.Context(), from, to)
	if err != nil {
		return nil, err
	}
	views := make([]EventView, 0, len(events))
	for _, ev := range events {
		views = append(views, newEventView(ev))
	}
	return views, nil
}

// Pricing

func (s *Server) initialize(r *http.Request) (any, error) {
	var req initializeRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.protocol.Initialize(r.Context(), caller(r), req.InitialPrice)
}

func (s *Server) setPrice(r *http.Request) (any, error) {
	var req setPriceRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.protocol.SetPrice(r.Context(), caller(r), req.Price)
}

func (s *Server) importOraclePrice(r *http.Request) (any, error) {
	return s.protocol.ImportOraclePrice(r.Context(), caller(r))
}

func (s *Server) adjustPrice(r *http.Request) (any, error) {
	return s.protocol.AdjustBySupplyDemand(r.Context(), caller(r))
}

func (s *Server) smooth(r *http.Request) (any, error) {
	var req smoothRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.protocol.Smooth(r.Context(), caller(r), req.Price, req.Factor)
}

func (s *Server) recordBuy(r *http.Request) (any, error) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.protocol.RecordBuy(r.Context(), caller(r), req.Amount)
}

// Liquidity

func (s *Server) contribute(r *http.Request) (any, error) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.protocol.Contribute(r.Context(), caller(r), req.Amount)
}

func (s *Server) vestAndClaim(r *http.Request) (any, error) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.protocol.VestAndClaim(r.Context(), caller(r), req.Amount)
}

func (s *Server) slashInactive(r *http.Request) (any, error) {
	var req slashRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.protocol.SlashInactive(r.Context(), caller(r), req.Owner, req.InactivityPeriod)
}

// Revenue

type shareResponse struct {
	Owner string `json:"owner"`
	Share uint64 `json:"share"`
}

func (s *Server) distribute(r *http.Request) (any, error) {
	var req distributeRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	share, err := s.protocol.Distribute(r.Context(), caller(r), req.Owner, req.TotalRevenue)
	if err != nil {
		return nil, err
	}
	return shareResponse{Owner: req.Owner.String(), Share: share}, nil
}

func (s *Server) distributeAll(r *http.Request) (any, error) {
	var req distributeAllRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.protocol.DistributeAll(r.Context(), caller(r), req.TotalRevenue)
}

// Governance

func (s *Server) distributeGovernanceTokens(r *http.Request) (any, error) {
	var req ownerAmountRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.protocol.DistributeGovernanceTokens(r.Context(), caller(r), req.Owner, req.Amount)
}

func (s *Server) proposeFeeChange(r *http.Request) (any, error) {
	var req proposeRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.protocol.ProposeFeeChange(r.Context(), caller(r), req.FeePercentage)
}

func (s *Server) vote(r *http.Request) (any, error) {
	var req voteRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.protocol.Vote(r.Context(), caller(r), req.InFavor)
}

// Insurance

func (s *Server) initializeInsurance(r *http.Request) (any, error) {
	return s.protocol.InitializeInsurancePool(r.Context(), caller(r))
}

func (s *Server) contributeInsurance(r *http.Request) (any, error) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.protocol.ContributeInsurance(r.Context(), caller(r), req.Amount)
}

func (s *Server) claimInsurance(r *http.Request) (any, error) {
	var req ownerAmountRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.protocol.ClaimInsurance(r.Context(), caller(r), req.Owner, req.Amount)
}

// Referrals

type rewardResponse struct {
	User     string `json:"user"`
	Credited uint64 `json:"credited"`
}

func (s *Server) registerReferral(r *http.Request) (any, error) {
	var req registerReferralRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.protocol.RegisterReferral(r.Context(), caller(r), req.Referrer)
}

func (s *Server) rewardReferrer(r *http.Request) (any, error) {
	var req rewardReferrerRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	credited, err := s.protocol.RewardReferrer(r.Context(), caller(r), req.User, req.RewardAmount)
	if err != nil {
		return nil, err
	}
	return rewardResponse{User: req.User.String(), Credited: credited}, nil
}

// Settlement

func (s *Server) pendingTransfers(r *http.Request) (any, error) {
	transfers, err := s.settlement.Pending(r.Context())
	if err != nil {
		return nil, err
	}
	views := make([]TransferView, 0, len(transfers))
	for _, t := range transfers {
		views = append(views, newTransferView(t))
	}
	return views, nil
}

func (s *Server) getTransfer(r *http.Request) (any, error) {
	t, err := s.settlement.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	return newTransferView(t), nil
}

// resolveTransfer is restricted to the treasury, the counterparty of every transfer.
func (s *Server) resolveTransfer(r *http.Request) (any, error) {
	treasury := s.protocol.Params().Treasury
	if treasury.IsZero() || caller(r) != treasury {
		return nil, protocol.ErrUnauthorized
	}
	var req resolveTransferRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	t, err := s.settlement.Resolve(r.Context(), chi.URLParam(r, "id"), req.Settled)
	if err != nil {
		return nil, err
	}
	return newTransferView(t), nil
}
