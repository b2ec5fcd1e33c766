package api

import (
	"errors"
	"net/http"

	"dynamic-pricing-ledger/internal/auth"
	"dynamic-pricing-ledger/internal/protocol"
	"dynamic-pricing-ledger/internal/settlement"
	"dynamic-pricing-ledger/internal/storage"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("api: bad request")

var errorStatuses = []struct {
	err    error
	status int
}{
	{errBadRequest, http.StatusBadRequest},
	{protocol.ErrInvalidPrice, http.StatusBadRequest},
	{protocol.ErrInvalidAmount, http.StatusBadRequest},
	{protocol.ErrInvalidFeePercentage, http.StatusBadRequest},
	{protocol.ErrInvalidReferrer, http.StatusBadRequest},
	{settlement.ErrInvalidTransfer, http.StatusBadRequest},
	{storage.ErrInvalidInput, http.StatusBadRequest},

	{auth.ErrUnauthenticated, http.StatusUnauthorized},
	{protocol.ErrUnauthorized, http.StatusForbidden},

	{protocol.ErrNotInitialized, http.StatusNotFound},
	{protocol.ErrPositionNotFound, http.StatusNotFound},
	{protocol.ErrProposalNotFound, http.StatusNotFound},
	{protocol.ErrPoolNotFound, http.StatusNotFound},
	{storage.ErrNotFound, http.StatusNotFound},

	{protocol.ErrInvalidState, http.StatusConflict},
	{protocol.ErrAlreadyVoted, http.StatusConflict},
	{storage.ErrConflict, http.StatusConflict},

	{protocol.ErrSupplyExhausted, http.StatusUnprocessableEntity},
	{protocol.ErrInsufficientBalance, http.StatusUnprocessableEntity},
	{protocol.ErrVestingPeriodNotMet, http.StatusUnprocessableEntity},
	{protocol.ErrInsufficientRewards, http.StatusUnprocessableEntity},
	{protocol.ErrInsufficientFunds, http.StatusUnprocessableEntity},
	{protocol.ErrNoLiquidity, http.StatusUnprocessableEntity},
	{protocol.ErrNoVotingPower, http.StatusUnprocessableEntity},

	{protocol.ErrOracleUnavailable, http.StatusBadGateway},
	{protocol.ErrTransferFailed, http.StatusBadGateway},
}

// statusFor maps err to an HTTP status. Overflow and unknown errors are 500.
func statusFor(err error) int {
	for _, s := range errorStatuses {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// codeFor returns the stable error code reported in responses.
func codeFor(err error) string {
	switch {
	case errors.Is(err, errBadRequest):
		return "BadRequest"
	case errors.Is(err, auth.ErrUnauthenticated):
		return "Unauthenticated"
	case errors.Is(err, settlement.ErrInvalidTransfer), errors.Is(err, storage.ErrInvalidInput):
		return "InvalidInput"
	case errors.Is(err, storage.ErrNotFound):
		return "NotFound"
	}
	return protocol.Code(err)
}
