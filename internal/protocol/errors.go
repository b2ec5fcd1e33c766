package protocol

import (
	"errors"

	"dynamic-pricing-ledger/internal/storage"
)

// Operation errors. Every failed operation leaves state unchanged.
var (
	ErrInvalidPrice         = errors.New("protocol: invalid price")
	ErrInvalidAmount        = errors.New("protocol: invalid amount")
	ErrInvalidState         = errors.New("protocol: invalid state")
	ErrNotInitialized       = errors.New("protocol: asset not initialized")
	ErrUnauthorized         = errors.New("protocol: unauthorized")
	ErrSupplyExhausted      = errors.New("protocol: supply exhausted")
	ErrInsufficientBalance  = errors.New("protocol: insufficient balance")
	ErrVestingPeriodNotMet  = errors.New("protocol: vesting period not met")
	ErrInsufficientRewards  = errors.New("protocol: insufficient rewards")
	ErrInvalidFeePercentage = errors.New("protocol: invalid fee percentage")
	ErrInsufficientFunds    = errors.New("protocol: insufficient insurance funds")
	ErrNoLiquidity          = errors.New("protocol: no liquidity")
	ErrOracleUnavailable    = errors.New("protocol: oracle unavailable")
	ErrTransferFailed       = errors.New("protocol: transfer failed")
	ErrOverflow             = errors.New("protocol: arithmetic overflow")
	ErrPositionNotFound     = errors.New("protocol: position not found")
	ErrProposalNotFound     = errors.New("protocol: proposal not found")
	ErrPoolNotFound         = errors.New("protocol: insurance pool not found")
	ErrAlreadyVoted         = errors.New("protocol: already voted")
	ErrNoVotingPower        = errors.New("protocol: no voting power")
	ErrInvalidReferrer      = errors.New("protocol: invalid referrer")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidPrice, "InvalidPrice"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInvalidState, "InvalidState"},
	{ErrNotInitialized, "NotInitialized"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrSupplyExhausted, "SupplyExhausted"},
	{ErrInsufficientBalance, "InsufficientBalance"},
	{ErrVestingPeriodNotMet, "VestingPeriodNotMet"},
	{ErrInsufficientRewards, "InsufficientRewards"},
	{ErrInvalidFeePercentage, "InvalidFeePercentage"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrNoLiquidity, "NoLiquidity"},
	{ErrOracleUnavailable, "OracleUnavailable"},
	{ErrTransferFailed, "TransferFailed"},
	{ErrOverflow, "Overflow"},
	{ErrPositionNotFound, "PositionNotFound"},
	{ErrProposalNotFound, "ProposalNotFound"},
	{ErrPoolNotFound, "PoolNotFound"},
	{ErrAlreadyVoted, "AlreadyVoted"},
	{ErrNoVotingPower, "NoVotingPower"},
	{ErrInvalidReferrer, "InvalidReferrer"},
	{storage.ErrConflict, "Conflict"},
}

// Code returns the stable error kind name of err, "OK" for nil and "Internal" otherwise.
func Code(err error) string {
	if err == nil {
		return "OK"
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "Internal"
}
