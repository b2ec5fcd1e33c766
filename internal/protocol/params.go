package protocol

import (
	"fmt"
	"strings"
	"time"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/storage"
)

// Protocol constants. Params built from them are immutable after startup.
const (
	DefaultInitialSupply          = 100
	DefaultRewardRateBps          = 100 // 1% of each contribution
	DefaultVestingPeriod          = 7 * 24 * time.Hour
	DefaultFeePercent             = 1
	DefaultMaxFeePercentage       = 10
	DefaultReferralRewardPercent  = 10
	DefaultOracleMaxStaleness     = 60 * time.Second
	DefaultOracleMaxConfidenceBps = 200

	bpsDenominator     = 10_000
	percentDenominator = 100
)

// FeeTier applies Percent to transactions while total liquidity is below Below.
type FeeTier struct {
	Below   uint64 `mapstructure:"below" json:"below"`
	Percent uint64 `mapstructure:"percent" json:"percent"`
}

// DefaultFeeTiers returns the liquidity brackets: <1000 → 5%, <5000 → 2%.
func DefaultFeeTiers() []FeeTier {
	return []FeeTier{
		{Below: 1000, Percent: 5},
		{Below: 5000, Percent: 2},
	}
}

// Params is the process-wide protocol configuration.
type Params struct {
	Asset                  string
	InitialSupply          uint64
	RewardRateBps          uint64
	VestingPeriod          time.Duration
	FeeTiers               []FeeTier
	DefaultFeePercent      uint64
	MaxFeePercentage       uint64
	ReferralRewardPercent  uint64
	OracleFeedID           string
	OracleMaxStaleness     time.Duration
	OracleMaxConfidenceBps uint64
	PriceDecimals          int32
	Treasury               domain.Identity
}

// DefaultParams returns Params for asset with every protocol constant at its default.
func DefaultParams(asset string) Params {
	return Params{
		Asset:                  asset,
		InitialSupply:          DefaultInitialSupply,
		RewardRateBps:          DefaultRewardRateBps,
		VestingPeriod:          DefaultVestingPeriod,
		FeeTiers:               DefaultFeeTiers(),
		DefaultFeePercent:      DefaultFeePercent,
		MaxFeePercentage:       DefaultMaxFeePercentage,
		ReferralRewardPercent:  DefaultReferralRewardPercent,
		OracleMaxStaleness:     DefaultOracleMaxStaleness,
		OracleMaxConfidenceBps: DefaultOracleMaxConfidenceBps,
	}
}

// Validate checks that the parameters are internally consistent.
func (p Params) Validate() error {
	if p.Asset == "" {
		return fmt.Errorf("asset is required")
	}
	if strings.Contains(p.Asset, storage.KeySeparator) {
		return fmt.Errorf("asset %q must not contain %q", p.Asset, storage.KeySeparator)
	}
	if p.RewardRateBps > bpsDenominator {
		return fmt.Errorf("reward rate %d bps exceeds 100%%", p.RewardRateBps)
	}
	if p.VestingPeriod <= 0 {
		return fmt.Errorf("vesting period must be positive")
	}
	var prev uint64
	for i, tier := range p.FeeTiers {
		if i > 0 && tier.Below <= prev {
			return fmt.Errorf("fee tier %d: bounds must be strictly ascending", i)
		}
		if tier.Percent > percentDenominator {
			return fmt.Errorf("fee tier %d: percent %d exceeds 100", i, tier.Percent)
		}
		prev = tier.Below
	}
	if p.DefaultFeePercent > percentDenominator {
		return fmt.Errorf("default fee percent %d exceeds 100", p.DefaultFeePercent)
	}
	if p.MaxFeePercentage > percentDenominator {
		return fmt.Errorf("max fee percentage %d exceeds 100", p.MaxFeePercentage)
	}
	if p.ReferralRewardPercent > percentDenominator {
		return fmt.Errorf("referral reward percent %d exceeds 100", p.ReferralRewardPercent)
	}
	if p.OracleMaxStaleness < 0 {
		return fmt.Errorf("oracle max staleness must not be negative")
	}
	if p.PriceDecimals < 0 || p.PriceDecimals > 18 {
		return fmt.Errorf("price decimals must be within [0, 18]")
	}
	return nil
}

// vestingSeconds is the vesting period in whole seconds.
func (p Params) vestingSeconds() int64 {
	return int64(p.VestingPeriod / time.Second)
}
