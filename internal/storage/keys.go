package storage

import (
	"strconv"
	"strings"

	"dynamic-pricing-ledger/internal/domain"
)

// Kind names a family of state cells.
type Kind string

const (
	KindPrice     Kind = "price"
	KindPosition  Kind = "position"
	KindGovToken  Kind = "gov_balance"
	KindProposal  Kind = "proposal"
	KindVote      Kind = "vote"
	KindInsurance Kind = "insurance"
	KindProfile   Kind = "profile"
	KindSequence  Kind = "event_seq"
)

// KeySeparator joins the parts of a cell ID. Asset names must not contain it.
const KeySeparator = "|"

// Key addresses one state cell.
type Key struct {
	Kind Kind
	ID   string
}

// String renders the key as kind/id.
func (k Key) String() string {
	return string(k.Kind) + "/" + k.ID
}

// Valid reports whether both parts are set.
func (k Key) Valid() bool {
	return k.Kind != "" && k.ID != ""
}

func join(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

// PriceKey addresses the PriceState of an asset.
func PriceKey(asset string) Key {
	return Key{Kind: KindPrice, ID: asset}
}

// PositionKey addresses an owner's LiquidityPosition.
func PositionKey(asset string, owner domain.Identity) Key {
	return Key{Kind: KindPosition, ID: join(asset, owner.String())}
}

// GovTokenKey addresses an owner's GovernanceTokenBalance.
func GovTokenKey(asset string, owner domain.Identity) Key {
	return Key{Kind: KindGovToken, ID: join(asset, owner.String())}
}

// ProposalKey addresses the GovernanceProposal of an asset.
func ProposalKey(asset string) Key {
	return Key{Kind: KindProposal, ID: asset}
}

// VoteKey addresses a voter's marker for one proposal round.
func VoteKey(asset string, round uint64, voter domain.Identity) Key {
	return Key{Kind: KindVote, ID: join(asset, strconv.FormatUint(round, 10), voter.String())}
}

// InsuranceKey addresses the InsurancePool of an asset.
func InsuranceKey(asset string) Key {
	return Key{Kind: KindInsurance, ID: asset}
}

// ProfileKey addresses a user's referral profile.
func ProfileKey(asset string, user domain.Identity) Key {
	return Key{Kind: KindProfile, ID: join(asset, user.String())}
}

// SequenceKey addresses the journal sequence cursor of an asset.
func SequenceKey(asset string) Key {
	return Key{Kind: KindSequence, ID: asset}
}

// AssetPrefix is the ID prefix shared by every per-owner cell of an asset.
func AssetPrefix(asset string) string {
	return asset + KeySeparator
}

// VoteRoundPrefix is the ID prefix of every vote marker of one proposal round.
func VoteRoundPrefix(asset string, round uint64) string {
	return join(asset, strconv.FormatUint(round, 10), "")
}
