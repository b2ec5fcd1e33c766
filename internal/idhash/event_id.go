package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"dynamic-pricing-ledger/internal/domain"
)

// ComputeEventID computes a deterministic event_id using SHA256.
// Formula: SHA256(asset|type|actor|subject|timestamp|sequence)
// Returns hex-encoded hash (64 characters).
func ComputeEventID(
	asset string,
	eventType domain.EventType,
	actor domain.Identity,
	subject domain.Identity,
	timestamp int64,
	sequence uint64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d|%d",
		asset,
		string(eventType),
		actor.String(),
		subject.String(),
		timestamp,
		sequence,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
