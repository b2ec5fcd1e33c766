package domain

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// IdentitySize is the byte length of an ed25519 public key.
const IdentitySize = 32

// ErrInvalidIdentity is returned when an identity cannot be decoded.
var ErrInvalidIdentity = errors.New("invalid identity")

// Identity is an ed25519 public key identifying a signer, owner or authority.
// Rendered as base58 (Solana address alphabet).
type Identity [IdentitySize]byte

// ZeroIdentity is the unset identity.
var ZeroIdentity Identity

// ParseIdentity decodes a base58 identity string.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	if s == "" {
		return id, ErrInvalidIdentity
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if len(decoded) != IdentitySize {
		return id, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidIdentity, IdentitySize, len(decoded))
	}
	copy(id[:], decoded)
	return id, nil
}

// MustParseIdentity is ParseIdentity that panics on error. Intended for constants and tests.
func MustParseIdentity(s string) Identity {
	id, err := ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IdentityFromBytes copies a 32-byte key into an Identity.
func IdentityFromBytes(b []byte) (Identity, error) {
	var id Identity
	if len(b) != IdentitySize {
		return id, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidIdentity, IdentitySize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// String returns the base58 encoding.
func (id Identity) String() string {
	return base58.Encode(id[:])
}

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool {
	return id == ZeroIdentity
}

// OnCurve reports whether the identity is a valid ed25519 point.
// Program-derived addresses are deliberately off-curve and can never sign.
func (id Identity) OnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(id[:])
	return err == nil
}

// MarshalText implements encoding.TextMarshaler.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
