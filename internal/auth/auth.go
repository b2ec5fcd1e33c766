// Package auth authenticates ledger requests signed with an ed25519 identity.
package auth

import (
	"bytes"
	"container/list"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"dynamic-pricing-ledger/internal/domain"
)

const (
	// HeaderSigner carries the caller's base58 identity.
	HeaderSigner = "X-Signer"
	// HeaderTimestamp is the unix timestamp (seconds) used when signing the request.
	HeaderTimestamp = "X-Timestamp"
	// HeaderNonce makes each signed request single-use within the skew window.
	HeaderNonce = "X-Nonce"
	// HeaderSignature carries the base58 ed25519 signature for the request.
	HeaderSignature = "X-Signature"
	// MaxBodyForSignature is the maximum body size hashed when authenticating.
	MaxBodyForSignature = 1 << 20
	// MaxNonceLength bounds the X-Nonce header.
	MaxNonceLength = 128

	// DefaultMaxSkew bounds the distance between X-Timestamp and server time.
	DefaultMaxSkew = 300 * time.Second

	defaultNonceCapacity     = 65536
	persistencePruneInterval = time.Minute
)

// ErrUnauthenticated wraps every authentication failure.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

type contextKey struct{}

// NonceRecord is one accepted (signer, nonce) pair.
type NonceRecord struct {
	Signer     domain.Identity
	Nonce      string
	ObservedAt time.Time
}

// NoncePersistence stores accepted nonces so replays are rejected across
// restarts and server instances.
type NoncePersistence interface {
	// EnsureNonce records the nonce and reports whether it already existed.
	EnsureNonce(ctx context.Context, record NonceRecord) (bool, error)
	// PruneNonces drops nonces observed before cutoff.
	PruneNonces(ctx context.Context, cutoff time.Time) error
}

// Verifier checks request signatures and rejects reused nonces.
type Verifier struct {
	maxSkew  time.Duration
	nonceTTL time.Duration
	nowFn    func() time.Time
	nonces   *nonceStore

	persistence NoncePersistence
	pruneMu     sync.Mutex
	lastPruned  time.Time
}

// NewVerifier creates a Verifier. Non-positive skew uses DefaultMaxSkew; nil nowFn uses time.Now.
// A timestamp is accepted up to maxSkew on either side of server time, so
// nonces are remembered for twice that long.
func NewVerifier(maxSkew time.Duration, nowFn func() time.Time) *Verifier {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Verifier{
		maxSkew:  maxSkew,
		nonceTTL: 2 * maxSkew,
		nowFn:    nowFn,
		nonces:   newNonceStore(2*maxSkew, defaultNonceCapacity),
	}
}

// WithNoncePersistence makes nonce checks durable.
func (v *Verifier) WithNoncePersistence(p NoncePersistence) *Verifier {
	v.persistence = p
	return v
}

// Verify authenticates r and returns the signer. The body is read and restored
// so handlers can decode it again.
func (v *Verifier) Verify(r *http.Request) (domain.Identity, error) {
	signerHeader := strings.TrimSpace(r.Header.Get(HeaderSigner))
	if signerHeader == "" {
		return domain.ZeroIdentity, fmt.Errorf("%w: missing %s header", ErrUnauthenticated, HeaderSigner)
	}
	signer, err := domain.ParseIdentity(signerHeader)
	if err != nil {
		return domain.ZeroIdentity, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !signer.OnCurve() {
		return domain.ZeroIdentity, fmt.Errorf("%w: signer is not an ed25519 point", ErrUnauthenticated)
	}

	timestampHeader := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	if timestampHeader == "" {
		return domain.ZeroIdentity, fmt.Errorf("%w: missing %s header", ErrUnauthenticated, HeaderTimestamp)
	}
	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return domain.ZeroIdentity, fmt.Errorf("%w: invalid timestamp: %v", ErrUnauthenticated, err)
	}
	now := v.nowFn()
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return domain.ZeroIdentity, fmt.Errorf("%w: timestamp outside allowed skew of %s", ErrUnauthenticated, v.maxSkew)
	}

	nonce := strings.TrimSpace(r.Header.Get(HeaderNonce))
	if nonce == "" {
		return domain.ZeroIdentity, fmt.Errorf("%w: missing %s header", ErrUnauthenticated, HeaderNonce)
	}
	if len(nonce) > MaxNonceLength {
		return domain.ZeroIdentity, fmt.Errorf("%w: nonce exceeds %d bytes", ErrUnauthenticated, MaxNonceLength)
	}

	sigHeader := strings.TrimSpace(r.Header.Get(HeaderSignature))
	if sigHeader == "" {
		return domain.ZeroIdentity, fmt.Errorf("%w: missing %s header", ErrUnauthenticated, HeaderSignature)
	}
	sig, err := base58.Decode(sigHeader)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return domain.ZeroIdentity, fmt.Errorf("%w: invalid signature encoding", ErrUnauthenticated)
	}

	body, err := readBody(r)
	if err != nil {
		return domain.ZeroIdentity, err
	}
	msg := Message(r.Method, r.URL.Path, timestampHeader, nonce, body)
	if !ed25519.Verify(ed25519.PublicKey(signer[:]), msg, sig) {
		return domain.ZeroIdentity, fmt.Errorf("%w: invalid signature", ErrUnauthenticated)
	}

	duplicate, err := v.registerNonce(r.Context(), signer, nonce, now)
	if err != nil {
		return domain.ZeroIdentity, err
	}
	if duplicate {
		return domain.ZeroIdentity, fmt.Errorf("%w: nonce already used", ErrUnauthenticated)
	}
	return signer, nil
}

// registerNonce records (signer, nonce) and reports whether it was seen before.
func (v *Verifier) registerNonce(ctx context.Context, signer domain.Identity, nonce string, now time.Time) (bool, error) {
	key := signer.String() + "|" + nonce
	if v.persistence == nil {
		return v.nonces.Seen(key, now), nil
	}

	if v.nonces.Contains(key, now) {
		return true, nil
	}
	if err := v.prunePersistent(ctx, now); err != nil {
		return false, err
	}
	existed, err := v.persistence.EnsureNonce(ctx, NonceRecord{Signer: signer, Nonce: nonce, ObservedAt: now})
	if err != nil {
		return false, fmt.Errorf("persist nonce: %w", err)
	}
	v.nonces.Add(key, now)
	return existed, nil
}

func (v *Verifier) prunePersistent(ctx context.Context, now time.Time) error {
	v.pruneMu.Lock()
	defer v.pruneMu.Unlock()
	if !v.lastPruned.IsZero() && now.Sub(v.lastPruned) < persistencePruneInterval {
		return nil
	}
	if err := v.persistence.PruneNonces(ctx, now.Add(-v.nonceTTL)); err != nil {
		return fmt.Errorf("prune persistent nonces: %w", err)
	}
	v.lastPruned = now
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyForSignature+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnauthenticated, err)
	}
	if len(body) > MaxBodyForSignature {
		return nil, fmt.Errorf("%w: request body exceeds %d bytes", ErrUnauthenticated, MaxBodyForSignature)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// Message is the signed payload: METHOD\nPATH\nTIMESTAMP\nNONCE\nBODY.
func Message(method, path, timestamp, nonce string, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(strings.ToUpper(method))
	buf.WriteByte('\n')
	buf.WriteString(path)
	buf.WriteByte('\n')
	buf.WriteString(timestamp)
	buf.WriteByte('\n')
	buf.WriteString(nonce)
	buf.WriteByte('\n')
	buf.Write(body)
	return buf.Bytes()
}

// Sign sets the signing headers on r for key at time now with a random nonce.
// Body must already be attached.
func Sign(r *http.Request, key ed25519.PrivateKey, now time.Time) error {
	return SignWithNonce(r, key, now, uuid.NewString())
}

// SignWithNonce is Sign with a caller-chosen nonce.
func SignWithNonce(r *http.Request, key ed25519.PrivateKey, now time.Time, nonce string) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	signer, err := domain.IdentityFromBytes(key.Public().(ed25519.PublicKey))
	if err != nil {
		return err
	}
	timestamp := strconv.FormatInt(now.Unix(), 10)
	sig := ed25519.Sign(key, Message(r.Method, r.URL.Path, timestamp, nonce, body))

	r.Header.Set(HeaderSigner, signer.String())
	r.Header.Set(HeaderTimestamp, timestamp)
	r.Header.Set(HeaderNonce, nonce)
	r.Header.Set(HeaderSignature, base58.Encode(sig))
	return nil
}

// WithSigner stores the authenticated signer in ctx.
func WithSigner(ctx context.Context, signer domain.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, signer)
}

// SignerFrom returns the authenticated signer, or the zero identity.
func SignerFrom(ctx context.Context) domain.Identity {
	signer, _ := ctx.Value(contextKey{}).(domain.Identity)
	return signer
}

// nonceStore is a TTL-bounded LRU of accepted nonces.
type nonceStore struct {
	ttl      time.Duration
	capacity int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

type nonceEntry struct {
	key string
	ts  time.Time
}

func newNonceStore(ttl time.Duration, capacity int) *nonceStore {
	return &nonceStore{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Seen reports whether key was observed within the TTL, recording it if not.
func (n *nonceStore) Seen(key string, now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evictExpired(now.Add(-n.ttl))
	if _, exists := n.entries[key]; exists {
		return true
	}
	n.insertLocked(key, now)
	return false
}

// Contains reports whether key was observed within the TTL without recording it.
func (n *nonceStore) Contains(key string, now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evictExpired(now.Add(-n.ttl))
	_, exists := n.entries[key]
	return exists
}

// Add records key.
func (n *nonceStore) Add(key string, now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evictExpired(now.Add(-n.ttl))
	n.insertLocked(key, now)
}

// Len returns the number of remembered nonces.
func (n *nonceStore) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.order.Len()
}

func (n *nonceStore) insertLocked(key string, now time.Time) {
	if elem, exists := n.entries[key]; exists {
		elem.Value = nonceEntry{key: key, ts: now}
		n.order.MoveToBack(elem)
		return
	}
	for n.order.Len() >= n.capacity {
		n.evictFront()
	}
	n.entries[key] = n.order.PushBack(nonceEntry{key: key, ts: now})
}

func (n *nonceStore) evictExpired(cutoff time.Time) {
	for {
		front := n.order.Front()
		if front == nil {
			return
		}
		if !front.Value.(nonceEntry).ts.Before(cutoff) {
			return
		}
		n.evictFront()
	}
}

func (n *nonceStore) evictFront() {
	front := n.order.Front()
	if front == nil {
		return
	}
	n.order.Remove(front)
	delete(n.entries, front.Value.(nonceEntry).key)
}
