package postgres

import (
	"context"
	"crypto/ed25519"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamic-pricing-ledger/internal/auth"
)

func TestNonceStore_EnsureAndPrune(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewNonceStore(pool)
	observed := time.Unix(1_700_000_000, 0)
	rec := auth.NonceRecord{Signer: testIdentity(t, 1), Nonce: "n-1", ObservedAt: observed}

	existed, err := store.EnsureNonce(ctx, rec)
	require.NoError(t, err)
	assert.False(t, existed)

	existed, err = store.EnsureNonce(ctx, rec)
	require.NoError(t, err)
	assert.True(t, existed)

	// Same nonce from another signer is distinct.
	existed, err = store.EnsureNonce(ctx, auth.NonceRecord{Signer: testIdentity(t, 2), Nonce: "n-1", ObservedAt: observed})
	require.NoError(t, err)
	assert.False(t, existed)

	require.NoError(t, store.PruneNonces(ctx, observed.Add(time.Second)))
	existed, err = store.EnsureNonce(ctx, rec)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestNonceStore_RejectsReplayAcrossVerifiers(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewNonceStore(pool)
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7
	key := ed25519.NewKeyFromSeed(seed)

	first := httptest.NewRequest(http.MethodPost, "/v1/buy", strings.NewReader(`{"amount":1}`))
	require.NoError(t, auth.Sign(first, key, now))
	_, err := auth.NewVerifier(0, clock).WithNoncePersistence(store).Verify(first)
	require.NoError(t, err)

	replay := httptest.NewRequest(http.MethodPost, "/v1/buy", strings.NewReader(`{"amount":1}`))
	replay.Header = first.Header.Clone()
	_, err = auth.NewVerifier(0, clock).WithNoncePersistence(store).Verify(replay)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}
