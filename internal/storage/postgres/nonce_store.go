package postgres

import (
	"context"
	"fmt"
	"time"

	"dynamic-pricing-ledger/internal/auth"
	"dynamic-pricing-ledger/internal/observability"
)

// NonceStore implements auth.NoncePersistence on the request_nonces table.
type NonceStore struct {
	pool *Pool
}

// NewNonceStore creates a new NonceStore.
func NewNonceStore(pool *Pool) *NonceStore {
	return &NonceStore{pool: pool}
}

// Compile-time interface check.
var _ auth.NoncePersistence = (*NonceStore)(nil)

// EnsureNonce records the nonce and reports whether the (signer, nonce) pair was already stored.
func (s *NonceStore) EnsureNonce(ctx context.Context, record auth.NonceRecord) (bool, error) {
	query := `
		INSERT INTO request_nonces (signer, nonce, observed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (signer, nonce) DO NOTHING
	`

	start := time.Now()
	tag, err := s.pool.Exec(ctx, query, record.Signer.String(), record.Nonce, record.ObservedAt.Unix())
	observability.RecordDBQuery("postgres", "nonce_ensure", time.Since(start).Seconds(), err)
	if err != nil {
		return false, fmt.Errorf("ensure nonce: %w", err)
	}
	return tag.RowsAffected() == 0, nil
}

// PruneNonces deletes nonces observed before cutoff.
func (s *NonceStore) PruneNonces(ctx context.Context, cutoff time.Time) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM request_nonces WHERE observed_at < $1`, cutoff.Unix()); err != nil {
		return fmt.Errorf("prune nonces: %w", err)
	}
	return nil
}
