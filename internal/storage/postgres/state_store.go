package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"dynamic-pricing-ledger/internal/observability"
	"dynamic-pricing-ledger/internal/storage"
)

// StateStore implements storage.StateStore on the ledger_state table.
// Every row read inside Update is locked with SELECT ... FOR UPDATE, so
// operations touching a shared cell serialize while disjoint ones run in parallel.
type StateStore struct {
	pool *Pool
}

// NewStateStore creates a new StateStore.
func NewStateStore(pool *Pool) *StateStore {
	return &StateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StateStore = (*StateStore)(nil)

// Update runs fn inside a read-write transaction and commits if it returns nil.
// A lost deadlock or serialization race surfaces as storage.ErrConflict; the
// operation is not re-run here because fn may have reported transfers.
func (s *StateStore) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	start := time.Now()
	err := s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, false, fn)
	observability.RecordDBQuery("postgres", "state_update", time.Since(start).Seconds(), dbError(err))
	if isRetryableError(err) {
		return fmt.Errorf("%w: %v", storage.ErrConflict, err)
	}
	return err
}

// View runs fn inside a read-only repeatable-read transaction.
func (s *StateStore) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	start := time.Now()
	err := s.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, true, fn)
	observability.RecordDBQuery("postgres", "state_view", time.Since(start).Seconds(), dbError(err))
	return err
}

func (s *StateStore) run(ctx context.Context, opts pgx.TxOptions, readOnly bool, fn func(tx storage.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&stateTx{tx: tx, readOnly: readOnly}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// stateTx adapts a pgx.Tx to storage.Tx.
type stateTx struct {
	tx       pgx.Tx
	readOnly bool
}

func (t *stateTx) lockClause() string {
	if t.readOnly {
		return ""
	}
	return " FOR UPDATE"
}

// Get returns the cell at key, locking the row in read-write transactions.
func (t *stateTx) Get(ctx context.Context, key storage.Key) ([]byte, error) {
	if !key.Valid() {
		return nil, storage.ErrInvalidInput
	}

	query := `SELECT value FROM ledger_state WHERE kind = $1 AND id = $2` + t.lockClause()

	var value []byte
	err := t.tx.QueryRow(ctx, query, string(key.Kind), key.ID).Scan(&value)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Insert creates a cell. ON CONFLICT keeps the transaction usable after a duplicate.
func (t *stateTx) Insert(ctx context.Context, key storage.Key, value []byte) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	if !key.Valid() || value == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO ledger_state (kind, id, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, id) DO NOTHING
	`

	tag, err := t.tx.Exec(ctx, query, string(key.Kind), key.ID, value)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}

// Put overwrites an existing cell and bumps its version.
func (t *stateTx) Put(ctx context.Context, key storage.Key, value []byte) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	if !key.Valid() || value == nil {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE ledger_state
		SET value = $3, version = version + 1, updated_at = NOW()
		WHERE kind = $1 AND id = $2
	`

	tag, err := t.tx.Exec(ctx, query, string(key.Kind), key.ID, value)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List returns cells of kind with the given ID prefix, ordered by ID.
func (t *stateTx) List(ctx context.Context, kind storage.Kind, prefix string) ([]storage.Entry, error) {
	query := `
		SELECT id, value
		FROM ledger_state
		WHERE kind = $1 AND left(id, length($2)) = $2
		ORDER BY id ASC` + t.lockClause()

	rows, err := t.tx.Query(ctx, query, string(kind), prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var entries []storage.Entry
	for rows.Next() {
		var (
			id    string
			value []byte
		)
		if err := rows.Scan(&id, &value); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", kind, err)
		}
		entries = append(entries, storage.Entry{Key: storage.Key{Kind: kind, ID: id}, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", kind, err)
	}

	return entries, nil
}
