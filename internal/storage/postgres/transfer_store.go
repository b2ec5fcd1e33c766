package postgres

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/storage"
)

// TransferStore implements storage.TransferStore using PostgreSQL.
type TransferStore struct {
	pool *Pool
}

// NewTransferStore creates a new TransferStore.
func NewTransferStore(pool *Pool) *TransferStore {
	return &TransferStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TxTransferStore = (*TransferStore)(nil)

// execer is satisfied by both the pool and a pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Insert adds a new transfer. Returns ErrDuplicateKey if transfer_id exists.
// Amounts are stored as BIGINT; values above math.MaxInt64 are rejected.
func (s *TransferStore) Insert(ctx context.Context, t *domain.Transfer) error {
	return insertTransfer(ctx, s.pool, t)
}

// InsertTx adds a new transfer inside a StateStore update of the same
// database, so the row commits or rolls back with the state change.
// Transactions from other stores fall back to Insert.
func (s *TransferStore) InsertTx(ctx context.Context, tx storage.Tx, t *domain.Transfer) error {
	st, ok := tx.(*stateTx)
	if !ok {
		return s.Insert(ctx, t)
	}
	if st.readOnly {
		return storage.ErrReadOnly
	}
	return insertTransfer(ctx, st.tx, t)
}

func insertTransfer(ctx context.Context, db execer, t *domain.Transfer) error {
	if t == nil || t.TransferID == "" || t.Amount > math.MaxInt64 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO transfers (
			transfer_id, from_identity, to_identity, amount, reason, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := db.Exec(ctx, query,
		t.TransferID,
		t.From.String(),
		t.To.String(),
		int64(t.Amount),
		t.Reason,
		string(t.Status),
		t.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// GetByID retrieves a transfer by its ID. Returns ErrNotFound if not exists.
func (s *TransferStore) GetByID(ctx context.Context, transferID string) (*domain.Transfer, error) {
	query := `
		SELECT transfer_id, from_identity, to_identity, amount, reason, status, created_at
		FROM transfers
		WHERE transfer_id = $1
	`

	rows, err := s.pool.Query(ctx, query, transferID)
	if err != nil {
		return nil, fmt.Errorf("get transfer by id: %w", err)
	}
	defer rows.Close()

	transfers, err := scanTransfers(rows)
	if err != nil {
		return nil, err
	}
	if len(transfers) == 0 {
		return nil, storage.ErrNotFound
	}
	return transfers[0], nil
}

// GetByStatus retrieves transfers in a given status, ordered by created_at ASC.
func (s *TransferStore) GetByStatus(ctx context.Context, status domain.TransferStatus) ([]*domain.Transfer, error) {
	query := `
		SELECT transfer_id, from_identity, to_identity, amount, reason, status, created_at
		FROM transfers
		WHERE status = $1
		ORDER BY created_at ASC, transfer_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("get transfers by status: %w", err)
	}
	defer rows.Close()

	return scanTransfers(rows)
}

// UpdateStatus moves a transfer to a new status. Returns ErrNotFound if not exists.
func (s *TransferStore) UpdateStatus(ctx context.Context, transferID string, status domain.TransferStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE transfers SET status = $2 WHERE transfer_id = $1`, transferID, string(status))
	if err != nil {
		return fmt.Errorf("update transfer status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanTransfers scans multiple rows into a slice of Transfer.
func scanTransfers(rows pgx.Rows) ([]*domain.Transfer, error) {
	var transfers []*domain.Transfer

	for rows.Next() {
		var (
			t        domain.Transfer
			from, to string
			amount   int64
			status   string
		)

		err := rows.Scan(
			&t.TransferID,
			&from,
			&to,
			&amount,
			&t.Reason,
			&status,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transfer row: %w", err)
		}

		if t.From, err = domain.ParseIdentity(from); err != nil {
			return nil, fmt.Errorf("decode transfer sender: %w", err)
		}
		if t.To, err = domain.ParseIdentity(to); err != nil {
			return nil, fmt.Errorf("decode transfer recipient: %w", err)
		}
		t.Amount = uint64(amount)
		t.Status = domain.TransferStatus(status)

		transfers = append(transfers, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer rows: %w", err)
	}

	return transfers, nil
}
