package storage

import (
	"context"

	"dynamic-pricing-ledger/internal/domain"
)

// Entry is a raw state cell returned by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Tx is a unit of work over state cells. Writes become visible only when the
// enclosing Update returns nil.
type Tx interface {
	// Get returns the encoded cell at key. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Insert creates a cell. Returns ErrDuplicateKey if it already exists.
	Insert(ctx context.Context, key Key, value []byte) error

	// Put overwrites an existing cell. Returns ErrNotFound if it does not exist.
	Put(ctx context.Context, key Key, value []byte) error

	// List returns all cells of kind whose ID starts with prefix, ordered by ID.
	List(ctx context.Context, kind Kind, prefix string) ([]Entry, error)
}

// StateStore provides exclusive, all-or-nothing access to ledger state cells.
type StateStore interface {
	// Update runs fn with exclusive access to every cell it reads or writes.
	// If fn returns an error no write is committed.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn against a consistent snapshot. Writes fail with ErrReadOnly.
	View(ctx context.Context, fn func(tx Tx) error) error
}

// EventStore provides access to the append-only ledger_events journal.
type EventStore interface {
	// InsertBulk appends events atomically. Fails entire batch on duplicate event_id.
	InsertBulk(ctx context.Context, events []*domain.LedgerEvent) error

	// GetByAsset retrieves all events of an asset, ordered by (timestamp, sequence) ASC.
	GetByAsset(ctx context.Context, asset string) ([]*domain.LedgerEvent, error)

	// GetByTimeRange retrieves events of an asset within [start, end] (inclusive, unix seconds).
	GetByTimeRange(ctx context.Context, asset string, start, end int64) ([]*domain.LedgerEvent, error)
}

// TransferStore provides access to the transfers settlement outbox.
type TransferStore interface {
	// Insert adds a new transfer. Returns ErrDuplicateKey if transfer_id exists.
	Insert(ctx context.Context, t *domain.Transfer) error

	// GetByID retrieves a transfer by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, transferID string) (*domain.Transfer, error)

	// GetByStatus retrieves transfers in a given status, ordered by created_at ASC.
	GetByStatus(ctx context.Context, status domain.TransferStatus) ([]*domain.Transfer, error)

	// UpdateStatus moves a transfer to a new status. Returns ErrNotFound if not exists.
	UpdateStatus(ctx context.Context, transferID string, status domain.TransferStatus) error
}

// TxTransferStore is a TransferStore that can also insert inside a state
// update, so the transfer commits or rolls back with it.
type TxTransferStore interface {
	TransferStore

	// InsertTx adds a new transfer through tx. Returns ErrDuplicateKey if transfer_id exists.
	InsertTx(ctx context.Context, tx Tx, t *domain.Transfer) error
}
