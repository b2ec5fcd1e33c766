// Package settlement records native-currency transfers produced by ledger
// operations.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/observability"
	"dynamic-pricing-ledger/internal/storage"
)

// ErrInvalidTransfer is returned for zero amounts or identical endpoints.
var ErrInvalidTransfer = errors.New("settlement: invalid transfer")

// Outbox queues transfers as pending rows for an external settler.
type Outbox struct {
	store storage.TransferStore
	now   func() time.Time
}

// NewOutbox creates an Outbox over store.
func NewOutbox(store storage.TransferStore) *Outbox {
	return &Outbox{store: store, now: time.Now}
}

// Transfer records a pending transfer.
func (o *Outbox) Transfer(ctx context.Context, from, to domain.Identity, amount uint64, reason string) error {
	t, err := o.pending(from, to, amount, reason)
	if err != nil {
		return err
	}
	if err := o.store.Insert(ctx, t); err != nil {
		return fmt.Errorf("queue transfer: %w", err)
	}
	observability.RecordTransfer(reason)
	return nil
}

// TransferTx records a pending transfer as part of the state update tx. When
// the store cannot join tx the row is written as in Transfer.
func (o *Outbox) TransferTx(ctx context.Context, tx storage.Tx, from, to domain.Identity, amount uint64, reason string) error {
	txStore, ok := o.store.(storage.TxTransferStore)
	if !ok {
		return o.Transfer(ctx, from, to, amount, reason)
	}
	t, err := o.pending(from, to, amount, reason)
	if err != nil {
		return err
	}
	if err := txStore.InsertTx(ctx, tx, t); err != nil {
		return fmt.Errorf("queue transfer: %w", err)
	}
	observability.RecordTransfer(reason)
	return nil
}

func (o *Outbox) pending(from, to domain.Identity, amount uint64, reason string) (*domain.Transfer, error) {
	if amount == 0 || from == to {
		return nil, ErrInvalidTransfer
	}
	return &domain.Transfer{
		TransferID: uuid.NewString(),
		From:       from,
		To:         to,
		Amount:     amount,
		Reason:     reason,
		Status:     domain.TransferPending,
		CreatedAt:  o.now().Unix(),
	}, nil
}

// Pending returns transfers awaiting settlement, oldest first.
func (o *Outbox) Pending(ctx context.Context) ([]*domain.Transfer, error) {
	return o.store.GetByStatus(ctx, domain.TransferPending)
}

// Get returns a transfer by ID.
func (o *Outbox) Get(ctx context.Context, transferID string) (*domain.Transfer, error) {
	if _, err := uuid.Parse(transferID); err != nil {
		return nil, storage.ErrInvalidInput
	}
	return o.store.GetByID(ctx, transferID)
}

// Resolve marks a pending transfer settled or failed.
func (o *Outbox) Resolve(ctx context.Context, transferID string, settled bool) (*domain.Transfer, error) {
	t, err := o.Get(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.TransferPending {
		return nil, storage.ErrConflict
	}

	t.Status = domain.TransferFailed
	if settled {
		t.Status = domain.TransferSettled
	}
	if err := o.store.UpdateStatus(ctx, transferID, t.Status); err != nil {
		return nil, err
	}
	return t, nil
}
