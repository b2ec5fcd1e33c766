package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/storage"
)

func TestTransferStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewTransferStore()

	late := &domain.Transfer{TransferID: "t2", Amount: 5, Reason: "buy", Status: domain.TransferPending, CreatedAt: 200}
	early := &domain.Transfer{TransferID: "t1", Amount: 9, Reason: "reward_claim", Status: domain.TransferPending, CreatedAt: 100}
	require.NoError(t, store.Insert(ctx, late))
	require.NoError(t, store.Insert(ctx, early))
	assert.ErrorIs(t, store.Insert(ctx, early), storage.ErrDuplicateKey)
	assert.ErrorIs(t, store.Insert(ctx, &domain.Transfer{}), storage.ErrInvalidInput)

	pending, err := store.GetByStatus(ctx, domain.TransferPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "t1", pending[0].TransferID)

	require.NoError(t, store.UpdateStatus(ctx, "t1", domain.TransferFailed))
	got, err := store.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferFailed, got.Status)

	assert.ErrorIs(t, store.UpdateStatus(ctx, "missing", domain.TransferSettled), storage.ErrNotFound)
	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
