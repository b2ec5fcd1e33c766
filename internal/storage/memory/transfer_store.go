package memory

import (
	"context"
	"sort"
	"sync"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/storage"
)

// TransferStore is an in-memory implementation of storage.TransferStore.
type TransferStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Transfer // keyed by transfer_id
}

// NewTransferStore creates a new in-memory transfer store.
func NewTransferStore() *TransferStore {
	return &TransferStore{
		data: make(map[string]*domain.Transfer),
	}
}

// Insert adds a new transfer. Returns ErrDuplicateKey if transfer_id exists.
func (s *TransferStore) Insert(_ context.Context, t *domain.Transfer) error {
	if t == nil || t.TransferID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TransferID]; exists {
		return storage.ErrDuplicateKey
	}

	transferCopy := *t
	s.data[t.TransferID] = &transferCopy
	return nil
}

// GetByID retrieves a transfer by its ID. Returns ErrNotFound if not exists.
func (s *TransferStore) GetByID(_ context.Context, transferID string) (*domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data[transferID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	transferCopy := *t
	return &transferCopy, nil
}

// GetByStatus retrieves transfers in a given status, ordered by created_at ASC.
func (s *TransferStore) GetByStatus(_ context.Context, status domain.TransferStatus) ([]*domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transfer
	for _, t := range s.data {
		if t.Status == status {
			transferCopy := *t
			result = append(result, &transferCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].TransferID < result[j].TransferID
	})

	return result, nil
}

// UpdateStatus moves a transfer to a new status. Returns ErrNotFound if not exists.
func (s *TransferStore) UpdateStatus(_ context.Context, transferID string, status domain.TransferStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data[transferID]
	if !ok {
		return storage.ErrNotFound
	}
	t.Status = status
	return nil
}

var _ storage.TransferStore = (*TransferStore)(nil)
