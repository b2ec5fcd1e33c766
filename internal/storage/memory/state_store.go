package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"dynamic-pricing-ledger/internal/storage"
)

// StateStore is an in-memory implementation of storage.StateStore.
// Update calls are fully serialized; writes are staged and applied on success.
type StateStore struct {
	mu   sync.RWMutex
	data map[storage.Key][]byte
}

// NewStateStore creates a new in-memory state store.
func NewStateStore() *StateStore {
	return &StateStore{
		data: make(map[storage.Key][]byte),
	}
}

// Update runs fn under the exclusive lock and commits staged writes if it returns nil.
func (s *StateStore) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &stateTx{store: s, staged: make(map[storage.Key][]byte)}
	if err := fn(tx); err != nil {
		return err
	}

	for key, value := range tx.staged {
		s.data[key] = value
	}
	return nil
}

// View runs fn under the shared lock.
func (s *StateStore) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&stateTx{store: s, readOnly: true})
}

// Len returns the number of committed cells.
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// stateTx reads through staged writes to committed data.
type stateTx struct {
	store    *StateStore
	staged   map[storage.Key][]byte
	readOnly bool
}

func (t *stateTx) lookup(key storage.Key) ([]byte, bool) {
	if v, ok := t.staged[key]; ok {
		return v, true
	}
	v, ok := t.store.data[key]
	return v, ok
}

// Get returns a copy of the cell at key.
func (t *stateTx) Get(_ context.Context, key storage.Key) ([]byte, error) {
	if !key.Valid() {
		return nil, storage.ErrInvalidInput
	}
	v, ok := t.lookup(key)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Insert stages a new cell. Returns ErrDuplicateKey if it exists.
func (t *stateTx) Insert(_ context.Context, key storage.Key, value []byte) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	if !key.Valid() || value == nil {
		return storage.ErrInvalidInput
	}
	if _, ok := t.lookup(key); ok {
		return storage.ErrDuplicateKey
	}
	t.staged[key] = append([]byte(nil), value...)
	return nil
}

// Put stages an overwrite of an existing cell. Returns ErrNotFound if it does not exist.
func (t *stateTx) Put(_ context.Context, key storage.Key, value []byte) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	if !key.Valid() || value == nil {
		return storage.ErrInvalidInput
	}
	if _, ok := t.lookup(key); !ok {
		return storage.ErrNotFound
	}
	t.staged[key] = append([]byte(nil), value...)
	return nil
}

// List returns cells of kind with the given ID prefix, ordered by ID.
func (t *stateTx) List(_ context.Context, kind storage.Kind, prefix string) ([]storage.Entry, error) {
	merged := make(map[storage.Key][]byte)
	for key, value := range t.store.data {
		if key.Kind == kind && strings.HasPrefix(key.ID, prefix) {
			merged[key] = value
		}
	}
	for key, value := range t.staged {
		if key.Kind == kind && strings.HasPrefix(key.ID, prefix) {
			merged[key] = value
		}
	}

	result := make([]storage.Entry, 0, len(merged))
	for key, value := range merged {
		result = append(result, storage.Entry{Key: key, Value: append([]byte(nil), value...)})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key.ID < result[j].Key.ID
	})
	return result, nil
}

var _ storage.StateStore = (*StateStore)(nil)
