package memory

import (
	"context"
	"sort"
	"sync"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.LedgerEvent // keyed by event_id
}

// NewEventStore creates a new in-memory ledger event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make(map[string]*domain.LedgerEvent),
	}
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(_ context.Context, events []*domain.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(events))

	// First pass: check for duplicates (existing + intra-batch)
	for _, e := range events {
		if e == nil || e.EventID == "" || e.Asset == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[e.EventID] = struct{}{}
	}

	// Second pass: insert all
	for _, e := range events {
		eventCopy := *e
		s.data[e.EventID] = &eventCopy
	}

	return nil
}

// GetByAsset retrieves all events of an asset, ordered by (timestamp, sequence) ASC.
func (s *EventStore) GetByAsset(_ context.Context, asset string) ([]*domain.LedgerEvent, error) {
	return s.filter(func(e *domain.LedgerEvent) bool {
		return e.Asset == asset
	}), nil
}

// GetByTimeRange retrieves events of an asset within [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(_ context.Context, asset string, start, end int64) ([]*domain.LedgerEvent, error) {
	return s.filter(func(e *domain.LedgerEvent) bool {
		return e.Asset == asset && e.Timestamp >= start && e.Timestamp <= end
	}), nil
}

func (s *EventStore) filter(match func(*domain.LedgerEvent) bool) []*domain.LedgerEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LedgerEvent
	for _, e := range s.data {
		if match(e) {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].Sequence < result[j].Sequence
	})

	return result
}

var _ storage.EventStore = (*EventStore)(nil)
