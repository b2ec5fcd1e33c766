package clickhouse

import (
	"context"
	"fmt"
	"time"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/observability"
	"dynamic-pricing-ledger/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
// MergeTree does not enforce uniqueness, so duplicates are checked before insert.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// InsertBulk adds multiple events. Fails entire batch on duplicate event_id.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" || e.Asset == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}
	}

	// Check for duplicates against existing rows
	for _, e := range events {
		exists, err := s.exists(ctx, e.EventID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ledger_events (
			event_id, asset, event_type, actor, subject, amount, price, detail, timestamp, sequence
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		subject := ""
		if !e.Subject.IsZero() {
			subject = e.Subject.String()
		}
		err = batch.Append(
			e.EventID, e.Asset, string(e.Type), e.Actor.String(), subject,
			e.Amount, e.Price, e.Detail, e.Timestamp, e.Sequence,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	start := time.Now()
	err = batch.Send()
	observability.RecordDBQuery("clickhouse", "insert_events", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByAsset retrieves all events of an asset, ordered by (timestamp, sequence) ASC.
func (s *EventStore) GetByAsset(ctx context.Context, asset string) ([]*domain.LedgerEvent, error) {
	query := `
		SELECT event_id, asset, event_type, actor, subject, amount, price, detail, timestamp, sequence
		FROM ledger_events
		WHERE asset = ?
		ORDER BY timestamp ASC, sequence ASC
	`

	rows, err := s.conn.Query(ctx, query, asset)
	if err != nil {
		return nil, fmt.Errorf("query by asset: %w", err)
	}
	defer rows.Close()

	return scanLedgerEvents(rows)
}

// GetByTimeRange retrieves events of an asset within [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(ctx context.Context, asset string, start, end int64) ([]*domain.LedgerEvent, error) {
	query := `
		SELECT event_id, asset, event_type, actor, subject, amount, price, detail, timestamp, sequence
		FROM ledger_events
		WHERE asset = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, sequence ASC
	`

	rows, err := s.conn.Query(ctx, query, asset, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanLedgerEvents(rows)
}

// exists checks if an event with the given ID exists.
func (s *EventStore) exists(ctx context.Context, eventID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM ledger_events WHERE event_id = ?`, eventID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanLedgerEvents scans multiple rows.
func scanLedgerEvents(rows chRows) ([]*domain.LedgerEvent, error) {
	var events []*domain.LedgerEvent

	for rows.Next() {
		var (
			e                      domain.LedgerEvent
			eventType, actor, subj string
		)

		err := rows.Scan(
			&e.EventID, &e.Asset, &eventType, &actor, &subj,
			&e.Amount, &e.Price, &e.Detail, &e.Timestamp, &e.Sequence,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger event row: %w", err)
		}

		e.Type = domain.EventType(eventType)
		if e.Actor, err = domain.ParseIdentity(actor); err != nil {
			return nil, fmt.Errorf("decode event actor: %w", err)
		}
		if subj != "" {
			if e.Subject, err = domain.ParseIdentity(subj); err != nil {
				return nil, fmt.Errorf("decode event subject: %w", err)
			}
		}

		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger event rows: %w", err)
	}

	return events, nil
}
