package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Load reads and decodes the cell at key. Returns ErrNotFound if it does not exist.
func Load[T any](ctx context.Context, tx Tx, key Key) (*T, error) {
	raw, err := tx.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &v, nil
}

// Create encodes v and inserts it at key. Returns ErrDuplicateKey if the cell exists.
func Create[T any](ctx context.Context, tx Tx, key Key, v *T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.Insert(ctx, key, raw)
}

// Save encodes v and overwrites the existing cell at key. Returns ErrNotFound if it does not exist.
func Save[T any](ctx context.Context, tx Tx, key Key, v *T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.Put(ctx, key, raw)
}

// LoadAll decodes every cell of kind whose ID starts with prefix, ordered by ID.
func LoadAll[T any](ctx context.Context, tx Tx, kind Kind, prefix string) ([]*T, error) {
	entries, err := tx.List(ctx, kind, prefix)
	if err != nil {
		return nil, err
	}
	result := make([]*T, 0, len(entries))
	for _, e := range entries {
		var v T
		if err := json.Unmarshal(e.Value, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		result = append(result, &v)
	}
	return result, nil
}
