// Package docstore provides a collection-oriented document store with
// store-assigned identifiers and equality-filtered queries. The Postgres
// implementation backs production; the memory implementation backs tests.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("document not found")

// Where is an equality filter on a single document field. Filters in a
// query are combined with AND semantics.
type Where struct {
	Field string
	Value any
}

// Document is a stored record: a store-assigned identifier plus its fields
// as JSON-typed values.
type Document struct {
	ID     string
	Fields map[string]any
}

// Decode unmarshals the document fields into a typed target.
func (d Document) Decode(target any) error {
	raw, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// Fields converts a typed value into the map representation a Collection
// accepts, normalizing values through JSON.
func Fields(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("convert fields: %w", err)
	}
	return fields, nil
}

// Collection is a named set of documents.
type Collection interface {
	// Add persists a new document and returns its store-assigned id.
	Add(ctx context.Context, fields map[string]any) (string, error)
	Get(ctx context.Context, id string) (Document, error)
	// Update merges the given fields into the document, leaving other
	// fields untouched.
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
	// Query returns documents matching every filter, in insertion order.
	// limit <= 0 means no limit.
	Query(ctx context.Context, filters []Where, limit int) ([]Document, error)
}

// Store hands out collections by name.
type Store interface {
	Collection(name string) Collection
}
