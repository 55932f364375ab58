package docstore

import (
	"context"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store with the same observable behavior as
// the Postgres implementation: JSON-normalized field values, shallow-merge
// updates, and insertion-order scans.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*memCollection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: map[string]*memCollection{}}
}

func (s *MemoryStore) Collection(name string) Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[name]
	if !ok {
		coll = &memCollection{docs: map[string]map[string]any{}}
		s.collections[name] = coll
	}
	return coll
}

type memCollection struct {
	mu    sync.Mutex
	order []string
	docs  map[string]map[string]any
}

func (c *memCollection) Add(_ context.Context, fields map[string]any) (string, error) {
	normalized, err := normalize(fields)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.NewString()
	c.docs[id] = normalized
	c.order = append(c.order, id)
	return id, nil
}

func (c *memCollection) Get(_ context.Context, id string) (Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fields, ok := c.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Fields: copyFields(fields)}, nil
}

func (c *memCollection) Update(_ context.Context, id string, fields map[string]any) error {
	normalized, err := normalize(fields)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.docs[id]
	if !ok {
		return ErrNotFound
	}
	for key, value := range normalized {
		existing[key] = value
	}
	return nil
}

func (c *memCollection) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		return ErrNotFound
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (c *memCollection) Query(_ context.Context, filters []Where, limit int) ([]Document, error) {
	normalized := make([]Where, 0, len(filters))
	for _, f := range filters {
		value, err := normalizeValue(f.Value)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, Where{Field: f.Field, Value: value})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var docs []Document
	for _, id := range c.order {
		fields := c.docs[id]
		if !matches(fields, normalized) {
			continue
		}
		docs = append(docs, Document{ID: id, Fields: copyFields(fields)})
		if limit > 0 && len(docs) == limit {
			break
		}
	}
	return docs, nil
}

func matches(fields map[string]any, filters []Where) bool {
	for _, f := range filters {
		value, ok := fields[f.Field]
		if !ok || !reflect.DeepEqual(value, f.Value) {
			return false
		}
	}
	return true
}

// normalize passes fields through the JSON bridge so stored values carry
// the same types Postgres JSONB round-trips produce.
func normalize(fields map[string]any) (map[string]any, error) {
	return Fields(fields)
}

func normalizeValue(value any) (any, error) {
	wrapped, err := Fields(map[string]any{"v": value})
	if err != nil {
		return nil, err
	}
	return wrapped["v"], nil
}

func copyFields(fields map[string]any) map[string]any {
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}
