package catalog

import (
	"context"
	"log"
)

// Query is a company search request.
type Query struct {
	Text  string
	TagID string
	Limit int
}

// Searcher is the facade that tries Meilisearch first and falls back to an
// in-memory scan of the catalog.
type Searcher struct {
	meili  *Meili
	memory *MemorySearch
}

// NewSearcher creates a company searcher. meili may be nil if Meilisearch
// is not configured.
func NewSearcher(meili *Meili, memory *MemorySearch) *Searcher {
	return &Searcher{meili: meili, memory: memory}
}

// Search tries Meilisearch if healthy, otherwise scans the catalog.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Company, error) {
	if s.meili != nil && s.meili.Healthy() {
		results, err := s.meili.Search(q)
		if err == nil {
			return results, nil
		}
		log.Printf("catalog: meilisearch error, falling back to scan: %v", err)
	}
	return s.memory.Search(ctx, q)
}

// Reindex pushes the whole companies collection to Meilisearch.
// Called during bootstrap when Meilisearch is available.
func (s *Searcher) Reindex(ctx context.Context, reader *Reader) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	companies, err := reader.Companies(ctx)
	if err != nil {
		log.Printf("catalog: reindex load failed: %v", err)
		return
	}
	if len(companies) == 0 {
		return
	}
	if err := s.meili.IndexCompanies(companies); err != nil {
		log.Printf("catalog: reindex companies: %v", err)
	}
}
