package catalog

import (
	"context"
	"slices"
	"strings"
)

// MemorySearch filters companies with a catalog scan. It is the fallback
// when Meilisearch is unavailable and the default in tests.
type MemorySearch struct {
	reader *Reader
}

func NewMemorySearch(reader *Reader) *MemorySearch {
	return &MemorySearch{reader: reader}
}

// Search matches on a case-insensitive substring of name or location and
// an optional tag filter, in store order.
func (s *MemorySearch) Search(ctx context.Context, q Query) ([]Company, error) {
	companies, err := s.reader.Companies(ctx)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit == 0 {
		limit = 20
	}
	needle := strings.ToLower(strings.TrimSpace(q.Text))

	matched := []Company{}
	for _, company := range companies {
		if q.TagID != "" && !slices.Contains(company.TagIDs, q.TagID) {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(company.Name), needle) &&
			!strings.Contains(strings.ToLower(company.Location), needle) {
			continue
		}
		matched = append(matched, company)
		if len(matched) == limit {
			break
		}
	}
	return matched, nil
}
