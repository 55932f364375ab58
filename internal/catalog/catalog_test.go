package catalog

import (
	"context"
	"testing"

	"compass/api/internal/docstore"
)

func seedCatalog(t *testing.T) *docstore.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := docstore.NewMemoryStore()

	companies := []map[string]any{
		{"name": "Acme Robotics", "location": "Berlin", "tagIds": []string{"t-robotics"}, "careerPageUrl": "https://acme.example/careers"},
		{"name": "Blue Harbor Labs", "location": "Lisbon", "tagIds": []string{"t-biotech", "t-robotics"}},
		{"name": "Cobalt Shipping", "location": "Rotterdam", "tagIds": []string{"t-logistics"}},
	}
	for _, fields := range companies {
		if _, err := store.Collection(CollectionCompanies).Add(ctx, fields); err != nil {
			t.Fatalf("seed company: %v", err)
		}
	}
	if _, err := store.Collection(CollectionTags).Add(ctx, map[string]any{"label": "Robotics"}); err != nil {
		t.Fatalf("seed tag: %v", err)
	}
	if _, err := store.Collection(CollectionBoards).Add(ctx, map[string]any{"name": "Remote OK", "url": "https://remoteok.example", "type": 1}); err != nil {
		t.Fatalf("seed board: %v", err)
	}
	return store
}

func TestReaderData(t *testing.T) {
	store := seedCatalog(t)
	reader := NewReader(store)

	data, err := reader.Data(context.Background())
	if err != nil {
		t.Fatalf("Data failed: %v", err)
	}
	if len(data.Companies) != 3 {
		t.Errorf("expected 3 companies, got %d", len(data.Companies))
	}
	if len(data.Tags) != 1 || data.Tags[0].Label != "Robotics" {
		t.Errorf("unexpected tags %+v", data.Tags)
	}
	if len(data.Boards) != 1 || data.Boards[0].URL != "https://remoteok.example" {
		t.Errorf("unexpected boards %+v", data.Boards)
	}
	for _, company := range data.Companies {
		if company.ID == "" {
			t.Errorf("company %q missing store id", company.Name)
		}
	}
}

func TestReaderDataEmptyStore(t *testing.T) {
	reader := NewReader(docstore.NewMemoryStore())

	data, err := reader.Data(context.Background())
	if err != nil {
		t.Fatalf("Data failed: %v", err)
	}
	if data.Companies == nil || data.Tags == nil || data.Boards == nil {
		t.Fatalf("expected empty slices, not nil: %+v", data)
	}
}

func TestMemorySearchByText(t *testing.T) {
	store := seedCatalog(t)
	search := NewMemorySearch(NewReader(store))

	results, err := search.Search(context.Background(), Query{Text: "harbor"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Name != "Blue Harbor Labs" {
		t.Fatalf("expected Blue Harbor Labs, got %+v", results)
	}
}

func TestMemorySearchMatchesLocation(t *testing.T) {
	store := seedCatalog(t)
	search := NewMemorySearch(NewReader(store))

	results, err := search.Search(context.Background(), Query{Text: "rotterdam"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Name != "Cobalt Shipping" {
		t.Fatalf("expected Cobalt Shipping, got %+v", results)
	}
}

func TestMemorySearchByTag(t *testing.T) {
	store := seedCatalog(t)
	search := NewMemorySearch(NewReader(store))

	results, err := search.Search(context.Background(), Query{TagID: "t-robotics"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 robotics companies, got %+v", results)
	}
}

func TestMemorySearchLimit(t *testing.T) {
	store := seedCatalog(t)
	search := NewMemorySearch(NewReader(store))

	results, err := search.Search(context.Background(), Query{Limit: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(results))
	}
}

func TestSearcherFallsBackWithoutMeili(t *testing.T) {
	store := seedCatalog(t)
	reader := NewReader(store)
	searcher := NewSearcher(nil, NewMemorySearch(reader))

	results, err := searcher.Search(context.Background(), Query{Text: "acme"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Name != "Acme Robotics" {
		t.Fatalf("expected Acme Robotics via fallback, got %+v", results)
	}
}
