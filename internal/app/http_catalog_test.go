package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"compass/api/internal/catalog"
	"compass/api/internal/docstore"
)

func seedDirectory(t *testing.T, store *docstore.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	companies := []map[string]any{
		{"name": "Acme Robotics", "location": "Berlin", "tagIds": []string{"t-robotics"}},
		{"name": "Blue Harbor Labs", "location": "Lisbon", "tagIds": []string{"t-biotech"}},
	}
	for _, fields := range companies {
		if _, err := store.Collection(catalog.CollectionCompanies).Add(ctx, fields); err != nil {
			t.Fatalf("seed company: %v", err)
		}
	}
	if _, err := store.Collection(catalog.CollectionTags).Add(ctx, map[string]any{"label": "Robotics"}); err != nil {
		t.Fatalf("seed tag: %v", err)
	}
	if _, err := store.Collection(catalog.CollectionBoards).Add(ctx, map[string]any{"name": "Remote OK", "url": "https://remoteok.example", "type": 1}); err != nil {
		t.Fatalf("seed board: %v", err)
	}
}

func TestDataEndpointIsPublic(t *testing.T) {
	server, store := newTestServer(t)
	seedDirectory(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	rr, payload := doJSON(t, server, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	companies, ok := payload["companies"].([]any)
	if !ok || len(companies) != 2 {
		t.Errorf("expected 2 companies, got %v", payload["companies"])
	}
	tags, ok := payload["tags"].([]any)
	if !ok || len(tags) != 1 {
		t.Errorf("expected 1 tag, got %v", payload["tags"])
	}
	boards, ok := payload["boards"].([]any)
	if !ok || len(boards) != 1 {
		t.Errorf("expected 1 board, got %v", payload["boards"])
	}
}

func TestDataEndpointEmptyDirectory(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	rr, payload := doJSON(t, server, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if _, ok := payload["companies"].([]any); !ok {
		t.Errorf("expected empty array, got %v", payload["companies"])
	}
}

func TestSearchEndpoint(t *testing.T) {
	server, store := newTestServer(t)
	seedDirectory(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=harbor", nil)
	rr, payload := doJSON(t, server, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	companies, ok := payload["companies"].([]any)
	if !ok || len(companies) != 1 {
		t.Fatalf("expected 1 match, got %v", payload["companies"])
	}
	match := companies[0].(map[string]any)
	if match["name"] != "Blue Harbor Labs" {
		t.Errorf("expected Blue Harbor Labs, got %v", match["name"])
	}
}

func TestSearchEndpointByTag(t *testing.T) {
	server, store := newTestServer(t)
	seedDirectory(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/search?tag=t-robotics", nil)
	rr, payload := doJSON(t, server, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	companies, _ := payload["companies"].([]any)
	if len(companies) != 1 {
		t.Fatalf("expected 1 robotics company, got %v", payload["companies"])
	}
}

func TestSearchEndpointRejectsBadLimit(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/search?limit=abc", nil)
	rr, payload := doJSON(t, server, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if payload["error"] != "Bad Request" {
		t.Errorf("expected Bad Request category, got %v", payload["error"])
	}
}
