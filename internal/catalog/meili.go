package catalog

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxCompanies = "compass_companies"

// Meili indexes and searches companies via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the companies index.
// The client starts unhealthy if the initial connection fails and recovers
// via the background health loop.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	// Initial health check
	if _, err := client.Health(); err != nil {
		log.Printf("catalog: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxCompanies,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("catalog: create index %s (may already exist): %v", idxCompanies, err)
	}

	index := m.client.Index(idxCompanies)
	filterable := []interface{}{"tagIds"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("catalog: update filterable attrs for %s: %v", idxCompanies, err)
	}
	searchable := []string{"name", "location"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("catalog: update searchable attrs for %s: %v", idxCompanies, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("catalog: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the companies index.
func (m *Meili) Search(q Query) ([]Company, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	sr := &meili.SearchRequest{
		Query: q.Text,
		Limit: limit,
	}
	if q.TagID != "" {
		sr.Filter = []string{fmt.Sprintf("tagIds = %q", q.TagID)}
	}

	resp, err := m.client.Index(idxCompanies).Search(q.Text, sr)
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	companies := make([]Company, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		companies = append(companies, hitToCompany(hit))
	}
	return companies, nil
}

func hitToCompany(hit meili.Hit) Company {
	company := Company{
		ID:            decodeString(hit, "id"),
		Name:          decodeString(hit, "name"),
		Location:      decodeString(hit, "location"),
		CareerPageURL: decodeString(hit, "careerPageUrl"),
	}
	if raw, ok := hit["tagIds"]; ok {
		var tagIDs []string
		if err := json.Unmarshal(raw, &tagIDs); err == nil {
			company.TagIDs = tagIDs
		}
	}
	return company
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// IndexCompanies bulk-indexes companies.
func (m *Meili) IndexCompanies(companies []Company) error {
	if len(companies) == 0 {
		return nil
	}
	_, err := m.client.Index(idxCompanies).AddDocuments(companies, nil)
	return err
}
