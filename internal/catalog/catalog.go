// Package catalog serves the company directory: the static companies, tags,
// and boards collections, plus company search.
package catalog

import (
	"context"
	"fmt"

	"compass/api/internal/docstore"
)

const (
	CollectionCompanies = "companies"
	CollectionTags      = "tags"
	CollectionBoards    = "boards"
)

type Company struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Location      string   `json:"location"`
	TagIDs        []string `json:"tagIds"`
	CareerPageURL string   `json:"careerPageUrl,omitempty"`
}

type Tag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type Board struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Type int    `json:"type"`
}

// Data is the full directory payload returned by the data endpoint.
type Data struct {
	Companies []Company `json:"companies"`
	Tags      []Tag     `json:"tags"`
	Boards    []Board   `json:"boards"`
}

// Reader loads catalog collections from the document store.
type Reader struct {
	store docstore.Store
}

func NewReader(store docstore.Store) *Reader {
	return &Reader{store: store}
}

// Data reads all three catalog collections.
func (r *Reader) Data(ctx context.Context) (Data, error) {
	companies, err := r.Companies(ctx)
	if err != nil {
		return Data{}, err
	}

	tags := []Tag{}
	if err := r.scan(ctx, CollectionTags, func(doc docstore.Document) error {
		var tag Tag
		if err := doc.Decode(&tag); err != nil {
			return err
		}
		tag.ID = doc.ID
		tags = append(tags, tag)
		return nil
	}); err != nil {
		return Data{}, err
	}

	boards := []Board{}
	if err := r.scan(ctx, CollectionBoards, func(doc docstore.Document) error {
		var board Board
		if err := doc.Decode(&board); err != nil {
			return err
		}
		board.ID = doc.ID
		boards = append(boards, board)
		return nil
	}); err != nil {
		return Data{}, err
	}

	return Data{Companies: companies, Tags: tags, Boards: boards}, nil
}

// Companies reads the companies collection in store order.
func (r *Reader) Companies(ctx context.Context) ([]Company, error) {
	companies := []Company{}
	err := r.scan(ctx, CollectionCompanies, func(doc docstore.Document) error {
		var company Company
		if err := doc.Decode(&company); err != nil {
			return err
		}
		company.ID = doc.ID
		companies = append(companies, company)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return companies, nil
}

func (r *Reader) scan(ctx context.Context, collection string, visit func(docstore.Document) error) error {
	docs, err := r.store.Collection(collection).Query(ctx, nil, 0)
	if err != nil {
		return fmt.Errorf("scan %s: %w", collection, err)
	}
	for _, doc := range docs {
		if err := visit(doc); err != nil {
			return err
		}
	}
	return nil
}
