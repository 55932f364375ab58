package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"compass/api/internal/docstore"
)

// Note is a free-text annotation a profile attaches to one company. Field
// names match the stored documents.
type Note struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
	Note      string `json:"note"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// GetNote returns the note for a (profile, company) pair, or nil if none
// exists. Absence is not an error.
func (s *Service) GetNote(ctx context.Context, profileID, companyID string) (*Note, error) {
	doc, found, err := s.findNote(ctx, profileID, companyID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	var note Note
	if err := doc.Decode(&note); err != nil {
		return nil, err
	}
	note.ID = doc.ID
	return &note, nil
}

// SaveNote upserts the note for a (profile, company) pair. Reports whether a
// new note was created. Create vs update is decided by a preceding read, so
// two concurrent first saves can both create; that race is accepted.
func (s *Service) SaveNote(ctx context.Context, profileID, companyID, text string) (created bool, err error) {
	notes := s.store.Collection(collNotes)
	now := s.now().UTC().Format(time.RFC3339)

	doc, found, err := s.findNote(ctx, profileID, companyID)
	if err != nil {
		return false, err
	}
	if found {
		err := notes.Update(ctx, doc.ID, map[string]any{
			"note":       text,
			"updated_at": now,
		})
		if err != nil {
			return false, fmt.Errorf("update note: %w", err)
		}
		return false, nil
	}

	fields, err := docstore.Fields(Note{
		UserID:    profileID,
		CompanyID: companyID,
		Note:      text,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return false, err
	}
	delete(fields, "id")
	if _, err := notes.Add(ctx, fields); err != nil {
		return false, fmt.Errorf("create note: %w", err)
	}
	return true, nil
}

// DeleteNote removes the note for a (profile, company) pair. The profile's
// derived note index is not touched; it is recomputed at next login sync.
func (s *Service) DeleteNote(ctx context.Context, profileID, companyID string) error {
	doc, found, err := s.findNote(ctx, profileID, companyID)
	if err != nil {
		return err
	}
	if !found {
		return domainError(http.StatusNotFound, catNotFound, "Note not found")
	}
	if err := s.store.Collection(collNotes).Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

// findNote returns the first stored note for the pair, by store order.
func (s *Service) findNote(ctx context.Context, profileID, companyID string) (docstore.Document, bool, error) {
	docs, err := s.store.Collection(collNotes).Query(ctx, []docstore.Where{
		{Field: "user_id", Value: profileID},
		{Field: "company_id", Value: companyID},
	}, 1)
	if err != nil {
		return docstore.Document{}, false, fmt.Errorf("lookup note: %w", err)
	}
	if len(docs) == 0 {
		return docstore.Document{}, false, nil
	}
	return docs[0], true, nil
}

// noteCompanyIDs is the read-time projection behind Profile.NoteCompanyIDs:
// the company ids of every note the profile owns, in store order.
func (s *Service) noteCompanyIDs(ctx context.Context, profileID string) ([]string, error) {
	docs, err := s.store.Collection(collNotes).Query(ctx, []docstore.Where{
		{Field: "user_id", Value: profileID},
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("scan notes: %w", err)
	}
	companyIDs := make([]string, 0, len(docs))
	for _, doc := range docs {
		if companyID, ok := doc.Fields["company_id"].(string); ok {
			companyIDs = append(companyIDs, companyID)
		}
	}
	return companyIDs, nil
}
