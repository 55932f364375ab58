package app

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"compass/api/internal/auth"
	"compass/api/internal/catalog"
	"compass/api/internal/config"
	"compass/api/internal/docstore"
)

const (
	collUsers = "users"
	collNotes = "user_company_note"
)

// Profile is the durable per-user record synchronized from identity claims.
type Profile struct {
	ID                  string   `json:"id"`
	AuthUID             string   `json:"authUid"`
	Email               *string  `json:"email"`
	DisplayName         *string  `json:"displayName"`
	CreatedAt           string   `json:"createdAt"`
	LastLogin           string   `json:"lastLogin"`
	BookmarkedCompanies []string `json:"bookmarkedCompanies"`
	NoteCompanyIDs      []string `json:"noteCompanyIds"`
}

// profileFields is the stored shape of a profile document, without the
// store-assigned id or the derived note index.
type profileFields struct {
	AuthUID             string   `json:"authUid"`
	Email               *string  `json:"email"`
	DisplayName         *string  `json:"displayName"`
	CreatedAt           string   `json:"createdAt"`
	LastLogin           string   `json:"lastLogin"`
	BookmarkedCompanies []string `json:"bookmarkedCompanies"`
}

type Service struct {
	cfg      config.Config
	verifier auth.TokenVerifier
	store    docstore.Store
	catalog  *catalog.Reader
	searcher *catalog.Searcher
	now      func() time.Time
}

func New(cfg config.Config, verifier auth.TokenVerifier, store docstore.Store, reader *catalog.Reader, searcher *catalog.Searcher) *Service {
	return &Service{
		cfg:      cfg,
		verifier: verifier,
		store:    store,
		catalog:  reader,
		searcher: searcher,
		now:      time.Now,
	}
}

// Bootstrap seeds the company search index. Safe to call on every start.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.searcher != nil {
		s.searcher.Reindex(ctx, s.catalog)
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Identify verifies a bearer token and returns the identity it asserts.
func (s *Service) Identify(ctx context.Context, token string) (auth.Identity, error) {
	return s.verifier.Verify(ctx, token)
}

// SyncLogin finds or creates the profile for the asserted subject, refreshes
// its mutable claims, and returns the full record with a freshly computed
// note index. Claims that are absent leave the stored values untouched.
func (s *Service) SyncLogin(ctx context.Context, ident auth.Identity) (Profile, error) {
	users := s.store.Collection(collUsers)
	docs, err := users.Query(ctx, []docstore.Where{{Field: "authUid", Value: ident.SubjectID}}, 1)
	if err != nil {
		return Profile{}, fmt.Errorf("lookup profile: %w", err)
	}
	now := s.now().UTC().Format(time.RFC3339)

	if len(docs) == 0 {
		// First login: create the profile. No notes can exist yet.
		stored := profileFields{
			AuthUID:             ident.SubjectID,
			Email:               optional(ident.Email),
			DisplayName:         optional(ident.Name),
			CreatedAt:           now,
			LastLogin:           now,
			BookmarkedCompanies: []string{},
		}
		fields, err := docstore.Fields(stored)
		if err != nil {
			return Profile{}, err
		}
		id, err := users.Add(ctx, fields)
		if err != nil {
			return Profile{}, fmt.Errorf("create profile: %w", err)
		}
		return profileFromStored(id, stored, []string{}), nil
	}

	doc := docs[0]
	var stored profileFields
	if err := doc.Decode(&stored); err != nil {
		return Profile{}, err
	}

	update := map[string]any{
		"lastLogin":   now,
		"email":       coalesce(ident.Email, stored.Email),
		"displayName": coalesce(ident.Name, stored.DisplayName),
	}
	// Backfill for legacy records written before bookmarks existed.
	if _, ok := doc.Fields["bookmarkedCompanies"]; !ok || doc.Fields["bookmarkedCompanies"] == nil {
		update["bookmarkedCompanies"] = []string{}
		stored.BookmarkedCompanies = []string{}
	}
	if err := users.Update(ctx, doc.ID, update); err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}

	noteCompanyIDs, err := s.noteCompanyIDs(ctx, doc.ID)
	if err != nil {
		return Profile{}, err
	}

	stored.LastLogin = now
	stored.Email = update["email"].(*string)
	stored.DisplayName = update["displayName"].(*string)
	return profileFromStored(doc.ID, stored, noteCompanyIDs), nil
}

// ResolveProfileID maps an external subject identifier to the store-assigned
// profile id. Every per-user operation is keyed by the profile id, not the
// subject id.
func (s *Service) ResolveProfileID(ctx context.Context, subjectID string) (string, error) {
	docs, err := s.store.Collection(collUsers).Query(ctx, []docstore.Where{{Field: "authUid", Value: subjectID}}, 1)
	if err != nil {
		return "", fmt.Errorf("lookup profile: %w", err)
	}
	if len(docs) == 0 {
		return "", domainError(http.StatusNotFound, catNotFound, "User profile not found")
	}
	return docs[0].ID, nil
}

// SetBookmark sets the bookmark state for a company on a profile and returns
// the resulting sequence. Adding is append-if-absent; removing drops every
// occurrence. The write happens even when the requested state already holds.
func (s *Service) SetBookmark(ctx context.Context, profileID, companyID string, desired bool) ([]string, error) {
	users := s.store.Collection(collUsers)
	doc, err := users.Get(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var stored profileFields
	if err := doc.Decode(&stored); err != nil {
		return nil, err
	}

	list := stored.BookmarkedCompanies
	if list == nil {
		list = []string{}
	}
	if desired {
		if !slices.Contains(list, companyID) {
			list = append(list, companyID)
		}
	} else {
		kept := make([]string, 0, len(list))
		for _, id := range list {
			if id != companyID {
				kept = append(kept, id)
			}
		}
		list = kept
	}

	if err := users.Update(ctx, profileID, map[string]any{"bookmarkedCompanies": list}); err != nil {
		return nil, fmt.Errorf("write bookmarks: %w", err)
	}
	return list, nil
}

// Data returns the full company directory payload.
func (s *Service) Data(ctx context.Context) (catalog.Data, error) {
	return s.catalog.Data(ctx)
}

// SearchCompanies searches the company directory.
func (s *Service) SearchCompanies(ctx context.Context, q catalog.Query) ([]catalog.Company, error) {
	return s.searcher.Search(ctx, q)
}

func profileFromStored(id string, stored profileFields, noteCompanyIDs []string) Profile {
	bookmarks := stored.BookmarkedCompanies
	if bookmarks == nil {
		bookmarks = []string{}
	}
	return Profile{
		ID:                  id,
		AuthUID:             stored.AuthUID,
		Email:               stored.Email,
		DisplayName:         stored.DisplayName,
		CreatedAt:           stored.CreatedAt,
		LastLogin:           stored.LastLogin,
		BookmarkedCompanies: bookmarks,
		NoteCompanyIDs:      noteCompanyIDs,
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// coalesce prefers the asserted claim, falling back to the stored value.
func coalesce(claim string, stored *string) *string {
	if claim != "" {
		return &claim
	}
	return stored
}
