package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"compass/api/internal/auth"
	"compass/api/internal/catalog"
	"compass/api/internal/docstore"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	// Preflight: CORS headers are already set by the middleware.
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.URL.Path {
	case "/api/health":
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeError(w, http.StatusMethodNotAllowed, catMethodNotAllowed, "Method Not Allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case "/api/ready":
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeError(w, http.StatusMethodNotAllowed, catMethodNotAllowed, "Method Not Allowed")
			return
		}
		s.handleReady(w, r)

	case "/api/data":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, catMethodNotAllowed, "Method Not Allowed")
			return
		}
		s.handleData(w, r)

	case "/api/search":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, catMethodNotAllowed, "Method Not Allowed")
			return
		}
		s.handleSearch(w, r)

	case "/api/sync-user":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, catMethodNotAllowed, "Method Not Allowed")
			return
		}
		s.handleSyncUser(w, r)

	case "/api/toggle-bookmark":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, catMethodNotAllowed, "Method Not Allowed")
			return
		}
		s.handleToggleBookmark(w, r)

	case "/api/get-note":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, catMethodNotAllowed, "Method Not Allowed")
			return
		}
		s.handleGetNote(w, r)

	case "/api/save-note":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, catMethodNotAllowed, "Method Not Allowed")
			return
		}
		s.handleSaveNote(w, r)

	case "/api/delete-note":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, catMethodNotAllowed, "Method Not Allowed")
			return
		}
		s.handleDeleteNote(w, r)

	default:
		writeError(w, http.StatusNotFound, catNotFound, "Not Found")
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleData(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.Data(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := catalog.Query{
		Text:  strings.TrimSpace(r.URL.Query().Get("q")),
		TagID: strings.TrimSpace(r.URL.Query().Get("tag")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, catBadRequest, "limit must be a positive integer")
			return
		}
		q.Limit = parsed
	}

	companies, err := s.service.SearchCompanies(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"companies": companies})
}

func (s *HTTPServer) handleSyncUser(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	profile, err := s.service.SyncLogin(r.Context(), ident)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *HTTPServer) handleToggleBookmark(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}

	var body struct {
		CompanyID  string `json:"companyId"`
		Bookmarked *bool  `json:"bookmarked"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, catBadRequest, err.Error())
		return
	}
	if body.CompanyID == "" {
		writeError(w, http.StatusBadRequest, catBadRequest, "companyId is required and must be a string")
		return
	}
	if body.Bookmarked == nil {
		writeError(w, http.StatusBadRequest, catBadRequest, "bookmarked is required and must be a boolean")
		return
	}

	profileID, err := s.service.ResolveProfileID(r.Context(), ident.SubjectID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	bookmarks, err := s.service.SetBookmark(r.Context(), profileID, body.CompanyID, *body.Bookmarked)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookmarkedCompanies": bookmarks})
}

func (s *HTTPServer) handleGetNote(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}

	companyID := strings.TrimSpace(r.URL.Query().Get("companyId"))
	if companyID == "" {
		writeError(w, http.StatusBadRequest, catBadRequest, "companyId is required and must be a string")
		return
	}

	profileID, err := s.service.ResolveProfileID(r.Context(), ident.SubjectID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	note, err := s.service.GetNote(r.Context(), profileID, companyID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if note == nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": note})
}

func (s *HTTPServer) handleSaveNote(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}

	var body struct {
		CompanyID string `json:"companyId"`
		Note      string `json:"note"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, catBadRequest, err.Error())
		return
	}
	if body.CompanyID == "" {
		writeError(w, http.StatusBadRequest, catBadRequest, "companyId is required and must be a string")
		return
	}
	if body.Note == "" {
		writeError(w, http.StatusBadRequest, catBadRequest, "note is required and must be a string")
		return
	}

	profileID, err := s.service.ResolveProfileID(r.Context(), ident.SubjectID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	created, err := s.service.SaveNote(r.Context(), profileID, body.CompanyID, body.Note)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	message := "Note updated successfully"
	if created {
		message = "Note saved successfully"
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "created": created, "message": message})
}

func (s *HTTPServer) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}

	var body struct {
		CompanyID string `json:"companyId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, catBadRequest, err.Error())
		return
	}
	if body.CompanyID == "" {
		writeError(w, http.StatusBadRequest, catBadRequest, "companyId is required and must be a string")
		return
	}

	profileID, err := s.service.ResolveProfileID(r.Context(), ident.SubjectID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.service.DeleteNote(r.Context(), profileID, body.CompanyID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Note deleted successfully"})
}

func (s *HTTPServer) requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, catUnauthorized, "Missing Authorization header")
		return auth.Identity{}, false
	}
	ident, err := s.service.Identify(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
			writeError(w, http.StatusUnauthorized, catUnauthorized, "Invalid or expired token")
			return auth.Identity{}, false
		}
		writeError(w, http.StatusInternalServerError, catInternal, "Token verification failed")
		return auth.Identity{}, false
	}
	return ident, true
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, category, message := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("app: %s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, status, category, message)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Credentials", "true")
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,OPTIONS,PATCH,DELETE,POST,PUT")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, category, message string) {
	writeJSON(w, status, map[string]any{
		"error":   category,
		"message": message,
	})
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, category, message string) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Category, domainErr.Message
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return http.StatusNotFound, catNotFound, "Not Found"
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, catUnauthorized, "Invalid or expired token"
	}
	return http.StatusInternalServerError, catInternal, err.Error()
}
