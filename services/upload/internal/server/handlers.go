package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"papercast/pkg/domain"
	"papercast/pkg/store"
	"papercast/services/upload/internal/app"
)

const maxJSONBody = 1 << 20

type submitResponse struct {
	ID       string              `json:"id"`
	Filename string              `json:"filename"`
	Size     int64               `json:"size"`
	Status   domain.UploadStatus `json:"status"`
	URL      string              `json:"url"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.Anonymous() {
		writeAppError(w, r, domain.Unauthorized("authentication required"))
		return
	}
	quota := s.limiter.Allow(r.Context(), actor.ID)
	if quota.Remaining >= 0 && quota.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(quota.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(quota.Remaining))
	}
	if !quota.Allowed {
		if quota.RetryAfter > 0 {
			secs := int((quota.RetryAfter + time.Second - 1) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		writeError(w, http.StatusTooManyRequests, kindRateLimited, codeForKind(kindRateLimited), "too many uploads, slow down")
		return
	}

	maxBytes := s.app.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			badRequest(w, fmt.Sprintf("file exceeds %d bytes", maxBytes))
			return
		}
		badRequest(w, "invalid form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "file is required (field: file)")
		return
	}
	defer file.Close()

	req := app.SubmitRequest{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
		Title:       r.FormValue("title"),
		Authors:     r.MultipartForm.Value["authors"],
		Abstract:    r.FormValue("abstract"),
	}
	if raw := strings.TrimSpace(r.FormValue("priority")); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(w, "priority must be an integer")
			return
		}
		req.Priority = &p
	}

	u, err := s.app.Submit(r.Context(), actor, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{
		ID:       u.ID,
		Filename: u.OriginalFilename,
		Size:     u.SizeBytes,
		Status:   u.Status,
		URL:      u.StorageLocator,
	})
}

func (s *Server) handleListMine(w http.ResponseWriter, r *http.Request) {
	items, err := s.app.ListByOwner(r.Context(), actorFrom(r), r.URL.Query().Get("ownerId"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Upload{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	u, err := s.app.Get(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	d, err := s.app.DownloadURL(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Delete(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAdminPatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireRole(w, r, isAdmin, "admin role required")
	if !ok {
		return
	}
	var patch domain.UploadPatch
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&patch); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if raw := strings.TrimSpace(r.Header.Get("If-Match")); raw != "" {
		v, err := parseETagVersion(raw)
		if err != nil {
			badRequest(w, "If-Match must carry the upload version")
			return
		}
		if patch.ExpectedVersion.Set && patch.ExpectedVersion.Value != v {
			badRequest(w, "If-Match and version disagree")
			return
		}
		patch.ExpectedVersion = domain.Some(v)
	}
	u, err := s.app.Update(r.Context(), actor, chi.URLParam(r, "id"), patch)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(u.Version, 10)))
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleAdminList(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, isAdmin, "admin role required"); !ok {
		return
	}
	filter, ok := parseListFilter(w, r)
	if !ok {
		return
	}
	if owner := strings.TrimSpace(r.URL.Query().Get("ownerId")); owner != "" {
		filter.OwnerID = &owner
	}
	res, err := s.app.ListAll(r.Context(), actorFrom(r), filter)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, isWorker, "worker role required"); !ok {
		return
	}
	filter, ok := parseListFilter(w, r)
	if !ok {
		return
	}
	items, err := s.app.Queue(r.Context(), actorFrom(r), filter)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Upload{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

type transitionRequest struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireRole(w, r, isWorker, "worker role required")
	if !ok {
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	status, ok := domain.ParseStatus(req.Status)
	if !ok {
		badRequest(w, "invalid status")
		return
	}
	u, err := s.app.Transition(r.Context(), actor, chi.URLParam(r, "id"), status, req.ErrorMessage)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func isAdmin(a domain.Actor) bool  { return a.IsAdmin() }
func isWorker(a domain.Actor) bool { return a.IsWorker() || a.IsAdmin() }

// requireRole answers 401 or 403 before any body or query is read. The app
// layer repeats the check.
func requireRole(w http.ResponseWriter, r *http.Request, allowed func(domain.Actor) bool, forbidden string) (domain.Actor, bool) {
	actor := actorFrom(r)
	switch {
	case actor.Anonymous():
		writeAppError(w, r, domain.Unauthorized("authentication required"))
		return actor, false
	case !allowed(actor):
		writeAppError(w, r, domain.Forbidden(forbidden))
		return actor, false
	}
	return actor, true
}

// parseListFilter reads status, limit and offset query parameters.
func parseListFilter(w http.ResponseWriter, r *http.Request) (store.ListFilter, bool) {
	q := r.URL.Query()
	var filter store.ListFilter
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, ok := domain.ParseStatus(raw)
		if !ok {
			badRequest(w, "invalid status")
			return filter, false
		}
		filter.Status = &status
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, name+" must be a non-negative integer")
			return filter, false
		}
		*dst = n
	}
	return filter, true
}

// parseETagVersion accepts `3`, `"3"` and `W/"3"`.
func parseETagVersion(raw string) (int64, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "W/")
	raw = strings.Trim(raw, `"`)
	return strconv.ParseInt(raw, 10, 64)
}
