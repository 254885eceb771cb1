// Package api provides the REST surface over the code review service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/ids"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/models"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/runner"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/store"
)

// ReviewJob processes one code review in the background.
type ReviewJob interface {
	Run(ctx context.Context, reviewID string) error
}

// IngestJob ingests one standard set's repository in the background.
type IngestJob interface {
	Run(ctx context.Context, standardSetID string) error
}

// Server provides the REST API handlers.
type Server struct {
	store     store.Store
	runner    *runner.Runner
	reviews   ReviewJob
	ingestion IngestJob
}

// NewServer creates a new API server. Background work is dispatched via
// the runner; handlers never wait for pipeline completion.
func NewServer(s store.Store, r *runner.Runner, reviews ReviewJob, ingestion IngestJob) *Server {
	return &Server{
		store:     s,
		runner:    r,
		reviews:   reviews,
		ingestion: ingestion,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/classifications", s.createClassification)
	mux.HandleFunc("GET /api/v1/classifications", s.listClassifications)
	mux.HandleFunc("DELETE /api/v1/classifications/{id}", s.deleteClassification)

	mux.HandleFunc("POST /api/v1/standard-sets", s.createStandardSet)
	mux.HandleFunc("GET /api/v1/standard-sets", s.listStandardSets)
	mux.HandleFunc("GET /api/v1/standard-sets/{id}", s.getStandardSet)
	mux.HandleFunc("DELETE /api/v1/standard-sets/{id}", s.deleteStandardSet)

	mux.HandleFunc("POST /api/v1/code-reviews", s.createCodeReview)
	mux.HandleFunc("GET /api/v1/code-reviews", s.listCodeReviews)
	mux.HandleFunc("GET /api/v1/code-reviews/{id}", s.getCodeReview)

	mux.HandleFunc("GET /health", s.health)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// isNotFound matches the store's not-found error convention.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// --- Classifications ---

func (s *Server) createClassification(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	c := &models.Classification{Name: in.Name}
	if err := s.store.CreateClassification(r.Context(), c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) listClassifications(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListClassifications(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []*models.Classification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) deleteClassification(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !ids.Valid(id) {
		writeError(w, http.StatusBadRequest, "invalid id format: "+id)
		return
	}
	if err := s.store.DeleteClassification(r.Context(), id); err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// --- Standard sets ---

func (s *Server) createStandardSet(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name          string `json:"name"`
		RepositoryURL string `json:"repository_url"`
		CustomPrompt  string `json:"custom_prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.RepositoryURL) == "" {
		writeError(w, http.StatusUnprocessableEntity, "name and repository_url are required")
		return
	}
	if len(in.CustomPrompt) > models.MaxCustomPromptLen {
		writeError(w, http.StatusUnprocessableEntity, "custom_prompt exceeds maximum length")
		return
	}

	set := &models.StandardSet{
		Name:          in.Name,
		RepositoryURL: in.RepositoryURL,
		CustomPrompt:  in.CustomPrompt,
	}
	if err := s.store.UpsertStandardSet(r.Context(), set); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Ingestion runs out-of-band; the set document is already persisted
	// regardless of how it turns out.
	setID := set.ID
	jobID := s.runner.Submit("ingest-standard-set", func(ctx context.Context) {
		_ = s.ingestion.Run(ctx, setID)
	})
	slog.Info("standard set ingestion dispatched", "standard_set_id", setID, "job_id", jobID)

	writeJSON(w, http.StatusCreated, set)
}

func (s *Server) listStandardSets(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListStandardSets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []*models.StandardSet{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getStandardSet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !ids.Valid(id) {
		writeError(w, http.StatusBadRequest, "invalid id format: "+id)
		return
	}

	set, err := s.store.GetStandardSet(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	standards, err := s.store.ListStandardsBySet(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if standards == nil {
		standards = []*models.Standard{}
	}
	writeJSON(w, http.StatusOK, models.StandardSetWithStandards{
		StandardSet: *set,
		Standards:   standards,
	})
}

func (s *Server) deleteStandardSet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !ids.Valid(id) {
		writeError(w, http.StatusBadRequest, "invalid id format: "+id)
		return
	}
	if err := s.store.DeleteStandardSet(r.Context(), id); err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// --- Code reviews ---

func (s *Server) createCodeReview(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RepositoryURL string   `json:"repository_url"`
		StandardSets  []string `json:"standard_sets"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(in.RepositoryURL) == "" || len(in.StandardSets) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "repository_url and standard_sets are required")
		return
	}

	// Every referenced set must exist up front; a review against a set
	// that was never ingested is not worth starting.
	refs := make([]models.StandardSetRef, 0, len(in.StandardSets))
	for _, setID := range in.StandardSets {
		if !ids.Valid(setID) {
			writeError(w, http.StatusBadRequest, "invalid standard set id format: "+setID)
			return
		}
		set, err := s.store.GetStandardSet(r.Context(), setID)
		if err != nil {
			if isNotFound(err) {
				writeError(w, http.StatusBadRequest, "standard set not found: "+setID)
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		refs = append(refs, models.StandardSetRef{ID: set.ID, Name: set.Name})
	}

	review := &models.CodeReview{
		RepositoryURL:     in.RepositoryURL,
		Status:            models.ReviewStatusStarted,
		StandardSets:      refs,
		ComplianceReports: []models.ComplianceReport{},
	}
	if err := s.store.CreateCodeReview(r.Context(), review); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	reviewID := review.ID
	jobID := s.runner.Submit("code-review", func(ctx context.Context) {
		_ = s.reviews.Run(ctx, reviewID)
	})
	slog.Info("code review dispatched", "review_id", reviewID, "job_id", jobID)

	writeJSON(w, http.StatusCreated, review)
}

func (s *Server) listCodeReviews(w http.ResponseWriter, r *http.Request) {
	var filter store.CodeReviewListFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.ReviewStatus(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status: "+raw)
			return
		}
		filter.Status = status
	}

	list, err := s.store.ListCodeReviews(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []*models.CodeReview{}
	}
	for _, review := range list {
		s.resolveSetNames(r.Context(), review)
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getCodeReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !ids.Valid(id) {
		writeError(w, http.StatusBadRequest, "invalid id format: "+id)
		return
	}

	review, err := s.store.GetCodeReview(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.resolveSetNames(r.Context(), review)
	writeJSON(w, http.StatusOK, review)
}

// resolveSetNames refreshes the snapshot names against the live standard
// sets. Sets deleted since the review was created render as a
// placeholder instead of failing the read.
func (s *Server) resolveSetNames(ctx context.Context, review *models.CodeReview) {
	for i, ref := range review.StandardSets {
		set, err := s.store.GetStandardSet(ctx, ref.ID)
		if err != nil {
			review.StandardSets[i].Name = "Unknown Standard Set"
			continue
		}
		review.StandardSets[i].Name = set.Name
	}
}
