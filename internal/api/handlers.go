package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maltedev/grocery-price-scraper/internal/database"
	"github.com/maltedev/grocery-price-scraper/internal/jobs"
	"github.com/maltedev/grocery-price-scraper/internal/models"
	"github.com/maltedev/grocery-price-scraper/internal/scraper"
)

type SiteCatalog interface {
	Get(siteID string) (*models.SiteProfile, error)
	List() []*models.SiteProfile
}

// QueryRunner runs one search; *scraper.Orchestrator satisfies it.
type QueryRunner interface {
	Run(ctx context.Context, profile *models.SiteProfile, query string) (models.Outcome, error)
}

type OutcomeRecorder interface {
	Record(ctx context.Context, target models.Target, outcome models.Outcome, jobID *uuid.UUID) (*database.PriceResult, error)
}

type JobService interface {
	CreateJob(ctx context.Context, targets []models.Target) (*jobs.Job, error)
	GetJob(ctx context.Context, jobID string) (*jobs.Job, error)
	ListJobs(ctx context.Context) ([]*jobs.Job, error)
	GetStats(ctx context.Context) (*jobs.Stats, error)
}

type PriceLister interface {
	ListLatest(ctx context.Context, siteID string, limit int) ([]*database.PriceResult, error)
}

type OutboxStats interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// Deps are the collaborators behind the handlers. Only Sites and Runner are
// required; routes backed by a nil dependency answer 503.
type Deps struct {
	Sites    SiteCatalog
	Runner   QueryRunner
	Recorder OutcomeRecorder
	Jobs     JobService
	Prices   PriceLister
	Outbox   OutboxStats
}

type Handlers struct {
	deps   Deps
	logger *slog.Logger
}

func NewHandlers(deps Deps, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		deps:   deps,
		logger: logger.With("component", "api"),
	}
}

// Health reports liveness and, when the outbox is wired, its backlog.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.deps.Outbox != nil {
		counts, err := h.deps.Outbox.CountByStatus(r.Context())
		if err != nil {
			h.logger.Error("failed to read outbox status", "error", err)
			health["status"] = "error"
			health["message"] = "database unavailable"
			status = http.StatusServiceUnavailable
		} else {
			pending := counts[database.OutboxStatusPending] + counts[database.OutboxStatusFailed]
			deadLetter := counts[database.OutboxStatusDeadLetter]
			health["outbox"] = map[string]int64{
				"pending":     pending,
				"dead_letter": deadLetter,
			}
			if pending > 1000 {
				health["status"] = "warning"
				health["message"] = "high number of pending outbox events"
			}
			if deadLetter > 100 {
				health["status"] = "error"
				health["message"] = "high number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}
	}

	h.respondJSON(w, status, health)
}

type SiteSummary struct {
	ID             string                `json:"site_id"`
	Name           string                `json:"name"`
	Language       string                `json:"language"`
	QuantitySource models.QuantitySource `json:"quantity_source"`
}

func (h *Handlers) ListSites(w http.ResponseWriter, r *http.Request) {
	profiles := h.deps.Sites.List()
	out := make([]SiteSummary, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, SiteSummary{
			ID:             p.ID,
			Name:           p.Name,
			Language:       p.Language,
			QuantitySource: p.QuantitySource,
		})
	}
	h.respondJSON(w, http.StatusOK, out)
}

type SearchRequest struct {
	Site  string `json:"site"`
	Query string `json:"query"`
}

type SearchResponse struct {
	Site     string         `json:"site"`
	Query    string         `json:"query"`
	Outcome  models.Outcome `json:"outcome"`
	ResultID *uuid.UUID     `json:"result_id,omitempty"`
}

// Search runs one query synchronously and returns its outcome.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	target := models.Target{Site: strings.TrimSpace(req.Site), Query: strings.TrimSpace(req.Query)}
	if errs := target.Validate(); len(errs) > 0 {
		h.respondError(w, http.StatusBadRequest, strings.Join(errs, ", "))
		return
	}

	profile, err := h.deps.Sites.Get(target.Site)
	if err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}

	outcome, err := h.deps.Runner.Run(r.Context(), profile, target.Query)
	if err != nil {
		h.logger.Error("search failed", "site", target.Site, "query", target.Query, "error", err)
		h.respondError(w, searchErrorStatus(err), err.Error())
		return
	}

	resp := SearchResponse{Site: profile.ID, Query: target.Query, Outcome: outcome}
	if h.deps.Recorder != nil {
		row, err := h.deps.Recorder.Record(r.Context(), models.Target{Site: profile.ID, Query: target.Query}, outcome, nil)
		if err != nil {
			h.logger.Error("failed to record outcome", "site", profile.ID, "error", err)
		} else {
			resp.ResultID = &row.ID
		}
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func searchErrorStatus(err error) int {
	switch {
	case errors.Is(err, scraper.ErrUnknownSite):
		return http.StatusNotFound
	case errors.Is(err, scraper.ErrEmptyQuery):
		return http.StatusBadRequest
	case scraper.IsFatal(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type CreateJobRequest struct {
	Targets []models.Target `json:"targets"`
}

type CreateJobResponse struct {
	JobID   string      `json:"job_id"`
	Status  jobs.Status `json:"status"`
	Targets int         `json:"targets"`
}

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	if h.deps.Jobs == nil {
		h.respondError(w, http.StatusServiceUnavailable, "jobs are not available")
		return
	}

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.deps.Jobs.CreateJob(r.Context(), req.Targets)
	if errors.Is(err, jobs.ErrInvalidJob) {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateJobResponse{
		JobID:   job.ID.String(),
		Status:  job.Status,
		Targets: job.TargetsTotal,
	})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.deps.Jobs == nil {
		h.respondError(w, http.StatusServiceUnavailable, "jobs are not available")
		return
	}

	job, err := h.deps.Jobs.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if errors.Is(err, jobs.ErrJobNotFound) {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	if h.deps.Jobs == nil {
		h.respondError(w, http.StatusServiceUnavailable, "jobs are not available")
		return
	}

	list, err := h.deps.Jobs.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}

	h.respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Jobs == nil {
		h.respondError(w, http.StatusServiceUnavailable, "jobs are not available")
		return
	}

	stats, err := h.deps.Jobs.GetStats(r.Context())
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// ListPrices returns the latest recorded outcomes, newest first.
func (h *Handlers) ListPrices(w http.ResponseWriter, r *http.Request) {
	if h.deps.Prices == nil {
		h.respondError(w, http.StatusServiceUnavailable, "price history is not available")
		return
	}

	site := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("site")))
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			h.respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	prices, err := h.deps.Prices.ListLatest(r.Context(), site, limit)
	if err != nil {
		h.logger.Error("failed to list prices", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list prices")
		return
	}
	if prices == nil {
		prices = []*database.PriceResult{}
	}

	h.respondJSON(w, http.StatusOK, prices)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
