package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/grocery-price-scraper/internal/database"
	"github.com/maltedev/grocery-price-scraper/internal/models"
	"github.com/maltedev/grocery-price-scraper/internal/scraper"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"

	MaxTargetsPerJob = 500
	listLimit        = 100
)

// ErrInvalidJob wraps every validation failure from CreateJob.
var ErrInvalidJob = errors.New("invalid job")

// Job is an asynchronous batch of searches.
type Job struct {
	ID            uuid.UUID       `json:"id"`
	Status        Status          `json:"status"`
	TargetsTotal  int             `json:"targets_total"`
	TargetsFound  int             `json:"targets_found"`
	TargetsFailed int             `json:"targets_failed"`
	Targets       []models.Target `json:"targets,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	Error         string          `json:"error,omitempty"`
}

type Stats struct {
	TotalJobs     int     `json:"total_jobs"`
	PendingJobs   int     `json:"pending_jobs"`
	RunningJobs   int     `json:"running_jobs"`
	CompletedJobs int     `json:"completed_jobs"`
	FailedJobs    int     `json:"failed_jobs"`
	TotalTargets  int     `json:"total_targets"`
	FoundTargets  int     `json:"found_targets"`
	SuccessRate   float64 `json:"success_rate"`
	FoundRate     float64 `json:"found_rate"`
}

func (s *Stats) computeRates() {
	if s.TotalJobs > 0 {
		s.SuccessRate = float64(s.CompletedJobs) / float64(s.TotalJobs) * 100
	}
	if s.TotalTargets > 0 {
		s.FoundRate = float64(s.FoundTargets) / float64(s.TotalTargets) * 100
	}
}

// BatchRunner runs targets in order; *scraper.Batch satisfies it.
type BatchRunner interface {
	Run(ctx context.Context, targets []models.Target, onResult func(models.TargetOutcome)) ([]models.TargetOutcome, error)
}

type OutcomeRecorder interface {
	Record(ctx context.Context, target models.Target, outcome models.Outcome, jobID *uuid.UUID) (*database.PriceResult, error)
}

type Manager struct {
	store    Store
	batch    BatchRunner
	recorder OutcomeRecorder
	profiles scraper.ProfileSource
	logger   *slog.Logger
}

// NewManager wires the job store to the batch runner. profiles is used to
// reject unknown sites at submission time and may be nil.
func NewManager(store Store, batch BatchRunner, recorder OutcomeRecorder, profiles scraper.ProfileSource, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		batch:    batch,
		recorder: recorder,
		profiles: profiles,
		logger:   logger.With("component", "job_manager"),
	}
}

// CreateJob validates targets and queues them as one pending job.
func (m *Manager) CreateJob(ctx context.Context, targets []models.Target) (*Job, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: at least one target is required", ErrInvalidJob)
	}
	if len(targets) > MaxTargetsPerJob {
		return nil, fmt.Errorf("%w: at most %d targets per job", ErrInvalidJob, MaxTargetsPerJob)
	}

	cleaned := make([]models.Target, len(targets))
	for i, t := range targets {
		t.Site = strings.TrimSpace(t.Site)
		t.Query = strings.TrimSpace(t.Query)
		if errs := t.Validate(); len(errs) > 0 {
			return nil, fmt.Errorf("%w: target %d: %s", ErrInvalidJob, i, strings.Join(errs, ", "))
		}
		if m.profiles != nil {
			if _, err := m.profiles.Get(t.Site); err != nil {
				return nil, fmt.Errorf("%w: target %d: %v", ErrInvalidJob, i, err)
			}
		}
		cleaned[i] = t
	}

	job := &Job{
		ID:           uuid.New(),
		Status:       StatusPending,
		TargetsTotal: len(cleaned),
		Targets:      cleaned,
		CreatedAt:    time.Now(),
	}

	if err := m.store.Create(ctx, job, cleaned); err != nil {
		return nil, err
	}

	m.logger.Info("job created", "id", job.ID, "targets", job.TargetsTotal)
	return job, nil
}

func (m *Manager) GetJob(ctx context.Context, jobID string) (*Job, error) {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return nil, ErrJobNotFound
	}
	return m.store.Get(ctx, id)
}

func (m *Manager) ListJobs(ctx context.Context) ([]*Job, error) {
	return m.store.List(ctx, listLimit)
}

func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	return m.store.Stats(ctx)
}
