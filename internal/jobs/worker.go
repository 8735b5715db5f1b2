package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/grocery-price-scraper/internal/models"
)

// StartWorker polls for pending jobs until ctx is cancelled.
func (m *Manager) StartWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	m.logger.Info("job worker started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("job worker stopping")
			return
		case <-ticker.C:
			for m.processNextJob(ctx) {
			}
		}
	}
}

// processNextJob runs one pending job and reports whether it found one.
func (m *Manager) processNextJob(ctx context.Context) bool {
	job, targets, err := m.store.ClaimNext(ctx)
	if errors.Is(err, ErrNoPendingJob) {
		return false
	}
	if err != nil {
		m.logger.Error("failed to claim job", "error", err)
		return false
	}

	m.logger.Info("processing job", "id", job.ID, "targets", len(targets))

	status, errMsg := StatusCompleted, ""
	if err := m.runJob(ctx, job.ID, targets); err != nil {
		m.logger.Error("job failed", "id", job.ID, "error", err)
		status, errMsg = StatusFailed, err.Error()
	}

	// Finish with a detached context so a shutdown still records the state.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.store.Finish(finishCtx, job.ID, status, errMsg); err != nil {
		m.logger.Error("failed to finish job", "id", job.ID, "error", err)
	}

	m.logger.Info("job finished", "id", job.ID, "status", status)
	return ctx.Err() == nil
}

func (m *Manager) runJob(ctx context.Context, jobID uuid.UUID, targets []models.Target) error {
	found, failed := 0, 0

	onResult := func(o models.TargetOutcome) {
		switch {
		case o.Err != nil:
			failed++
			m.logger.Warn("target failed",
				"job", jobID,
				"site", o.Target.Site,
				"query", o.Target.Query,
				"error", o.Err)
		default:
			if o.Outcome.IsFound() {
				found++
			}
			if m.recorder != nil {
				if _, err := m.recorder.Record(ctx, o.Target, o.Outcome, &jobID); err != nil {
					m.logger.Error("failed to record outcome",
						"job", jobID,
						"site", o.Target.Site,
						"error", err)
				}
			}
		}

		if err := m.store.UpdateProgress(ctx, jobID, found, failed); err != nil {
			m.logger.Error("failed to update progress", "job", jobID, "error", err)
		}
	}

	_, err := m.batch.Run(ctx, targets, onResult)
	return err
}
