package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/grocery-price-scraper/internal/models"
	"github.com/maltedev/grocery-price-scraper/internal/worker"
)

// Runner is anything that can run one query against one profile.
type Runner interface {
	Run(ctx context.Context, profile *models.SiteProfile, query string) (models.Outcome, error)
}

// Batch runs many targets through a Runner on a bounded pool.
type Batch struct {
	runner   Runner
	profiles ProfileSource
	workers  int
	logger   *slog.Logger
}

func NewBatch(runner Runner, profiles ProfileSource, workers int, logger *slog.Logger) *Batch {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{
		runner:   runner,
		profiles: profiles,
		workers:  workers,
		logger:   logger.With("component", "batch"),
	}
}

// Run returns exactly one entry per target, in the order requested. A target
// with an unknown site or an empty query gets its error in the entry; a
// navigation failure aborts the batch and is returned alongside the entries
// gathered so far. onResult, if set, observes each entry as it completes.
func (b *Batch) Run(ctx context.Context, targets []models.Target, onResult func(models.TargetOutcome)) ([]models.TargetOutcome, error) {
	process := func(ctx context.Context, target models.Target) (models.Outcome, error) {
		profile, err := b.profiles.Get(target.Site)
		if err != nil {
			return models.Outcome{}, err
		}
		return b.runner.Run(ctx, profile, target.Query)
	}

	var callback func(worker.Result[models.Target, models.Outcome])
	if onResult != nil {
		callback = func(res worker.Result[models.Target, models.Outcome]) {
			onResult(models.TargetOutcome{Target: res.Input, Outcome: res.Output, Err: res.Err})
		}
	}

	b.logger.Info("starting batch", "targets", len(targets), "workers", b.workers)

	results, err := worker.Run(ctx, targets, process, callback, worker.Options{
		Workers:  b.workers,
		FailFast: IsFatal,
	})

	outcomes := make([]models.TargetOutcome, len(results))
	found, exhausted, failed := 0, 0, 0
	for i, res := range results {
		outcomes[i] = models.TargetOutcome{Target: res.Input, Outcome: res.Output, Err: res.Err}
		switch {
		case res.Err != nil:
			failed++
		case res.Output.IsFound():
			found++
		default:
			exhausted++
		}
	}

	b.logger.Info("batch finished",
		"targets", len(targets),
		"found", found,
		"exhausted", exhausted,
		"failed", failed)

	if err != nil {
		return outcomes, fmt.Errorf("batch aborted: %w", err)
	}
	return outcomes, nil
}
