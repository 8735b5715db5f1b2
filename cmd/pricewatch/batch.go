package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maltedev/grocery-price-scraper/internal/database"
	"github.com/maltedev/grocery-price-scraper/internal/events"
	"github.com/maltedev/grocery-price-scraper/internal/models"
	"github.com/maltedev/grocery-price-scraper/internal/scraper"
	"github.com/maltedev/grocery-price-scraper/internal/storage"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		input     string
		output    string
		stateFile string
		workers   int
		record    bool
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Search every target in a CSV and write the prices to a CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := storage.ReadTargetsFile(input)
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				return fmt.Errorf("no targets in %s", input)
			}

			reg, err := a.loadSites()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			var state *storage.StateStore
			pending := targets
			if stateFile != "" {
				state, err = storage.NewStateStore(stateFile)
				if err != nil {
					return fmt.Errorf("open state file: %w", err)
				}
				if err := state.AddBatch(targets); err != nil {
					return fmt.Errorf("save state: %w", err)
				}
				pending = state.Remaining(targets)
				a.logger.Info("resuming batch",
					"targets", len(targets),
					"remaining", len(pending))
				if len(pending) == 0 {
					return storage.WriteOutcomesFile(output, state.Outcomes(targets))
				}
			}

			var recorder *events.Recorder
			if record {
				db, err := a.openDatabase(ctx)
				if err != nil {
					return err
				}
				defer db.Close()
				recorder = events.NewRecorder(db, a.cfg.Redis.Stream, a.logger)
			}

			engine, err := a.openEngine()
			if err != nil {
				return fmt.Errorf("start browser: %w", err)
			}
			defer engine.Close()

			orch, err := a.newOrchestrator(ctx, engine)
			if err != nil {
				return err
			}

			if workers <= 0 {
				workers = a.cfg.Scraper.ConcurrentLimit
			}
			batch := scraper.NewBatch(orch, reg, workers, a.logger)

			onResult := func(o models.TargetOutcome) {
				if state != nil {
					if err := state.Record(o); err != nil {
						a.logger.Error("failed to save state", "error", err)
					}
				}
				if recorder != nil && o.Err == nil {
					if _, err := recorder.Record(ctx, o.Target, o.Outcome, nil); err != nil {
						a.logger.Error("failed to record outcome", "site", o.Target.Site, "error", err)
					}
				}
			}

			outcomes, runErr := batch.Run(ctx, pending, onResult)

			if state != nil {
				outcomes = state.Outcomes(targets)
			}
			if err := storage.WriteOutcomesFile(output, outcomes); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			a.logger.Info("prices written", "file", output, "rows", len(outcomes))
			if state != nil {
				a.logger.Info("batch state", "stats", state.GetStats())
			}

			return runErr
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "CSV with Supermarket and Product Searched columns")
	cmd.Flags().StringVarP(&output, "output", "o", "prices.csv", "CSV file to write")
	cmd.Flags().StringVar(&stateFile, "state", "", "JSON state file; found targets are skipped on the next run")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent searches; overrides SCRAPER_CONCURRENT_LIMIT")
	cmd.Flags().BoolVar(&record, "record", false, "Also store outcomes and events in Postgres")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func (a *app) openDatabase(ctx context.Context) (*database.DB, error) {
	db, err := database.New(ctx, database.Config{
		URL:      a.cfg.Database.DatabaseURL(),
		MaxConns: int32(a.cfg.Database.MaxConns),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
