package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/maltedev/grocery-price-scraper/internal/api"
	"github.com/maltedev/grocery-price-scraper/internal/database"
	"github.com/maltedev/grocery-price-scraper/internal/events"
	"github.com/maltedev/grocery-price-scraper/internal/jobs"
	"github.com/maltedev/grocery-price-scraper/internal/scraper"
)

func newServeCmd(a *app) *cobra.Command {
	var noDB bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(noDB)
		},
	}

	cmd.Flags().BoolVar(&noDB, "no-db", false, "Serve searches only, without Postgres, Redis or jobs")
	return cmd
}

func (a *app) serve(noDB bool) error {
	ctx, cancel := signalContext()
	defer cancel()

	reg, err := a.loadSites()
	if err != nil {
		return err
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

	deps := api.Deps{Sites: reg, Runner: orch}

	if !noDB {
		db, err := a.openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		redisOpts, err := redis.ParseURL(a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}

		relay := database.NewRelay(db, redisClient, a.logger, database.RelayConfig{
			PollInterval: a.cfg.Jobs.RelayInterval,
			BatchSize:    100,
		})
		go func() {
			if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("relay stopped with error", "error", err)
			}
		}()

		recorder := events.NewRecorder(db, a.cfg.Redis.Stream, a.logger)
		batch := scraper.NewBatch(orch, reg, a.cfg.Scraper.ConcurrentLimit, a.logger)
		manager := jobs.NewManager(jobs.NewPostgresStore(db), batch, recorder, reg, a.logger)
		go manager.StartWorker(ctx, a.cfg.Jobs.PollInterval)

		deps.Recorder = recorder
		deps.Jobs = manager
		deps.Prices = database.NewResultRepository(db)
		deps.Outbox = database.NewOutboxRepository(db)
	}

	handlers := api.NewHandlers(deps, a.logger)
	server := &http.Server{
		Addr: net.JoinHostPort(a.cfg.Server.Host, a.cfg.Server.Port),
		Handler: api.NewRouter(handlers, api.RouterOptions{
			AllowedOrigins: a.cfg.Server.AllowedOrigins,
			RequestTimeout: a.cfg.Server.WriteTimeout,
		}),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}
