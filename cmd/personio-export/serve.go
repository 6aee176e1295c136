package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run exports on a cron schedule with a health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner, err := newRunner()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger := log.With().Str("component", "serve").Logger()

		// One export immediately at startup; a failed scheduled run is
		// logged and the next scheduled run starts from zero.
		if _, err := runner.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("Initial export failed")
		}

		if cfg.Schedule.Enabled {
			scheduler := cron.New()
			_, err := scheduler.AddFunc(cfg.Schedule.Cron, func() {
				if _, err := runner.Run(ctx); err != nil {
					logger.Error().Err(err).Msg("Scheduled export failed")
				}
			})
			if err != nil {
				return fmt.Errorf("invalid cron expression %q: %w", cfg.Schedule.Cron, err)
			}
			scheduler.Start()
			defer scheduler.Stop()

			logger.Info().Str("cron", cfg.Schedule.Cron).Msg("Scheduler started")
		}

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("Server shutdown error")
			}
		}()

		logger.Info().Int("port", cfg.Server.Port).Msg("Health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

// newRouter builds the health and metrics endpoints.
func newRouter() http.Handler {
	startTime := time.Now()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":         "up",
			"uptime_seconds": time.Since(startTime).Seconds(),
			"timestamp":      time.Now().Format(time.RFC3339),
		})
	})

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, "Personio export service is running.")
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
