package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"fast-interactions/internal/dataset"
	"fast-interactions/internal/metrics"
	"fast-interactions/internal/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve interaction ranking over HTTP and websocket",
	Long: `Starts the ranking server on SERVER_PORT (POST /rank, GET /ws/rank,
GET /runs/{id}, GET /health, GET /metrics) and a Prometheus metrics server on
METRICS_PORT.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	opts := server.Options{
		Measurer: newMeasurer(mw),
		Fetcher:  dataset.NewFetcher(settings.DatasetTimeout),
		Metrics:  mw,
		Gatherer: prometheus.DefaultGatherer,
		Defaults: settings,
	}
	if store != nil {
		defer store.Close()
		opts.Store = store
	}

	srv := server.New(opts, settings.ServerPort)

	var wg sync.WaitGroup
	startMetricsServer(ctx, &wg, m)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ranking server failed")
			cancel()
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown ranking server")
		}
	}()

	log.Info().
		Int("port", settings.ServerPort).
		Int("metrics_port", settings.MetricsPort).
		Int("workers", settings.Workers).
		Bool("storage", store != nil).
		Msg("fastrank server started")

	waitForShutdown(ctx, cancel, &wg)
	return nil
}

// startMetricsServer serves /metrics and a health check on MetricsPort.
func startMetricsServer(ctx context.Context, wg *sync.WaitGroup, m *metrics.Metrics) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, "OK (failure rate %.3f)", m.FailureRate())
		})

		metricsServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", settings.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := metricsServer.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all servers stopped")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
