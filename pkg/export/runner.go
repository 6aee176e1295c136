// Package export orchestrates a full export run: authenticate, extract,
// transform, write CSVs, then fetch documents.
package export

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hrtools/personio-export/pkg/auth"
	"github.com/hrtools/personio-export/pkg/client"
	"github.com/hrtools/personio-export/pkg/documents"
	"github.com/hrtools/personio-export/pkg/etl"
)

// Prometheus metrics for export runs.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "personio_export_runs_total",
		Help: "Total export runs by outcome",
	}, []string{"status"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "personio_export_duration_seconds",
		Help:    "Export run duration in seconds",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	})

	employeesExported = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "personio_employees_exported",
		Help: "Number of employee rows written by the last export run",
	})
)

// Config holds everything a run needs; validated by the caller and treated
// as immutable for the run.
type Config struct {
	ClientID          string
	ClientSecret      string
	BaseURL           string
	OutputPath        string
	IncludeDocuments  bool
	DocumentWorkers   int
	HTTPTimeout       time.Duration
	RetryMaxAttempts  int
	RequestsPerSecond float64
}

// Result summarizes a successful run.
type Result struct {
	Employees   int
	Departments int
	Documents   *documents.Report
}

// Runner owns the wired pipeline for repeated runs. All runs share one
// token provider and one gateway; everything else is rebuilt per run.
type Runner struct {
	cfg         Config
	gateway     *client.Gateway
	extractor   *etl.Extractor
	transformer *etl.Transformer
	fetcher     *documents.Fetcher
	logger      zerolog.Logger
}

// NewRunner wires the pipeline from config.
func NewRunner(cfg Config) (*Runner, error) {
	tokens, err := auth.NewProvider(auth.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		BaseURL:      cfg.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	gatewayCfg := client.DefaultConfig(cfg.BaseURL, tokens)
	if cfg.HTTPTimeout > 0 {
		gatewayCfg.Timeout = cfg.HTTPTimeout
	}
	if cfg.RetryMaxAttempts > 0 {
		gatewayCfg.Retry.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RequestsPerSecond > 0 {
		gatewayCfg.RequestsPerSecond = cfg.RequestsPerSecond
	}

	gateway, err := client.New(gatewayCfg)
	if err != nil {
		return nil, err
	}

	return &Runner{
		cfg:         cfg,
		gateway:     gateway,
		extractor:   etl.NewExtractor(gateway),
		transformer: etl.NewTransformer(),
		fetcher:     documents.NewFetcher(gateway, cfg.DocumentWorkers),
		logger:      log.With().Str("component", "export").Logger(),
	}, nil
}

// Run executes one full export. Fatal errors (authentication, API after
// retry exhaustion, output write) abort with no partial CSV output;
// document failures are reported but never fail the run.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	r.logger.Info().Msg("Starting export run")

	result, err := r.run(ctx)
	runDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		runsTotal.WithLabelValues("failure").Inc()
		r.logger.Error().Err(err).Msg("Export run failed")
		return nil, err
	}

	runsTotal.WithLabelValues("success").Inc()
	employeesExported.Set(float64(result.Employees))
	r.logger.Info().
		Int("employees", result.Employees).
		Int("departments", result.Departments).
		Dur("duration", time.Since(start)).
		Msg("Export run completed")

	return result, nil
}

func (r *Runner) run(ctx context.Context) (*Result, error) {
	records, docRefs, err := r.extractor.ExtractAll(ctx)
	if err != nil {
		return nil, err
	}

	rows := r.transformer.FlattenAll(records)
	stats := etl.Summarize(rows)

	loader, err := etl.NewLoader(r.cfg.OutputPath)
	if err != nil {
		return nil, err
	}
	if err := loader.WriteEmployeeCSV(rows); err != nil {
		return nil, err
	}
	if err := loader.WriteSummaryCSV(stats); err != nil {
		return nil, err
	}

	report := r.fetcher.FetchAll(ctx, docRefs, r.cfg.OutputPath, r.cfg.IncludeDocuments)

	return &Result{
		Employees:   len(rows),
		Departments: len(stats),
		Documents:   report,
	}, nil
}
