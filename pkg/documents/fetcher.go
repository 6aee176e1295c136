// Package documents downloads employee document payloads into the output
// tree. Downloads run on a bounded worker pool sharing the single gateway;
// individual failures are collected, never fatal.
package documents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hrtools/personio-export/pkg/client"
	"github.com/hrtools/personio-export/pkg/etl"
)

// Prometheus metrics for document downloads.
var (
	documentsDownloadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "personio_documents_downloaded_total",
		Help: "Total documents downloaded successfully",
	})

	documentsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "personio_documents_failed_total",
		Help: "Total document downloads that failed",
	})
)

// DefaultWorkers is the default download concurrency.
const DefaultWorkers = 4

// Failure records one document that could not be downloaded.
type Failure struct {
	Ref etl.DocumentRef
	Err error
}

// Report summarizes a fetch run.
type Report struct {
	Succeeded int
	Failed    []Failure
}

// Fetcher downloads document payloads through the shared gateway.
type Fetcher struct {
	gw      *client.Gateway
	workers int
	logger  zerolog.Logger
}

// NewFetcher creates a fetcher with the given worker count.
func NewFetcher(gw *client.Gateway, workers int) *Fetcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Fetcher{
		gw:      gw,
		workers: workers,
		logger:  log.With().Str("component", "document-fetcher").Logger(),
	}
}

// FetchAll downloads every referenced document under
// outputRoot/documents/{employee_id}/{filename}. A no-op when enabled is
// false. Existing files of the same name are overwritten; a failed download
// is logged, recorded in the report and never aborts the run.
func (f *Fetcher) FetchAll(ctx context.Context, refs []etl.DocumentRef, outputRoot string, enabled bool) *Report {
	report := &Report{}
	if !enabled || len(refs) == 0 {
		return report
	}

	f.logger.Info().
		Int("documents", len(refs)).
		Int("workers", f.workers).
		Msg("Starting document downloads")

	queue := make(chan etl.DocumentRef, len(refs))
	for _, ref := range refs {
		queue <- ref
	}
	close(queue)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range queue {
				select {
				case <-ctx.Done():
					return
				default:
				}

				if err := f.fetchOne(ctx, ref, outputRoot); err != nil {
					documentsFailedTotal.Inc()
					f.logger.Warn().
						Err(err).
						Str("employee_id", ref.EmployeeID).
						Str("document_id", ref.DocumentID).
						Msg("Document download failed")

					mu.Lock()
					report.Failed = append(report.Failed, Failure{Ref: ref, Err: err})
					mu.Unlock()
					continue
				}

				documentsDownloadedTotal.Inc()
				mu.Lock()
				report.Succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	f.logger.Info().
		Int("succeeded", report.Succeeded).
		Int("failed", len(report.Failed)).
		Msg("Document downloads complete")

	return report
}

// fetchOne downloads a single document into its employee directory.
// Directory creation is idempotent; write targets never collide because
// each employee id owns its own directory.
func (f *Fetcher) fetchOne(ctx context.Context, ref etl.DocumentRef, outputRoot string) error {
	dir := filepath.Join(outputRoot, "documents", ref.EmployeeID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, ref.Filename())
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file %s: %w", path, err)
	}

	endpoint := fmt.Sprintf("company/employees/%s/documents/%s/download", ref.EmployeeID, ref.DocumentID)
	n, err := f.gw.Download(ctx, endpoint, file)
	if err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close file %s: %w", path, err)
	}

	f.logger.Debug().
		Str("path", path).
		Int64("bytes", n).
		Msg("Document saved")

	return nil
}
