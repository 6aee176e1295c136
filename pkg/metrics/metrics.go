// Package metrics documents the Prometheus metrics exposed by the exporter.
// All metrics are defined in their respective packages (client, documents,
// export) to maintain modularity and avoid circular dependencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the exporter.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - personio_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - personio_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - personio_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - personio_retries_total{error_class} (Counter): Retry attempts by error class
//   - personio_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - personio_retry_exhausted_total{error_class} (Counter): Calls that exhausted max attempts
//
// Document Metrics (pkg/documents):
//   - personio_documents_downloaded_total (Counter): Documents downloaded successfully
//   - personio_documents_failed_total (Counter): Document downloads that failed
//
// Run Metrics (pkg/export):
//   - personio_export_runs_total{status} (Counter): Export runs by outcome
//   - personio_export_duration_seconds (Histogram): Export run duration
//   - personio_employees_exported (Gauge): Employee rows written by the last run
//
// Example Prometheus Queries:
//
//   # Request error rate
//   rate(personio_errors_total[5m])
//
//   # Document failure ratio
//   rate(personio_documents_failed_total[1h]) /
//   (rate(personio_documents_downloaded_total[1h]) + rate(personio_documents_failed_total[1h]))
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(personio_request_duration_seconds_bucket[5m]))
//
//   # Last run size
//   personio_employees_exported
