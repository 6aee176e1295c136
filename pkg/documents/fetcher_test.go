package documents

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hrtools/personio-export/internal/testutil"
	"github.com/hrtools/personio-export/pkg/client"
	"github.com/hrtools/personio-export/pkg/etl"
)

type staticTokens struct{}

func (staticTokens) Token(ctx context.Context) (string, error) { return "test-token", nil }
func (staticTokens) Invalidate()                               {}

func newTestFetcher(t *testing.T, mock *testutil.MockPersonio, workers int) *Fetcher {
	t.Helper()

	gw, err := client.New(client.Config{
		BaseURL: mock.URL(),
		Tokens:  staticTokens{},
		Retry: client.RetryConfig{
			MaxAttempts:       2,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        10 * time.Millisecond,
			BackoffMultiplier: 2.0,
		},
		RequestsPerSecond: 1000,
	})
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return NewFetcher(gw, workers)
}

func downloadPath(employeeID, documentID string) string {
	return "/v1/company/employees/" + employeeID + "/documents/" + documentID + "/download"
}

func TestFetchAll_WritesDocumentTree(t *testing.T) {
	mock := testutil.NewMockPersonio()
	defer mock.Close()

	mock.SetResponse(downloadPath("1001", "7"), testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       "contract-bytes",
	})
	mock.SetResponse(downloadPath("1002", "8"), testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       "payslip-bytes",
	})

	refs := []etl.DocumentRef{
		{EmployeeID: "1001", DocumentID: "7", Title: "Contract", Extension: "pdf"},
		{EmployeeID: "1002", DocumentID: "8", Title: "Payslip", Extension: "pdf"},
	}

	dir := t.TempDir()
	fetcher := newTestFetcher(t, mock, 2)
	report := fetcher.FetchAll(context.Background(), refs, dir, true)

	if report.Succeeded != 2 {
		t.Errorf("Succeeded = %d, want 2", report.Succeeded)
	}
	if len(report.Failed) != 0 {
		t.Errorf("Failed = %v, want none", report.Failed)
	}

	data, err := os.ReadFile(filepath.Join(dir, "documents", "1001", "Contract.pdf"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "contract-bytes" {
		t.Errorf("Content = %q, want contract-bytes", data)
	}

	if _, err := os.Stat(filepath.Join(dir, "documents", "1002", "Payslip.pdf")); err != nil {
		t.Errorf("Second document missing: %v", err)
	}
}

func TestFetchAll_FailureDoesNotBlockOthers(t *testing.T) {
	mock := testutil.NewMockPersonio()
	defer mock.Close()

	mock.SetResponse(downloadPath("1001", "7"), testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       "ok-bytes",
	})
	mock.SetResponse(downloadPath("1001", "8"), testutil.MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"success": false, "error": {"message": "Not found"}}`,
	})

	refs := []etl.DocumentRef{
		{EmployeeID: "1001", DocumentID: "7", Title: "Good", Extension: "txt"},
		{EmployeeID: "1001", DocumentID: "8", Title: "Missing", Extension: "txt"},
	}

	dir := t.TempDir()
	fetcher := newTestFetcher(t, mock, 1)
	report := fetcher.FetchAll(context.Background(), refs, dir, true)

	if report.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", report.Succeeded)
	}
	if len(report.Failed) != 1 {
		t.Fatalf("len(Failed) = %d, want 1", len(report.Failed))
	}
	if report.Failed[0].Ref.DocumentID != "8" {
		t.Errorf("Failed document = %q, want 8", report.Failed[0].Ref.DocumentID)
	}

	// Failed download leaves no partial file behind.
	if _, err := os.Stat(filepath.Join(dir, "documents", "1001", "Missing.txt")); !os.IsNotExist(err) {
		t.Errorf("Partial file for failed download exists (err = %v)", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "documents", "1001", "Good.txt")); err != nil {
		t.Errorf("Successful document missing: %v", err)
	}
}

func TestFetchAll_DisabledIsNoOp(t *testing.T) {
	mock := testutil.NewMockPersonio()
	defer mock.Close()

	refs := []etl.DocumentRef{
		{EmployeeID: "1001", DocumentID: "7", Title: "Contract", Extension: "pdf"},
	}

	dir := t.TempDir()
	fetcher := newTestFetcher(t, mock, 2)
	report := fetcher.FetchAll(context.Background(), refs, dir, false)

	if report.Succeeded != 0 || len(report.Failed) != 0 {
		t.Errorf("Report = %+v, want empty", report)
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("RequestCount = %d, want 0", mock.GetRequestCount())
	}
	if _, err := os.Stat(filepath.Join(dir, "documents")); !os.IsNotExist(err) {
		t.Errorf("Documents directory created despite disabled downloads (err = %v)", err)
	}
}

func TestFetchAll_OverwritesExistingFile(t *testing.T) {
	mock := testutil.NewMockPersonio()
	defer mock.Close()

	mock.SetResponse(downloadPath("1001", "7"), testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       "fresh-bytes",
	})

	refs := []etl.DocumentRef{
		{EmployeeID: "1001", DocumentID: "7", Title: "Contract", Extension: "pdf"},
	}

	dir := t.TempDir()
	target := filepath.Join(dir, "documents", "1001", "Contract.pdf")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(target, []byte("stale-bytes-from-previous-run"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fetcher := newTestFetcher(t, mock, 1)
	report := fetcher.FetchAll(context.Background(), refs, dir, true)
	if report.Succeeded != 1 {
		t.Fatalf("Succeeded = %d, want 1", report.Succeeded)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "fresh-bytes" {
		t.Errorf("Content = %q, want fresh-bytes", data)
	}
}

func TestFetchAll_EmptyRefs(t *testing.T) {
	mock := testutil.NewMockPersonio()
	defer mock.Close()

	fetcher := newTestFetcher(t, mock, 2)
	report := fetcher.FetchAll(context.Background(), nil, t.TempDir(), true)
	if report.Succeeded != 0 || len(report.Failed) != 0 {
		t.Errorf("Report = %+v, want empty", report)
	}
}
