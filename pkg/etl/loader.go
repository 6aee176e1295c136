package etl

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Output artifact filenames.
const (
	EmployeeExportFile = "personio_employee_export.csv"
	SummaryFile        = "department_summary.csv"
)

// FileWriteError indicates an output artifact could not be written.
// The atomic-write discipline guarantees no truncated file is left under
// the final name.
type FileWriteError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *FileWriteError) Error() string {
	return fmt.Sprintf("file write error for %s: %v", e.Path, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FileWriteError) Unwrap() error {
	return e.Err
}

// Loader writes the CSV artifacts into the output directory.
type Loader struct {
	outputPath string
	logger     zerolog.Logger
}

// NewLoader creates a loader, creating the output directory if needed.
func NewLoader(outputPath string) (*Loader, error) {
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return nil, &FileWriteError{Path: outputPath, Err: err}
	}

	return &Loader{
		outputPath: outputPath,
		logger:     log.With().Str("component", "loader").Logger(),
	}, nil
}

// WriteEmployeeCSV writes the employee export artifact.
func (l *Loader) WriteEmployeeCSV(rows []EmployeeRow) error {
	values := make([][]string, len(rows))
	for i, row := range rows {
		values[i] = row.Values()
	}
	return l.writeCSV(EmployeeExportFile, EmployeeColumns, values)
}

// WriteSummaryCSV writes the department summary artifact.
func (l *Loader) WriteSummaryCSV(stats []DepartmentStat) error {
	values := make([][]string, len(stats))
	for i, stat := range stats {
		values[i] = stat.Values()
	}
	return l.writeCSV(SummaryFile, SummaryColumns, values)
}

// writeCSV writes header + rows atomically: the data goes to a temp file in
// the same directory which is renamed into place only after a successful
// flush, so a crash mid-write never leaves a truncated file visible.
func (l *Loader) writeCSV(filename string, header []string, rows [][]string) error {
	finalPath := filepath.Join(l.outputPath, filename)

	tmp, err := os.CreateTemp(l.outputPath, filename+".tmp-*")
	if err != nil {
		return &FileWriteError{Path: finalPath, Err: err}
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		cleanup()
		return &FileWriteError{Path: finalPath, Err: err}
	}
	if err := w.WriteAll(rows); err != nil {
		cleanup()
		return &FileWriteError{Path: finalPath, Err: err}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		cleanup()
		return &FileWriteError{Path: finalPath, Err: err}
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &FileWriteError{Path: finalPath, Err: err}
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return &FileWriteError{Path: finalPath, Err: err}
	}

	l.logger.Info().
		Str("path", finalPath).
		Int("rows", len(rows)).
		Msg("CSV written")

	return nil
}
