package report

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/webaudit/webaudit/internal/model"
)

// Sink receives audit records incrementally as the crawl produces them.
//
// Design decision: We use an interface so the crawler can fan records
// into the CSV file, the in-memory report, and tests with the same API.
type Sink interface {
	// Append writes one record to the destination.
	Append(rec model.Record) error

	// Close releases the destination. Append must not be called after.
	Close() error
}

// CSVSink streams records to a CSV file with the fixed eight-column
// layout. The file is created (or truncated) with a header row up front,
// and every append is flushed to disk immediately: a crash or abort
// loses at most the record being written, and the file can be tailed
// while the audit runs.
type CSVSink struct {
	file   *os.File
	writer *csv.Writer
}

// NewCSVSink creates the report file at path, truncating any previous
// run's output, and writes the header row.
func NewCSVSink(path string) (*CSVSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create report file: %w", err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(model.Columns); err != nil {
		file.Close()
		return nil, fmt.Errorf("write report header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		return nil, fmt.Errorf("flush report header: %w", err)
	}

	return &CSVSink{file: file, writer: writer}, nil
}

// Append writes one record row and flushes it to disk.
func (s *CSVSink) Append(rec model.Record) error {
	if err := s.writer.Write(rec.Fields()); err != nil {
		return fmt.Errorf("write report row: %w", err)
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("flush report row: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (s *CSVSink) Close() error {
	return s.file.Close()
}

// ReadCSV loads a report file back into records, skipping the header.
// Used by the history differ and tests.
func ReadCSV(path string) ([]model.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read report file: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("report file %s is empty", path)
	}

	records := make([]model.Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := model.ParseRecord(row)
		if err != nil {
			return nil, fmt.Errorf("report row %d: %w", i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReportSink appends records to an in-memory AuditReport. It is the
// companion of the CSV sink: the file is the durable record, the report
// feeds summaries and history persistence.
type ReportSink struct {
	report *model.AuditReport
}

// NewReportSink wraps an AuditReport as a Sink.
func NewReportSink(report *model.AuditReport) *ReportSink {
	return &ReportSink{report: report}
}

// Append adds the record to the report.
func (s *ReportSink) Append(rec model.Record) error {
	s.report.Append(rec)
	return nil
}

// Close is a no-op.
func (s *ReportSink) Close() error {
	return nil
}

// MultiSink fans every record out to several sinks.
//
// Design decision: A separate type rather than io.MultiWriter because
// sinks receive records, not raw bytes.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a Sink writing to all provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Append writes the record to every sink, stopping at the first error.
func (m *MultiSink) Append(rec model.Record) error {
	for _, s := range m.sinks {
		if err := s.Append(rec); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink, returning the first error encountered.
func (m *MultiSink) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
