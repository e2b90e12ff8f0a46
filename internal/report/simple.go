package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/webaudit/webaudit/internal/model"
)

// SimpleWriter outputs human-readable text summaries for the terminal.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// verbose enables per-record detail for failures.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report summary in human-readable format.
func (w *SimpleWriter) Write(report *model.AuditReport) (int, error) {
	var sb strings.Builder
	summary := report.Summarize()

	w.writeHeader(&sb, report)
	w.writeCounts(&sb, summary)
	w.writeFailures(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.AuditReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         WEB AUDIT REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Target:        %s\n", report.Target))
	sb.WriteString(fmt.Sprintf("Started:       %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Duration:      %s\n", report.FinishedAt.Sub(report.StartedAt).Round(10*time.Millisecond)))
	sb.WriteString(fmt.Sprintf("Pages Crawled: %d\n", report.PagesCrawled))

	switch {
	case report.State == model.StateFailedAuth:
		sb.WriteString(fmt.Sprintf("Status:        FAILED AUTH - %s\n", report.ErrorMessage))
	case report.ErrorMessage != "":
		sb.WriteString(fmt.Sprintf("Status:        ABORTED - %s\n", report.ErrorMessage))
	default:
		sb.WriteString("Status:        Complete\n")
	}
	sb.WriteString("\n")
}

// writeCounts writes the outcome summary section.
func (w *SimpleWriter) writeCounts(sb *strings.Builder, summary *model.Summary) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("OUTCOME SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  PASS:     %d\n", summary.ByStatus[model.StatusPass]))
	sb.WriteString(fmt.Sprintf("  FAIL:     %d\n", summary.ByStatus[model.StatusFail]))
	sb.WriteString(fmt.Sprintf("  ERROR:    %d\n", summary.ByStatus[model.StatusError]))
	sb.WriteString(fmt.Sprintf("  UNKNOWN:  %d\n", summary.ByStatus[model.StatusUnknown]))
	sb.WriteString(fmt.Sprintf("  EXTERNAL: %d\n", summary.ByStatus[model.StatusExternal]))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  TOTAL:    %d records\n", summary.Total))
	sb.WriteString(fmt.Sprintf("  PASS RATE: %.1f%%\n", summary.PassRate()*100))
	sb.WriteString("\n")

	sb.WriteString("  By check:\n")
	for _, t := range []model.RecordType{
		model.RecordPageLoad,
		model.RecordInternalLink,
		model.RecordExternalLink,
		model.RecordFormSubmission,
	} {
		sb.WriteString(fmt.Sprintf("    %-16s %d\n", string(t)+":", summary.ByType[t]))
	}
	sb.WriteString("\n")
}

// writeFailures lists every FAIL and ERROR record.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, report *model.AuditReport) {
	failed := failures(report)
	if len(failed) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("FAILURES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, rec := range failed {
		target := rec.LinkURL
		if target == "" {
			target = rec.URL
		}
		sb.WriteString(fmt.Sprintf("  [%s] %s %s\n", rec.Status, rec.Type, target))
		if rec.ErrorMessage != "" {
			sb.WriteString(fmt.Sprintf("        %s\n", rec.ErrorMessage))
		}
		if w.verbose && rec.LinkURL != "" {
			sb.WriteString(fmt.Sprintf("        found on: %s\n", rec.URL))
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by webaudit\n")
	sb.WriteString("https://github.com/webaudit/webaudit\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
