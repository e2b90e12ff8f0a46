package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/webaudit/webaudit/internal/model"
)

// MarkdownWriter outputs report summaries in Markdown format, designed
// for sharing in pull requests and documentation.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report summary in Markdown format.
func (w *MarkdownWriter) Write(report *model.AuditReport) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := report.Summarize()

	w.writeHeader(md, report)
	w.writeSummary(md, summary)
	w.writeFailures(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.AuditReport) {
	md.H1("Web Audit Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Target", "`" + report.Target + "`"},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Pages Crawled", strconv.Itoa(report.PagesCrawled)},
			{"Status", w.getStatusText(report)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.AuditReport) string {
	switch {
	case report.State == model.StateFailedAuth:
		return "❌ Authentication failed - " + report.ErrorMessage
	case report.ErrorMessage != "":
		return "⚠️ Aborted - " + report.ErrorMessage
	default:
		return "✅ Complete"
	}
}

// writeSummary writes the outcome summary section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, summary *model.Summary) {
	md.H2("Outcome Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"🟢 Pass", strconv.Itoa(summary.ByStatus[model.StatusPass])},
			{"🔴 Fail", strconv.Itoa(summary.ByStatus[model.StatusFail])},
			{"🟠 Error", strconv.Itoa(summary.ByStatus[model.StatusError])},
			{"⚪ Unknown", strconv.Itoa(summary.ByStatus[model.StatusUnknown])},
			{"🔵 External", strconv.Itoa(summary.ByStatus[model.StatusExternal])},
			{"**Total**", "**" + strconv.Itoa(summary.Total) + "**"},
		},
	})
	md.PlainText("")

	if summary.Total > 0 {
		w.writePieChart(md, summary)
	}
	w.writeAlert(md, summary)
}

// writePieChart writes a mermaid pie chart for the outcome distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary *model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Audit Outcome Distribution"),
		piechart.WithShowData(true),
	)

	for _, status := range []model.Status{
		model.StatusPass,
		model.StatusFail,
		model.StatusError,
		model.StatusUnknown,
		model.StatusExternal,
	} {
		if n := summary.ByStatus[status]; n > 0 {
			chart.LabelAndIntValue(string(status), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert based on outcome counts.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, summary *model.Summary) {
	fails := summary.ByStatus[model.StatusFail]
	errs := summary.ByStatus[model.StatusError]

	switch {
	case errs > 0:
		md.Cautionf("%d check(s) could not complete. Investigate the ERROR records first.", errs)
	case fails > 0:
		md.Warningf("%d check(s) failed. Broken links or rejected form submissions were found.", fails)
	case summary.ByStatus[model.StatusUnknown] > 0:
		md.Note(fmt.Sprintf("%d check(s) had undetectable outcomes.", summary.ByStatus[model.StatusUnknown]))
	default:
		md.Tip("All checks passed.")
	}
	md.PlainText("")
}

// writeFailures writes a table of every FAIL and ERROR record.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, report *model.AuditReport) {
	md.H2("Failures")
	md.PlainText("")

	failed := failures(report)
	if len(failed) == 0 {
		md.PlainText("No failures recorded.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(failed))
	for i, rec := range failed {
		target := rec.LinkURL
		if target == "" {
			target = rec.URL
		}
		detail := rec.ErrorMessage
		if detail == "" {
			detail = "-"
		}
		rows[i] = []string{
			string(rec.Type),
			string(rec.Status),
			truncateString(target, 60),
			truncateString(detail, 60),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Check", "Status", "Target", "Detail"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [webaudit](https://github.com/webaudit/webaudit)*")
}
