// Package report writes audit results.
//
// Two output shapes exist. The Sink interface receives records one at a
// time while the crawl runs; the CSV sink flushes after every append so
// the report file is live-tailable and survives a crash mid-run. The
// Writer interface renders a finished report as a human-readable
// summary (plain text, Markdown, or JSON).
package report
