// Package log provides secure logging utilities for webaudit.
// It wraps log/slog with a sanitizing handler that masks credentials,
// session cookies, and tokens before they reach the log stream. An audit
// run always carries the target application's login password, so the
// whole tool logs through this package rather than raw slog.
package log
