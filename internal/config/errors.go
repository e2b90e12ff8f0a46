package config

import "errors"

// Configuration validation errors, returned by Config.Validate.
// Package-level sentinels so callers can match with errors.Is while the
// messages stay human-readable.
var (
	// ErrNoTarget is returned when no base URL was supplied.
	ErrNoTarget = errors.New("no target specified: provide a base URL as an argument")

	// ErrMissingCredentials is returned when the login email or password
	// is absent. An unauthenticated crawl would only see the login page,
	// so credentials are mandatory.
	ErrMissingCredentials = errors.New("missing credentials: --email and --password (or config file entries) are required")

	// ErrInvalidPageCap is returned when the page cap is not positive.
	ErrInvalidPageCap = errors.New("invalid page cap: must be positive")

	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidSettleWait is returned when the settle wait is negative.
	// Use 0 to disable the post-load pause.
	ErrInvalidSettleWait = errors.New("invalid settle wait: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingSummaryFormats is returned when both --json and
	// --markdown are specified.
	ErrConflictingSummaryFormats = errors.New("conflicting summary formats: --json and --markdown cannot be used together")
)
