package model

import (
	"fmt"
	"strconv"
	"time"
)

// RecordType identifies what kind of check produced a record.
type RecordType string

// Record types emitted during an audit run.
const (
	// RecordPageLoad is emitted once per page the crawler navigates to.
	RecordPageLoad RecordType = "page_load"

	// RecordInternalLink is emitted for every same-host link discovered
	// on a page, once per appearance.
	RecordInternalLink RecordType = "internal_link"

	// RecordExternalLink is emitted for links pointing at a different
	// host. External links are recorded but never navigated.
	RecordExternalLink RecordType = "external_link"

	// RecordFormSubmission is emitted for every form the auditor
	// submitted (or skipped as destructive).
	RecordFormSubmission RecordType = "form_submission"
)

// Status is the outcome classification of a single check.
type Status string

// Outcome classifications.
//
// Design decision: FAIL and ERROR are distinct on purpose. FAIL means the
// target application rejected the operation (a 404 link, a form validation
// error), an expected and reportable outcome. ERROR means the check itself
// broke (timeout, DNS failure, exception during submission). UNKNOWN means
// the outcome could not be determined within the bounded wait and is not
// an error condition.
const (
	StatusPass     Status = "PASS"
	StatusFail     Status = "FAIL"
	StatusError    Status = "ERROR"
	StatusUnknown  Status = "UNKNOWN"
	StatusExternal Status = "EXTERNAL"
)

// Columns is the fixed CSV column set, in output order.
// The report file always has exactly these eight columns.
var Columns = []string{
	"type", "url", "link_url", "link_text",
	"status", "response_time", "error_message", "timestamp",
}

// TimestampLayout is the timestamp format used in report rows.
// Matches time.DateTime ("2006-01-02 15:04:05"), second resolution.
const TimestampLayout = time.DateTime

// Record is one immutable audit result row.
//
// Every record belongs to exactly one source page (URL), which is a member
// of the visited set by the time the record is written. Records are
// append-only: once emitted to a sink they are never rewritten.
type Record struct {
	// Type is the record type (page_load, internal_link, ...).
	Type RecordType

	// URL is the source page the check ran against.
	URL string

	// LinkURL is the check target: the resolved link URL for link
	// records, the form action for form records, empty for page loads.
	LinkURL string

	// LinkText is the human-readable label: anchor text for links,
	// a form identifier for forms, the page title for page loads.
	LinkText string

	// Status is the outcome classification.
	Status Status

	// ResponseTime is how long the probe or page load took.
	// Zero means not measured; the CSV cell is left empty.
	ResponseTime time.Duration

	// ErrorMessage carries failure detail, empty on success.
	ErrorMessage string

	// Timestamp is when the record was produced. Timestamps are
	// monotonically non-decreasing within a run.
	Timestamp time.Time
}

// Fields returns the record as CSV cells in Columns order.
func (r Record) Fields() []string {
	responseTime := ""
	if r.ResponseTime > 0 {
		responseTime = strconv.FormatInt(r.ResponseTime.Milliseconds(), 10)
	}
	return []string{
		string(r.Type),
		r.URL,
		r.LinkURL,
		r.LinkText,
		string(r.Status),
		responseTime,
		r.ErrorMessage,
		r.Timestamp.Format(TimestampLayout),
	}
}

// Key returns the identity tuple used for cross-run comparison.
// Two runs against an unchanged site should produce the same set of keys
// (form submissions that mutate state excepted).
func (r Record) Key() string {
	return string(r.Type) + "|" + r.URL + "|" + r.LinkURL + "|" + string(r.Status)
}

// ParseRecord reconstructs a Record from CSV cells in Columns order.
// It is the inverse of Fields and is used by the history differ and tests.
func ParseRecord(fields []string) (Record, error) {
	if len(fields) != len(Columns) {
		return Record{}, fmt.Errorf("record has %d fields, expected %d", len(fields), len(Columns))
	}

	rec := Record{
		Type:         RecordType(fields[0]),
		URL:          fields[1],
		LinkURL:      fields[2],
		LinkText:     fields[3],
		Status:       Status(fields[4]),
		ErrorMessage: fields[6],
	}

	if !rec.Type.Valid() {
		return Record{}, fmt.Errorf("unknown record type %q", fields[0])
	}
	if !rec.Status.Valid() {
		return Record{}, fmt.Errorf("unknown status %q", fields[4])
	}

	if fields[5] != "" {
		ms, err := strconv.ParseInt(fields[5], 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("invalid response_time %q: %w", fields[5], err)
		}
		rec.ResponseTime = time.Duration(ms) * time.Millisecond
	}

	ts, err := time.Parse(TimestampLayout, fields[7])
	if err != nil {
		return Record{}, fmt.Errorf("invalid timestamp %q: %w", fields[7], err)
	}
	rec.Timestamp = ts

	return rec, nil
}

// Valid reports whether t is one of the defined record types.
func (t RecordType) Valid() bool {
	switch t {
	case RecordPageLoad, RecordInternalLink, RecordExternalLink, RecordFormSubmission:
		return true
	}
	return false
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPass, StatusFail, StatusError, StatusUnknown, StatusExternal:
		return true
	}
	return false
}
