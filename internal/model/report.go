package model

import "time"

// State is the scheduler's lifecycle state.
//
// The transitions are linear: INIT → AUTHENTICATING, then either
// FAILED_AUTH (terminal) or CRAWLING → DONE (terminal). There is no
// retry path: failed authentication aborts the whole run.
type State string

// Scheduler states.
const (
	StateInit           State = "INIT"
	StateAuthenticating State = "AUTHENTICATING"
	StateFailedAuth     State = "FAILED_AUTH"
	StateCrawling       State = "CRAWLING"
	StateDone           State = "DONE"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateFailedAuth || s == StateDone
}

// AuditReport is the main result structure of a run. The CSV file is the
// durable record; this struct carries the same records in memory for
// summary generation, history persistence, and tests.
type AuditReport struct {
	// Target is the audited base URL.
	Target string `json:"target"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run ended, terminal state reached.
	FinishedAt time.Time `json:"finished_at"`

	// State is the final scheduler state.
	State State `json:"state"`

	// PagesCrawled is the number of pages actually visited.
	// Never exceeds the configured page cap.
	PagesCrawled int `json:"pages_crawled"`

	// Records holds every emitted record in production order.
	Records []Record `json:"records"`

	// ErrorMessage is set when the run aborted (failed auth).
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewAuditReport creates an AuditReport in the initial state.
func NewAuditReport(target string) *AuditReport {
	return &AuditReport{
		Target:    target,
		StartedAt: time.Now(),
		State:     StateInit,
		Records:   make([]Record, 0),
	}
}

// Append adds a record to the in-memory record list.
func (r *AuditReport) Append(rec Record) {
	r.Records = append(r.Records, rec)
}

// Summary aggregates the run's records for human-readable reporting.
type Summary struct {
	Target       string        `json:"target"`
	State        State         `json:"state"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	PagesCrawled int           `json:"pages_crawled"`

	// ByType counts records per record type.
	ByType map[RecordType]int `json:"by_type"`

	// ByStatus counts records per outcome.
	ByStatus map[Status]int `json:"by_status"`

	Total int `json:"total"`
}

// Summarize computes the aggregate counts over the report's records.
func (r *AuditReport) Summarize() *Summary {
	s := &Summary{
		Target:       r.Target,
		State:        r.State,
		StartedAt:    r.StartedAt,
		Duration:     r.FinishedAt.Sub(r.StartedAt),
		PagesCrawled: r.PagesCrawled,
		ByType:       make(map[RecordType]int),
		ByStatus:     make(map[Status]int),
		Total:        len(r.Records),
	}

	for _, rec := range r.Records {
		s.ByType[rec.Type]++
		s.ByStatus[rec.Status]++
	}

	return s
}

// PassRate returns the fraction of records with status PASS among those
// with a pass/fail outcome (EXTERNAL and UNKNOWN records are excluded
// from the denominator). Returns 1.0 when nothing was checkable.
func (s *Summary) PassRate() float64 {
	passed := s.ByStatus[StatusPass]
	failed := s.ByStatus[StatusFail] + s.ByStatus[StatusError]
	if passed+failed == 0 {
		return 1.0
	}
	return float64(passed) / float64(passed+failed)
}
