package model

import (
	"testing"
	"time"
)

// TestStateTerminal tests terminal-state detection.
func TestStateTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  bool
	}{
		{StateInit, false},
		{StateAuthenticating, false},
		{StateCrawling, false},
		{StateFailedAuth, true},
		{StateDone, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			t.Parallel()

			if got := tt.state.Terminal(); got != tt.want {
				t.Errorf("%s.Terminal() = %v, expected %v", tt.state, got, tt.want)
			}
		})
	}
}

// TestSummarize tests aggregate counting.
func TestSummarize(t *testing.T) {
	t.Parallel()

	report := NewAuditReport("http://localhost:8000/")
	report.State = StateDone
	report.PagesCrawled = 2
	report.FinishedAt = report.StartedAt.Add(3 * time.Second)

	report.Append(Record{Type: RecordPageLoad, Status: StatusPass})
	report.Append(Record{Type: RecordInternalLink, Status: StatusPass})
	report.Append(Record{Type: RecordInternalLink, Status: StatusFail})
	report.Append(Record{Type: RecordExternalLink, Status: StatusExternal})
	report.Append(Record{Type: RecordFormSubmission, Status: StatusUnknown})

	s := report.Summarize()

	if s.Total != 5 {
		t.Errorf("Total = %d, expected 5", s.Total)
	}
	if s.ByType[RecordInternalLink] != 2 {
		t.Errorf("internal_link count = %d, expected 2", s.ByType[RecordInternalLink])
	}
	if s.ByStatus[StatusPass] != 2 {
		t.Errorf("PASS count = %d, expected 2", s.ByStatus[StatusPass])
	}
	if s.Duration != 3*time.Second {
		t.Errorf("Duration = %v, expected 3s", s.Duration)
	}
}

// TestPassRate tests the pass-rate denominator rules.
func TestPassRate(t *testing.T) {
	t.Parallel()

	t.Run("externals and unknowns excluded", func(t *testing.T) {
		t.Parallel()

		s := &Summary{ByStatus: map[Status]int{
			StatusPass:     3,
			StatusFail:     1,
			StatusExternal: 10,
			StatusUnknown:  5,
		}}

		if got := s.PassRate(); got != 0.75 {
			t.Errorf("PassRate = %v, expected 0.75", got)
		}
	})

	t.Run("nothing checkable yields 1.0", func(t *testing.T) {
		t.Parallel()

		s := &Summary{ByStatus: map[Status]int{StatusExternal: 4}}
		if got := s.PassRate(); got != 1.0 {
			t.Errorf("PassRate = %v, expected 1.0", got)
		}
	})
}
