package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/webaudit/webaudit/internal/model"
)

// TestBatchProcessor tests concurrent multi-target auditing.
func TestBatchProcessor(t *testing.T) {
	t.Parallel()

	t.Run("audits every target and keeps input order", func(t *testing.T) {
		t.Parallel()

		factory := func(_ *model.AuditReport) (*Pipeline, error) {
			p := New()
			p.AddStep(&mockStep{
				name: "crawl",
				doFunc: func(_ context.Context, report *model.AuditReport) error {
					report.State = model.StateDone
					return nil
				},
			})
			return p, nil
		}

		bp := NewBatchProcessor(factory, WithConcurrency(2))
		targets := []string{
			"https://one.example.com",
			"https://two.example.com",
			"https://three.example.com",
		}

		reports, err := bp.ProcessBatch(context.Background(), targets)
		if err != nil {
			t.Fatalf("ProcessBatch() error = %v", err)
		}

		if len(reports) != len(targets) {
			t.Fatalf("got %d reports, expected %d", len(reports), len(targets))
		}
		for i, target := range targets {
			if reports[i] == nil {
				t.Fatalf("report %d is nil", i)
			}
			if reports[i].Target != target {
				t.Errorf("report %d target = %q, expected %q", i, reports[i].Target, target)
			}
			if reports[i].State != model.StateDone {
				t.Errorf("report %d state = %q, expected DONE", i, reports[i].State)
			}
		}
	})

	t.Run("one failing audit does not stop the batch", func(t *testing.T) {
		t.Parallel()

		factory := func(_ *model.AuditReport) (*Pipeline, error) {
			p := New()
			p.AddStep(&mockStep{
				name: "crawl",
				doFunc: func(_ context.Context, report *model.AuditReport) error {
					if report.Target == "https://bad.example.com" {
						return errors.New("connection refused")
					}
					report.State = model.StateDone
					return nil
				},
			})
			return p, nil
		}

		bp := NewBatchProcessor(factory)
		targets := []string{
			"https://good.example.com",
			"https://bad.example.com",
			"https://also-good.example.com",
		}

		reports, err := bp.ProcessBatch(context.Background(), targets)
		if err != nil {
			t.Fatalf("ProcessBatch() error = %v", err)
		}

		if reports[0].State != model.StateDone || reports[2].State != model.StateDone {
			t.Error("expected the healthy targets to complete")
		}
		if reports[1].ErrorMessage == "" {
			t.Error("expected the failure to be recorded in its report")
		}
	})

	t.Run("factory failure is recorded in the report", func(t *testing.T) {
		t.Parallel()

		factory := func(_ *model.AuditReport) (*Pipeline, error) {
			return nil, errors.New("chrome not found")
		}

		bp := NewBatchProcessor(factory)
		reports, err := bp.ProcessBatch(context.Background(), []string{"https://app.example.com"})
		if err != nil {
			t.Fatalf("ProcessBatch() error = %v", err)
		}

		if reports[0].ErrorMessage == "" {
			t.Error("expected setup failure to be recorded")
		}
		if reports[0].FinishedAt.IsZero() {
			t.Error("expected FinishedAt to be set")
		}
	})

	t.Run("callback fires once per target", func(t *testing.T) {
		t.Parallel()

		factory := func(_ *model.AuditReport) (*Pipeline, error) {
			return New(), nil
		}

		bp := NewBatchProcessor(factory, WithConcurrency(3))
		targets := []string{
			"https://one.example.com",
			"https://two.example.com",
		}

		var mu sync.Mutex
		seen := make(map[int]string)
		_, err := bp.ProcessBatchWithCallback(context.Background(), targets,
			func(report *model.AuditReport, index int) {
				mu.Lock()
				seen[index] = report.Target
				mu.Unlock()
			})
		if err != nil {
			t.Fatalf("ProcessBatchWithCallback() error = %v", err)
		}

		if len(seen) != 2 {
			t.Fatalf("callback fired %d times, expected 2", len(seen))
		}
		for i, target := range targets {
			if seen[i] != target {
				t.Errorf("callback index %d = %q, expected %q", i, seen[i], target)
			}
		}
	})

	t.Run("cancellation aborts pending targets", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		factory := func(_ *model.AuditReport) (*Pipeline, error) {
			return New(), nil
		}

		bp := NewBatchProcessor(factory, WithConcurrency(1))
		_, err := bp.ProcessBatch(ctx, []string{"https://one.example.com", "https://two.example.com"})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("ProcessBatch() error = %v, expected context.Canceled", err)
		}
	})
}
