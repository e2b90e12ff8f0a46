package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/webaudit/webaudit/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, report *model.AuditReport) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, report *model.AuditReport) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, report)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()

		if p == nil {
			t.Fatal("expected non-nil pipeline")
		}
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		p := New(WithContinueOnError(true))

		if !p.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

// TestPipelineAddStep tests adding steps to the pipeline.
func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddStep(&mockStep{name: "first"})
	p.AddSteps(&mockStep{name: "second"}, &mockStep{name: "third"})

	if p.StepCount() != 3 {
		t.Fatalf("expected 3 steps, got %d", p.StepCount())
	}

	names := p.StepNames()
	want := []string{"first", "second", "third"}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("step %d = %q, expected %q", i, names[i], name)
		}
	}
}

// TestPipelineExecute tests step execution behavior.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes steps in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		step := func(name string) *mockStep {
			return &mockStep{
				name: name,
				doFunc: func(_ context.Context, _ *model.AuditReport) error {
					order = append(order, name)
					return nil
				},
			}
		}

		p := New()
		p.AddSteps(step("a"), step("b"), step("c"))

		report := model.NewAuditReport("https://app.example.com")
		if err := p.Execute(context.Background(), report); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}

		if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
			t.Errorf("execution order = %v, expected [a b c]", order)
		}
	})

	t.Run("stops on first error by default", func(t *testing.T) {
		t.Parallel()

		stepErr := errors.New("login rejected")
		failing := &mockStep{
			name: "failing",
			doFunc: func(_ context.Context, _ *model.AuditReport) error {
				return stepErr
			},
		}
		after := &mockStep{name: "after"}

		p := New()
		p.AddSteps(failing, after)

		report := model.NewAuditReport("https://app.example.com")
		err := p.Execute(context.Background(), report)
		if !errors.Is(err, stepErr) {
			t.Fatalf("Execute() error = %v, expected %v", err, stepErr)
		}
		if after.callCount != 0 {
			t.Error("expected subsequent step to be skipped")
		}
		if report.ErrorMessage != stepErr.Error() {
			t.Errorf("ErrorMessage = %q, expected %q", report.ErrorMessage, stepErr.Error())
		}
	})

	t.Run("continues after failure when configured", func(t *testing.T) {
		t.Parallel()

		failing := &mockStep{
			name: "failing",
			doFunc: func(_ context.Context, _ *model.AuditReport) error {
				return errors.New("crawl aborted")
			},
		}
		after := &mockStep{name: "after"}

		p := New(WithContinueOnError(true))
		p.AddSteps(failing, after)

		report := model.NewAuditReport("https://app.example.com")
		if err := p.Execute(context.Background(), report); err != nil {
			t.Fatalf("Execute() error = %v, expected nil", err)
		}
		if after.callCount != 1 {
			t.Error("expected subsequent step to run")
		}
		if report.ErrorMessage == "" {
			t.Error("expected failure to be recorded in report")
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		step := &mockStep{name: "never"}
		p := New()
		p.AddStep(step)

		report := model.NewAuditReport("https://app.example.com")
		err := p.Execute(ctx, report)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Execute() error = %v, expected context.Canceled", err)
		}
		if step.callCount != 0 {
			t.Error("expected no step to run after cancellation")
		}
		if report.ErrorMessage == "" {
			t.Error("expected cancellation to be recorded in report")
		}
	})
}
