package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/webaudit/webaudit/internal/config"
	"github.com/webaudit/webaudit/internal/model"
)

// BatchProcessor audits multiple targets with bounded concurrency.
//
// Each target gets a fresh pipeline from the factory: audits hold an
// exclusive browser session and must not share one, so the factory is
// expected to build a new session, scheduler, and output sink per
// target.
type BatchProcessor struct {
	// factory builds a fresh pipeline for one target. It is called
	// once per target, from the target's worker goroutine, and receives
	// the report the pipeline will run over so sinks can bind to it.
	factory func(report *model.AuditReport) (*Pipeline, error)

	// concurrency limits the number of targets audited in parallel.
	concurrency int

	// logger for structured logging.
	logger *slog.Logger

	// results collects reports, indexed like the input targets.
	results []*model.AuditReport

	// mu guards results.
	mu sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for the batch processor.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(bp *BatchProcessor) {
		bp.logger = logger
	}
}

// WithConcurrency sets the number of targets audited in parallel.
//
// Design decision: The default is config.DefaultBatchSize (one at a
// time), not some higher number. Every concurrent target costs a full
// Chrome instance, and audits submit forms that mutate application
// state, so ramping concurrency is an explicit operator choice.
func WithConcurrency(n int) BatchOption {
	return func(bp *BatchProcessor) {
		if n > 0 {
			bp.concurrency = n
		}
	}
}

// NewBatchProcessor creates a batch processor around a pipeline factory.
func NewBatchProcessor(factory func(report *model.AuditReport) (*Pipeline, error), opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		factory:     factory,
		concurrency: config.DefaultBatchSize,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(bp)
	}

	return bp
}

// ProcessBatch audits all targets and returns their reports in input
// order. A failed audit does not stop the batch: the failure is
// recorded in that target's report and the other audits continue. The
// returned error is non-nil only when the batch itself was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, targets []string) ([]*model.AuditReport, error) {
	return bp.process(ctx, targets, nil)
}

// ProcessBatchWithCallback audits all targets and calls the callback
// for each completed audit as it finishes. The callback receives the
// report and the index of the target in the original slice. It is
// called from the goroutine that completed the audit, so it should be
// thread-safe if it accesses shared state.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	targets []string,
	callback func(report *model.AuditReport, index int),
) ([]*model.AuditReport, error) {
	return bp.process(ctx, targets, callback)
}

func (bp *BatchProcessor) process(
	ctx context.Context,
	targets []string,
	callback func(report *model.AuditReport, index int),
) ([]*model.AuditReport, error) {
	startTime := time.Now()
	bp.logger.Info("starting batch audit",
		"targets", len(targets),
		"concurrency", bp.concurrency,
	)

	bp.results = make([]*model.AuditReport, len(targets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			report := bp.auditOne(ctx, target)

			bp.mu.Lock()
			bp.results[i] = report
			bp.mu.Unlock()

			if callback != nil {
				callback(report, i)
			}
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch audit complete",
		"targets", len(targets),
		"elapsed", time.Since(startTime),
	)

	return bp.results, err
}

// auditOne runs one target through a fresh pipeline. Errors end up in
// the report rather than aborting the batch.
func (bp *BatchProcessor) auditOne(ctx context.Context, target string) *model.AuditReport {
	report := model.NewAuditReport(target)

	p, err := bp.factory(report)
	if err != nil {
		report.ErrorMessage = fmt.Sprintf("build pipeline: %v", err)
		report.FinishedAt = time.Now()
		bp.logger.Warn("audit setup failed", "target", target, "error", err)
		return report
	}

	if err := p.Execute(ctx, report); err != nil {
		bp.logger.Warn("audit failed", "target", target, "error", err)
		return report
	}

	bp.logger.Info("audit completed", "target", target)
	return report
}
