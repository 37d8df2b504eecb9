package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/log"
	"github.com/bnema/spin-accounts-cli/internal/metrics"
	"github.com/bnema/spin-accounts-cli/internal/ports"
)

// BatchCoordinator fans a workflow out over many accounts. Callers always get
// exactly one result per requested name, in request order.
type BatchCoordinator struct {
	rt *Runtime
}

func NewBatchCoordinator(rt *Runtime) *BatchCoordinator {
	return &BatchCoordinator{rt: rt}
}

// RunBatch runs workflow for every name concurrently.
func (b *BatchCoordinator) RunBatch(ctx context.Context, names []string, workflow AccountWorkflow, onProgress ports.ProgressFunc) []domain.BatchResult {
	progress := newProgressThrottle(b.rt.Clock, b.rt.Settings.ProgressInterval, len(names), onProgress)
	return b.runBatch(ctx, names, workflow, progress, 0)
}

// RunChunked runs names in sequential chunks of batchSize; accounts inside a
// chunk run concurrently.
func (b *BatchCoordinator) RunChunked(ctx context.Context, names []string, batchSize int, workflow AccountWorkflow, onProgress ports.ProgressFunc) []domain.BatchResult {
	if batchSize <= 0 || batchSize >= len(names) {
		return b.RunBatch(ctx, names, workflow, onProgress)
	}

	progress := newProgressThrottle(b.rt.Clock, b.rt.Settings.ProgressInterval, len(names), onProgress)
	results := make([]domain.BatchResult, 0, len(names))
	for start := 0; start < len(names); start += batchSize {
		end := min(start+batchSize, len(names))
		results = append(results, b.runBatch(ctx, names[start:end], workflow, progress, start)...)
	}
	return results
}

func (b *BatchCoordinator) runBatch(ctx context.Context, names []string, workflow AccountWorkflow, progress *progressThrottle, offset int) []domain.BatchResult {
	results := make([]domain.BatchResult, len(names))
	if offset == 0 {
		progress.start()
	}

	var group errgroup.Group
	for i, name := range names {
		group.Go(func() error {
			defer progress.done()

			if err := b.rt.Governor.Acquire(ctx); err != nil {
				results[i] = domain.FailedResult(name, err)
				return nil
			}
			defer b.rt.Governor.Release()

			results[i] = runGuarded(ctx, name, workflow)
			return nil
		})
	}
	_ = group.Wait()

	return results
}

// runGuarded turns a panicking workflow into a failed result.
func runGuarded(ctx context.Context, name string, workflow AccountWorkflow) (result domain.BatchResult) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger := log.ForAccount(ctx, "batch", name)
			logger.Error().Interface("panic", recovered).Msg("workflow panicked")
			result = domain.FailedResult(name, fmt.Errorf("workflow panic: %v", recovered))
			result.ErrorKind = domain.KindUnexpected
		}
	}()

	if err := ctx.Err(); err != nil {
		return domain.FailedResult(name, err)
	}

	result = workflow(ctx, name)
	result.AccountName = name
	return result
}

// Execute runs a named workflow as one recorded batch run: it assigns a run
// ID, records the run in the ledger and sends a summary notification.
func (b *BatchCoordinator) Execute(ctx context.Context, kind domain.Workflow, names []string, batchSize int, workflow AccountWorkflow, onProgress ports.ProgressFunc) domain.BatchRun {
	run := domain.BatchRun{
		ID:        uuid.NewString(),
		Workflow:  kind,
		StartedAt: b.rt.Clock.Now(),
	}
	ctx = log.ContextWithRunID(ctx, run.ID)
	logger := log.FromContext(ctx, "batch")
	logger.Info().Str("workflow", string(kind)).Int("accounts", len(names)).Msg("batch started")

	run.Results = b.RunChunked(ctx, names, batchSize, workflow, onProgress)
	run.FinishedAt = b.rt.Clock.Now()

	for _, result := range run.Results {
		metrics.RecordBatchResult(string(kind), result.Success)
	}
	metrics.ObserveBatchDuration(string(kind), run.Duration())

	recordCtx := context.WithoutCancel(ctx)
	if b.rt.Ledger != nil {
		if err := b.rt.Ledger.Record(recordCtx, run); err != nil {
			logger.Warn().Err(err).Msg("record run failed")
		}
	}

	summary := run.Summary()
	logger.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Dur("duration", run.Duration()).
		Msg("batch finished")
	if len(names) > 0 {
		b.rt.notify(recordCtx, summaryNotification(run))
	}

	return run
}

func summaryNotification(run domain.BatchRun) string {
	summary := run.Summary()
	message := fmt.Sprintf("%s run %s: %d/%d succeeded", run.Workflow, shortRunID(run.ID), summary.Succeeded, summary.Total)
	if summary.HighValue > 0 {
		message += fmt.Sprintf(", %d high-value", summary.HighValue)
	}
	return message + fmt.Sprintf(" (%s)", run.Duration().Round(time.Second))
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// progressThrottle forwards progress at most once per interval, except the
// initial zero and the final total which are always delivered.
type progressThrottle struct {
	clock    ports.Clock
	interval time.Duration
	total    int
	report   ports.ProgressFunc

	mu        sync.Mutex
	completed int
	last      time.Time
}

func newProgressThrottle(clock ports.Clock, interval time.Duration, total int, report ports.ProgressFunc) *progressThrottle {
	return &progressThrottle{clock: clock, interval: interval, total: total, report: report}
}

func (p *progressThrottle) start() {
	if p.report == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = p.clock.Now()
	p.report(0, p.total)
}

func (p *progressThrottle) done() {
	if p.report == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.completed++
	now := p.clock.Now()
	if p.completed < p.total && now.Sub(p.last) < p.interval {
		return
	}
	p.last = now
	p.report(p.completed, p.total)
}
