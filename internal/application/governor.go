package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/bnema/spin-accounts-cli/internal/metrics"
	"github.com/bnema/spin-accounts-cli/internal/ports"
)

// RateGovernor spaces remote calls per account and optionally caps how many
// workflows run at once. Accounts never wait on each other's limiter.
type RateGovernor struct {
	clock       ports.Clock
	minInterval time.Duration
	limiters    sync.Map // account name -> *rate.Limiter
	workflows   *semaphore.Weighted
}

func NewRateGovernor(minInterval time.Duration, maxWorkflows int, clock ports.Clock) *RateGovernor {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	g := &RateGovernor{clock: clock, minInterval: minInterval}
	if maxWorkflows > 0 {
		g.workflows = semaphore.NewWeighted(int64(maxWorkflows))
	}
	return g
}

// Admit blocks until at least the minimum interval has passed since the
// previous admission for name.
func (g *RateGovernor) Admit(ctx context.Context, name string) error {
	if g.minInterval <= 0 {
		return ctx.Err()
	}

	limiter := g.limiter(name)
	now := g.clock.Now()
	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return fmt.Errorf("admit %s: limiter refused reservation", name)
	}

	delay := reservation.DelayFrom(now)
	metrics.ObserveGovernorWait(delay)
	if delay <= 0 {
		return nil
	}

	if err := g.clock.Sleep(ctx, delay); err != nil {
		reservation.CancelAt(g.clock.Now())
		return fmt.Errorf("admit %s: %w", name, err)
	}
	return nil
}

// Acquire takes a workflow slot; it is a no-op when no ceiling is configured.
func (g *RateGovernor) Acquire(ctx context.Context) error {
	if g.workflows == nil {
		return nil
	}
	return g.workflows.Acquire(ctx, 1)
}

func (g *RateGovernor) Release() {
	if g.workflows == nil {
		return
	}
	g.workflows.Release(1)
}

func (g *RateGovernor) limiter(name string) *rate.Limiter {
	if existing, ok := g.limiters.Load(name); ok {
		return existing.(*rate.Limiter)
	}

	created := rate.NewLimiter(rate.Every(g.minInterval), 1)
	actual, _ := g.limiters.LoadOrStore(name, created)
	return actual.(*rate.Limiter)
}
