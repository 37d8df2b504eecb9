// Package jobs runs the daemon's scheduled spin passes and keeps the session
// pool in sync with the credential directory.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/bnema/spin-accounts-cli/internal/log"
	"github.com/bnema/spin-accounts-cli/internal/metrics"
)

// Job is one named unit of scheduled work.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Entry describes a registered job and its next activation.
type Entry struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}

// Scheduler wraps a cron runner. Overlapping activations of the same job are
// skipped, and a panicking job is recovered and logged.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger

	mu   sync.Mutex
	jobs map[cron.EntryID]Job
}

func NewScheduler(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}

	logger := log.WithComponent("jobs")
	cronLog := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	return &Scheduler{
		cron:   c,
		logger: logger,
		jobs:   make(map[cron.EntryID]Job),
	}
}

// Add registers job. ctx is handed to every activation, so cancelling it
// aborts in-flight runs.
func (s *Scheduler) Add(ctx context.Context, job Job) error {
	if job.Name == "" {
		return errors.New("job name is empty")
	}
	if job.Run == nil {
		return fmt.Errorf("job %s has no run function", job.Name)
	}

	id, err := s.cron.AddFunc(job.Spec, func() {
		s.runJob(ctx, job)
	})
	if err != nil {
		return fmt.Errorf("schedule job %s (%q): %w", job.Name, job.Spec, err)
	}

	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()

	s.logger.Info().Str("job", job.Name).Str("spec", job.Spec).Msg("job scheduled")
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}

	started := time.Now()
	s.logger.Info().Str("job", job.Name).Msg("job started")

	err := job.Run(ctx)
	metrics.RecordJobRun(job.Name, err)
	if err != nil {
		s.logger.Error().Err(err).Str("job", job.Name).Msg("job failed")
		return
	}

	s.logger.Info().Str("job", job.Name).Dur("duration", time.Since(started)).Msg("job finished")
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.Entries())).Msg("scheduler started")
}

// Stop halts new activations and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running jobs: %w", ctx.Err())
	}
}

// Entries lists registered jobs ordered by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.jobs))
	for _, entry := range s.cron.Entries() {
		job, ok := s.jobs[entry.ID]
		if !ok {
			continue
		}
		entries = append(entries, Entry{Name: job.Name, Spec: job.Spec, Next: entry.Next, Prev: entry.Prev})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return entries
}

// ParseLocation resolves a configured timezone name; empty means local time.
func ParseLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
