// Package schedule runs the report pipeline on a cron expression.
package schedule

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled pipeline run.
type Job func(ctx context.Context) error

// Scheduler triggers a Job on a standard five-field cron expression. A run
// that is still in progress when the next tick fires causes that tick to be
// skipped.
type Scheduler struct {
	expr  string
	sched cron.Schedule
	cron  *cron.Cron
	job   Job

	mu      sync.Mutex
	runs    int
	lastErr error
	lastRun time.Time
}

// New parses expr as a cron expression and prepares a scheduler. It does not start ticking.
func New(expr string, job Job) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("schedule: nil job")
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}

	logger := cron.PrintfLogger(log.Default())
	s := &Scheduler{
		expr:  expr,
		sched: sched,
		job:   job,
		cron:  cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
	}
	return s, nil
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.sched.Next(t)
}

// Run registers the job and blocks until ctx is cancelled, then waits for an
// in-flight run to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.expr, func() { s.trigger(ctx) }); err != nil {
		return fmt.Errorf("scheduling job: %w", err)
	}

	s.cron.Start()
	log.Printf("Scheduler started (%s); next run at %s", s.expr, s.Next(time.Now()).Format("2006-01-02 15:04"))

	<-ctx.Done()
	log.Println("Scheduler stopping, waiting for running job...")
	<-s.cron.Stop().Done()
	return nil
}

// RunNow executes the job once outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) error {
	return s.trigger(ctx)
}

func (s *Scheduler) trigger(ctx context.Context) error {
	start := time.Now()
	log.Println("Scheduled run starting")
	err := s.job(ctx)

	s.mu.Lock()
	s.runs++
	s.lastErr = err
	s.lastRun = start
	s.mu.Unlock()

	if err != nil {
		log.Printf("Scheduled run failed after %s: %v", time.Since(start).Round(time.Second), err)
	} else {
		log.Printf("Scheduled run finished in %s", time.Since(start).Round(time.Second))
	}
	return err
}

// Status reports how many runs completed and the outcome of the last one.
func (s *Scheduler) Status() (runs int, lastRun time.Time, lastErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.lastRun, s.lastErr
}
