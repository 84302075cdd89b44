// internal/app/system/tasks/runner.go

// Package tasks runs periodic background maintenance jobs.
package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a named periodic task. Run receives a context that is
// canceled when the runner stops.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner executes registered jobs on their intervals, one goroutine
// per job. A job that returns an error is logged and retried on the
// next tick.
type Runner struct {
	jobs   []Job
	logger *zap.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRunner creates a Runner with the given jobs.
func NewRunner(logger *zap.Logger, jobs ...Job) *Runner {
	return &Runner{
		jobs:   jobs,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start launches all job goroutines. Call Stop to shut them down.
func (r *Runner) Start() {
	for _, job := range r.jobs {
		r.wg.Add(1)
		go r.runJob(job)
	}
	r.logger.Info("task runner started", zap.Int("jobs", len(r.jobs)))
}

// Stop signals all jobs to exit and waits for them to finish.
func (r *Runner) Stop() {
	close(r.stopCh)
	r.wg.Wait()
	r.logger.Info("task runner stopped")
}

func (r *Runner) runJob(job Job) {
	defer r.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-r.stopCh
		cancel()
	}()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := job.Run(ctx); err != nil {
				r.logger.Error("background job failed",
					zap.String("job", job.Name),
					zap.Error(err))
			}
		}
	}
}
