// Package bridgeworker pulls conversion jobs from the bridge and runs them.
package bridgeworker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"scanbridge/internal/domain"
	applog "scanbridge/internal/log"
	"scanbridge/internal/metrics"
)

// JobSource is the bridge as seen by a worker.
type JobSource interface {
	ClaimNext(ctx context.Context) (domain.Job, bool, error)
	Complete(ctx context.Context, jobID string, outcome domain.Outcome) (domain.Job, error)
}

// Processor performs the conversion work for one claimed job. The outcome is
// reported whether or not the work succeeded.
type Processor interface {
	Process(ctx context.Context, job domain.Job) domain.Outcome
}

// Run starts a dispatcher and concurrency workers, and blocks until ctx is done
// and every claimed job has been reported. A job is only claimed once a worker
// is free to run it, so other worker hosts can take queued jobs meanwhile.
func Run(ctx context.Context, source JobSource, processor Processor, concurrency int, pollInterval time.Duration) {
	if concurrency < 1 {
		return
	}
	jobsCh := make(chan domain.Job)
	// slots holds one token per job between claim and report.
	slots := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	for i := range concurrency {
		wg.Go(func() {
			for job := range jobsCh {
				handle(ctx, i, source, processor, job)
				<-slots
			}
		})
	}

	dispatch(ctx, source, jobsCh, slots, pollInterval)
	close(jobsCh)
	wg.Wait()
}

// dispatch claims one job per free slot. An empty queue or a failed claim waits
// for the limiter before polling again.
func dispatch(ctx context.Context, source JobSource, jobsCh chan<- domain.Job, slots chan struct{}, pollInterval time.Duration) {
	limiter := rate.NewLimiter(rate.Every(pollInterval), 1)
	for {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		if ctx.Err() != nil {
			return
		}
		job, found, err := source.ClaimNext(ctx)
		if err != nil && ctx.Err() == nil {
			slog.WarnContext(ctx, "job claim error", "error", err)
		}
		if err != nil || !found {
			<-slots
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			continue
		}
		slog.InfoContext(ctx, "claimed job", "job_id", job.ID, "workspace", job.Workspace)
		// Holding a slot means at most concurrency-1 jobs are in flight, so a
		// worker is waiting on the channel.
		jobsCh <- job
	}
}

func handle(ctx context.Context, idx int, source JobSource, processor Processor, job domain.Job) {
	ctx = applog.ContextAttrs(ctx, slog.String("job_id", job.ID), slog.Int("worker", idx))
	start := time.Now()
	outcome := processor.Process(ctx, job)

	result := "ok"
	if !outcome.OK {
		result = "failed"
	}
	metrics.WorkerJobsProcessed.WithLabelValues(result).Inc()
	slog.InfoContext(ctx, "job processed", "ok", outcome.OK, "exit_code", outcome.ExitCode,
		"files", len(outcome.OutputFiles), "duration", time.Since(start))

	// The report must reach the bridge even during shutdown.
	if _, err := source.Complete(context.WithoutCancel(ctx), job.ID, outcome); err != nil {
		slog.ErrorContext(ctx, "reporting job outcome failed", "error", err)
	}
}
