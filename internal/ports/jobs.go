package ports

import (
	"context"
	"time"

	"scanbridge/internal/domain"
)

// JobRepository stores bridge jobs in submission order.
type JobRepository interface {
	Create(ctx context.Context, job domain.Job) error
	// ClaimNext flips the oldest QUEUED job to RUNNING and assigns it to worker.
	ClaimNext(ctx context.Context, worker string, now time.Time) (job domain.Job, found bool, err error)
	// Complete records an outcome. Completing a terminal job returns it unchanged.
	Complete(ctx context.Context, jobID string, outcome domain.Outcome, now time.Time) (domain.Job, error)
	Get(ctx context.Context, jobID string) (domain.Job, error)
}
