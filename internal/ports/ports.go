package ports

import (
	"context"

	"scanbridge/internal/domain"
)

// ScanController drives scan sessions on the scanner's web UI.
type ScanController interface {
	StartScan(ctx context.Context, camera string) (domain.SessionResult, error)
	StartScanAsync(ctx context.Context, camera string) error
	RequestPause() error
	RequestStop() error
	Status() domain.SessionStatus
}

// Bridge is the job queue used by remote conversion workers.
type Bridge interface {
	Submit(ctx context.Context, spec domain.JobSpec) (domain.Job, error)
	ClaimNext(ctx context.Context, worker string) (job domain.Job, found bool, err error)
	Complete(ctx context.Context, jobID string, outcome domain.Outcome) (domain.Job, error)
	Get(ctx context.Context, jobID string) (domain.Job, error)
}
