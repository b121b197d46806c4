package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"scanbridge/internal/domain"
	"scanbridge/internal/metrics"
	"scanbridge/internal/ports"
)

const (
	// OutputCap bounds stored stdout/stderr per job.
	OutputCap = 200000

	defaultCamera = "50"
	defaultWorker = "unknown"
)

type Service struct {
	jobs     ports.JobRepository
	validate *validator.Validate
	now      func() time.Time
}

func New(jobs ports.JobRepository) *Service {
	return &Service{
		jobs:     jobs,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Submit(ctx context.Context, spec domain.JobSpec) (domain.Job, error) {
	spec.Workspace = strings.TrimSpace(spec.Workspace)
	spec.OutDir = strings.TrimSpace(spec.OutDir)
	if err := s.validate.Struct(spec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return domain.Job{}, fmt.Errorf("%w: missing %s", domain.ErrInvalidSpec, strings.Join(fields, ", "))
		}
		return domain.Job{}, fmt.Errorf("%w: %v", domain.ErrInvalidSpec, err)
	}
	if spec.CameraIPSuffix == "" {
		spec.CameraIPSuffix = defaultCamera
	}

	now := s.now()
	job := domain.Job{
		ID:          uuid.NewString(),
		State:       domain.JobQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
		JobSpec:     spec,
		OutputFiles: []string{},
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return domain.Job{}, fmt.Errorf("store job: %w", err)
	}
	metrics.BridgeJobsSubmitted.Inc()
	slog.InfoContext(ctx, "bridge job queued", "job_id", job.ID, "workspace", spec.Workspace, "outdir", spec.OutDir)
	return job, nil
}

// ClaimNext returns found=false when nothing is queued; callers poll.
func (s *Service) ClaimNext(ctx context.Context, worker string) (domain.Job, bool, error) {
	if worker == "" {
		worker = defaultWorker
	}
	job, found, err := s.jobs.ClaimNext(ctx, worker, s.now())
	if err != nil {
		return domain.Job{}, false, fmt.Errorf("claim job: %w", err)
	}
	if found {
		metrics.BridgeJobsClaimed.Inc()
		slog.InfoContext(ctx, "bridge job claimed", "job_id", job.ID, "worker", worker)
	}
	return job, found, nil
}

// Complete records a worker's outcome. A duplicate report for a job that is
// already DONE or FAILED is accepted and leaves the job as it was.
func (s *Service) Complete(ctx context.Context, jobID string, outcome domain.Outcome) (domain.Job, error) {
	outcome.Stdout = Truncate(outcome.Stdout, OutputCap)
	outcome.Stderr = Truncate(outcome.Stderr, OutputCap)
	if outcome.OutputFiles == nil {
		outcome.OutputFiles = []string{}
	}
	job, err := s.jobs.Complete(ctx, jobID, outcome, s.now())
	if err != nil {
		return domain.Job{}, fmt.Errorf("complete job %s: %w", jobID, err)
	}
	metrics.BridgeJobsCompleted.WithLabelValues(string(job.State)).Inc()
	slog.InfoContext(ctx, "bridge job completed", "job_id", jobID, "state", job.State, "ok", outcome.OK)
	return job, nil
}

func (s *Service) Get(ctx context.Context, jobID string) (domain.Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
