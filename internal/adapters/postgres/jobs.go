package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"scanbridge/internal/domain"
)

const jobColumns = `id, state, created_at, updated_at, assigned_to, camera_ip_suffix, workspace, outdir,
	scan_index, ok, exit_code, stdout, stderr, output_files`

func scanJob(row pgx.Row) (domain.Job, error) {
	var job domain.Job
	var state string
	err := row.Scan(&job.ID, &state, &job.CreatedAt, &job.UpdatedAt, &job.AssignedTo,
		&job.CameraIPSuffix, &job.Workspace, &job.OutDir, &job.ScanIndex,
		&job.OK, &job.ExitCode, &job.Stdout, &job.Stderr, &job.OutputFiles)
	job.State = domain.JobState(state)
	if job.OutputFiles == nil {
		job.OutputFiles = []string{}
	}
	return job, err
}

func (db *DB) Create(ctx context.Context, job domain.Job) error {
	files := job.OutputFiles
	if files == nil {
		files = []string{}
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO bridge_jobs (id, state, created_at, updated_at, assigned_to, camera_ip_suffix,
			workspace, outdir, scan_index, output_files)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, job.ID, string(job.State), job.CreatedAt, job.UpdatedAt, job.AssignedTo, job.CameraIPSuffix,
		job.Workspace, job.OutDir, job.ScanIndex, files)
	return err
}

// ClaimNext selects the oldest queued job using SKIP LOCKED and marks it running.
func (db *DB) ClaimNext(ctx context.Context, worker string, now time.Time) (job domain.Job, found bool, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return job, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	var id string
	err = tx.QueryRow(ctx, `
		SELECT id FROM bridge_jobs
		WHERE state = 'QUEUED'
		ORDER BY seq
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return job, false, nil
	}
	if err != nil {
		return job, false, err
	}

	job, err = scanJob(tx.QueryRow(ctx, `
		UPDATE bridge_jobs SET state = 'RUNNING', assigned_to = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+jobColumns, id, worker, now))
	if err != nil {
		return job, false, err
	}
	return job, true, nil
}

func (db *DB) Complete(ctx context.Context, jobID string, outcome domain.Outcome, now time.Time) (domain.Job, error) {
	state := domain.JobFailed
	if outcome.OK {
		state = domain.JobDone
	}
	files := outcome.OutputFiles
	if files == nil {
		files = []string{}
	}
	job, err := scanJob(db.Pool.QueryRow(ctx, `
		UPDATE bridge_jobs
		SET ok = $2, exit_code = $3, stdout = $4, stderr = $5, output_files = $6, state = $7, updated_at = $8
		WHERE id = $1 AND state NOT IN ('DONE', 'FAILED')
		RETURNING `+jobColumns,
		jobID, outcome.OK, outcome.ExitCode, outcome.Stdout, outcome.Stderr, files, string(state), now))
	if errors.Is(err, pgx.ErrNoRows) {
		// unknown, or already terminal
		return db.Get(ctx, jobID)
	}
	return job, err
}

func (db *DB) Get(ctx context.Context, jobID string) (domain.Job, error) {
	job, err := scanJob(db.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM bridge_jobs WHERE id = $1`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Job{}, domain.ErrNotFound
	}
	return job, err
}
