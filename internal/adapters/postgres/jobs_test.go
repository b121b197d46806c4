package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanbridge/internal/domain"
)

// testDB connects to BRIDGE_TEST_DATABASE_URL; the tests are skipped without it.
func testDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("BRIDGE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("BRIDGE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	_, err = db.Pool.Exec(ctx, `TRUNCATE bridge_jobs`)
	require.NoError(t, err)
	return db
}

func newJob() domain.Job {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Job{
		ID:        uuid.NewString(),
		State:     domain.JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
		JobSpec:   domain.JobSpec{CameraIPSuffix: "50", Workspace: "ws", OutDir: "out"},
	}
}

func TestJobLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, found, err := db.ClaimNext(ctx, "w1", time.Now())
	require.NoError(t, err)
	assert.False(t, found)

	first, second := newJob(), newJob()
	require.NoError(t, db.Create(ctx, first))
	require.NoError(t, db.Create(ctx, second))

	got, err := db.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, got.State)
	assert.Nil(t, got.AssignedTo)

	claimed, found, err := db.ClaimNext(ctx, "w1", time.Now())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, domain.JobRunning, claimed.State)
	require.NotNil(t, claimed.AssignedTo)
	assert.Equal(t, "w1", *claimed.AssignedTo)

	code := 2
	done, err := db.Complete(ctx, first.ID, domain.Outcome{OK: false, ExitCode: &code, Stderr: "bad"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, done.State)
	require.NotNil(t, done.ExitCode)
	assert.Equal(t, 2, *done.ExitCode)

	again, err := db.Complete(ctx, first.ID, domain.Outcome{OK: true}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, again.State)

	_, err = db.Complete(ctx, "missing", domain.Outcome{OK: true}, time.Now())
	require.ErrorIs(t, err, domain.ErrNotFound)
}
