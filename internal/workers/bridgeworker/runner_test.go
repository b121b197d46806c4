package bridgeworker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanbridge/internal/domain"
)

type fakeSource struct {
	mu        sync.Mutex
	queue     []domain.Job
	claimErrs int
	claims    int
	claimed   int
	completed map[string]domain.Outcome
}

func (s *fakeSource) ClaimNext(ctx context.Context) (domain.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims++
	if s.claimErrs > 0 {
		s.claimErrs--
		return domain.Job{}, false, errors.New("bridge unreachable")
	}
	if len(s.queue) == 0 {
		return domain.Job{}, false, nil
	}
	job := s.queue[0]
	s.queue = s.queue[1:]
	s.claimed++
	return job, true, nil
}

func (s *fakeSource) Complete(ctx context.Context, jobID string, outcome domain.Outcome) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed == nil {
		s.completed = make(map[string]domain.Outcome)
	}
	s.completed[jobID] = outcome
	return domain.Job{ID: jobID}, nil
}

func (s *fakeSource) done() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}

func (s *fakeSource) claimedJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimed
}

func (s *fakeSource) outcome(id string) domain.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed[id]
}

type fakeProcessor struct {
	mu   sync.Mutex
	seen []string
}

func (p *fakeProcessor) Process(ctx context.Context, job domain.Job) domain.Outcome {
	p.mu.Lock()
	p.seen = append(p.seen, job.ID)
	p.mu.Unlock()
	code := 0
	if job.Workspace == "bad" {
		code = 3
		return domain.Outcome{ExitCode: &code, Stderr: "workspace not found"}
	}
	return domain.Outcome{OK: true, ExitCode: &code, OutputFiles: []string{job.ID + ".e57"}}
}

func TestRunProcessesQueuedJobs(t *testing.T) {
	src := &fakeSource{
		claimErrs: 1,
		queue: []domain.Job{
			{ID: "a", JobSpec: domain.JobSpec{Workspace: "ws", OutDir: "out"}},
			{ID: "b", JobSpec: domain.JobSpec{Workspace: "bad", OutDir: "out"}},
			{ID: "c", JobSpec: domain.JobSpec{Workspace: "ws", OutDir: "out"}},
		},
	}
	proc := &fakeProcessor{}
	ctx, cancel := context.WithCancel(context.Background())

	finished := make(chan struct{})
	go func() {
		Run(ctx, src, proc, 2, time.Millisecond)
		close(finished)
	}()

	require.Eventually(t, func() bool { return src.done() == 3 }, 2*time.Second, time.Millisecond)
	cancel()
	<-finished

	assert.True(t, src.outcome("a").OK)
	assert.False(t, src.outcome("b").OK)
	assert.Equal(t, "workspace not found", src.outcome("b").Stderr)
	assert.Equal(t, []string{"c.e57"}, src.outcome("c").OutputFiles)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, proc.seen)
}

func TestRunKeepsPollingEmptyQueue(t *testing.T) {
	src := &fakeSource{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	Run(ctx, src, &fakeProcessor{}, 1, 5*time.Millisecond)

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Greater(t, src.claims, 1)
	assert.Less(t, src.claims, 30)
	assert.Empty(t, src.completed)
}

func TestRunWithoutWorkers(t *testing.T) {
	src := &fakeSource{queue: []domain.Job{{ID: "a"}}}
	Run(context.Background(), src, &fakeProcessor{}, 0, time.Millisecond)
	assert.Zero(t, src.claims)
}

// blockingProcessor holds every job until release is closed.
type blockingProcessor struct {
	release chan struct{}
	mu      sync.Mutex
	running int
}

func (p *blockingProcessor) Process(ctx context.Context, job domain.Job) domain.Outcome {
	p.mu.Lock()
	p.running++
	p.mu.Unlock()
	<-p.release
	code := 0
	return domain.Outcome{OK: true, ExitCode: &code}
}

func (p *blockingProcessor) inFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func TestRunClaimsOnlyWhenWorkerIsFree(t *testing.T) {
	src := &fakeSource{queue: []domain.Job{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	proc := &blockingProcessor{release: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finished := make(chan struct{})
	go func() {
		Run(ctx, src, proc, 1, time.Millisecond)
		close(finished)
	}()

	require.Eventually(t, func() bool { return proc.inFlight() == 1 }, 2*time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, src.claimedJobs())

	// Shutting down leaves unclaimed jobs queued for other workers.
	cancel()
	close(proc.release)
	<-finished

	assert.Equal(t, 1, src.claimedJobs())
	assert.Equal(t, 1, src.done())
	assert.True(t, src.outcome("a").OK)
	src.mu.Lock()
	assert.Len(t, src.queue, 2)
	src.mu.Unlock()
}

func TestRunNeverExceedsConcurrency(t *testing.T) {
	var queue []domain.Job
	for i := range 6 {
		queue = append(queue, domain.Job{ID: string(rune('a' + i))})
	}
	src := &fakeSource{queue: queue}
	proc := &blockingProcessor{release: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())

	finished := make(chan struct{})
	go func() {
		Run(ctx, src, proc, 2, time.Millisecond)
		close(finished)
	}()

	require.Eventually(t, func() bool { return proc.inFlight() == 2 }, 2*time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, src.claimedJobs())

	close(proc.release)
	require.Eventually(t, func() bool { return src.done() == 6 }, 2*time.Second, time.Millisecond)
	cancel()
	<-finished
	assert.Equal(t, 6, src.claimedJobs())
}
