package bridgeworker

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanbridge/internal/domain"
)

// fakeConverter writes a shell script standing in for the vendor executable.
func fakeConverter(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script converter")
	}
	exe := filepath.Join(t.TempDir(), "converter.sh")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"+body), 0o755))
	return exe
}

func TestArgs(t *testing.T) {
	p := ExecProcessor{Format: "e57"}
	job := domain.Job{JobSpec: domain.JobSpec{Workspace: `C:\ws.lsproj`, OutDir: `C:\out`}}
	assert.Equal(t, []string{"--workspace", `C:\ws.lsproj`, "--outdir", `C:\out\run_1`, "--latest", "--process", "--format", "e57"},
		p.Args(job, `C:\out\run_1`))

	idx := 4
	job.ScanIndex = &idx
	assert.Equal(t, []string{"--workspace", `C:\ws.lsproj`, "--outdir", `C:\out\run_1`, "--scan-index", "4", "--process", "--format", "e57"},
		p.Args(job, `C:\out\run_1`))
}

func TestProcessSuccess(t *testing.T) {
	exe := fakeConverter(t, `echo "converting $@"
touch "$4/scan_1.e57" "$4/notes.txt"
`)
	out := filepath.Join(t.TempDir(), "out")
	p := ExecProcessor{Exe: exe, Format: "e57", Timeout: 10 * time.Second}

	res := p.Process(context.Background(), domain.Job{JobSpec: domain.JobSpec{Workspace: "ws", OutDir: out}})
	assert.True(t, res.OK)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 0, *res.ExitCode)
	require.Len(t, res.OutputFiles, 1)
	run := filepath.Dir(res.OutputFiles[0])
	assert.Regexp(t, `^run_\d{8}_\d{6}_`, run)
	assert.Equal(t, "scan_1.e57", filepath.Base(res.OutputFiles[0]))
	assert.FileExists(t, filepath.Join(out, res.OutputFiles[0]))
	assert.Contains(t, res.Stdout, "--workspace ws --outdir "+filepath.Join(out, run)+" --latest --process --format e57")
}

func TestProcessIgnoresEarlierOutput(t *testing.T) {
	exe := fakeConverter(t, "echo converting\n")
	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(out, "previous_job.e57"), []byte("old"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(out, "run_20240101_000000_1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "run_20240101_000000_1", "older_run.e57"), []byte("old"), 0o644))
	p := ExecProcessor{Exe: exe, Format: "e57", Timeout: 10 * time.Second}

	res := p.Process(context.Background(), domain.Job{JobSpec: domain.JobSpec{Workspace: "ws", OutDir: out}})
	assert.False(t, res.OK)
	assert.Empty(t, res.OutputFiles)
	assert.Contains(t, res.Stderr, "no .e57 produced")
}

func TestProcessFailureKeepsExitCodeAndStderr(t *testing.T) {
	exe := fakeConverter(t, `echo "license not found" >&2
exit 3
`)
	p := ExecProcessor{Exe: exe, Format: "e57", Timeout: 10 * time.Second}

	res := p.Process(context.Background(), domain.Job{JobSpec: domain.JobSpec{Workspace: "ws", OutDir: t.TempDir()}})
	assert.False(t, res.OK)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 3, *res.ExitCode)
	assert.Contains(t, res.Stderr, "license not found")
}

func TestProcessWithoutOutputFails(t *testing.T) {
	exe := fakeConverter(t, "exit 0\n")
	p := ExecProcessor{Exe: exe, Format: "e57", Timeout: 10 * time.Second}

	res := p.Process(context.Background(), domain.Job{JobSpec: domain.JobSpec{Workspace: "ws", OutDir: t.TempDir()}})
	assert.False(t, res.OK)
	assert.Contains(t, res.Stderr, "no .e57 produced")
}

func TestProcessTimeout(t *testing.T) {
	exe := fakeConverter(t, "exec sleep 5\n")
	p := ExecProcessor{Exe: exe, Format: "e57", Timeout: 50 * time.Millisecond}

	res := p.Process(context.Background(), domain.Job{JobSpec: domain.JobSpec{Workspace: "ws", OutDir: t.TempDir()}})
	assert.False(t, res.OK)
	assert.Nil(t, res.ExitCode)
	assert.Contains(t, res.Stderr, "converter stopped")
}

func TestProcessMissingExecutable(t *testing.T) {
	p := ExecProcessor{Exe: filepath.Join(t.TempDir(), "missing"), Format: "e57", Timeout: time.Second}

	res := p.Process(context.Background(), domain.Job{JobSpec: domain.JobSpec{Workspace: "ws", OutDir: t.TempDir()}})
	assert.False(t, res.OK)
	assert.Nil(t, res.ExitCode)
	assert.Contains(t, res.Stderr, "start converter")
}

func TestProducedFilesNewestFirst(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	for _, name := range []string{"old.e57", "new.e57", "mid.e57", "skip.las"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.e57"), now, now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "mid.e57"), now, now.Add(-time.Minute)))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "new.e57"), now, now))

	files, err := ProducedFiles(dir, "e57")
	require.NoError(t, err)
	assert.Equal(t, []string{"new.e57", "mid.e57", "old.e57"}, files)
}
