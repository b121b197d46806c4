package bridgeworker

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"scanbridge/internal/domain"
)

// ExecProcessor runs the vendor converter executable for each job.
type ExecProcessor struct {
	Exe     string
	Format  string
	Timeout time.Duration
}

// Args builds the converter command line writing into runDir. A job without a
// scan index converts the newest scan in the workspace.
func (p ExecProcessor) Args(job domain.Job, runDir string) []string {
	args := []string{"--workspace", job.Workspace, "--outdir", runDir}
	if job.ScanIndex != nil {
		args = append(args, "--scan-index", strconv.Itoa(*job.ScanIndex))
	} else {
		args = append(args, "--latest")
	}
	return append(args, "--process", "--format", p.Format)
}

// Process runs the converter in a fresh run_<timestamp>_* directory under the
// job's outdir. Output files are reported relative to the outdir, and only files
// from this run count.
func (p ExecProcessor) Process(ctx context.Context, job domain.Job) domain.Outcome {
	if err := os.MkdirAll(job.OutDir, 0o755); err != nil {
		return domain.Outcome{Stderr: fmt.Sprintf("create outdir: %v", err)}
	}
	runDir, err := os.MkdirTemp(job.OutDir, "run_"+time.Now().Format("20060102_150405")+"_")
	if err != nil {
		return domain.Outcome{Stderr: fmt.Sprintf("create run dir: %v", err)}
	}
	run := filepath.Base(runDir)

	runCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, p.Exe, p.Args(job, runDir)...)
	cmd.Dir = runDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.InfoContext(ctx, "running converter", "exe", p.Exe, "args", cmd.Args[1:])
	err = cmd.Run()

	out := domain.Outcome{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		code := 0
		out.ExitCode = &code
	case runCtx.Err() != nil:
		out.Stderr += fmt.Sprintf("\nconverter stopped: %v", runCtx.Err())
	case errors.As(err, &exitErr):
		code := exitErr.ExitCode()
		out.ExitCode = &code
	default:
		out.Stderr += fmt.Sprintf("\nstart converter: %v", err)
	}

	files, ferr := ProducedFiles(runDir, p.Format)
	if ferr != nil {
		slog.WarnContext(ctx, "listing converter output failed", "error", ferr)
	}
	out.OutputFiles = make([]string, 0, len(files))
	for _, f := range files {
		out.OutputFiles = append(out.OutputFiles, filepath.Join(run, f))
	}
	out.OK = out.ExitCode != nil && *out.ExitCode == 0 && len(files) > 0
	if out.ExitCode != nil && *out.ExitCode == 0 && len(files) == 0 {
		out.Stderr += fmt.Sprintf("\nno .%s produced", p.Format)
	}
	return out
}

// ProducedFiles lists the *.format files in dir, newest first.
func ProducedFiles(dir, format string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type produced struct {
		name string
		mod  time.Time
	}
	var found []produced
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != "."+format {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		found = append(found, produced{name: e.Name(), mod: info.ModTime()})
	}
	slices.SortFunc(found, func(a, b produced) int {
		return cmp.Or(b.mod.Compare(a.mod), cmp.Compare(a.name, b.name))
	})
	names := make([]string, 0, len(found))
	for _, f := range found {
		names = append(names, f.name)
	}
	return names, nil
}
