package scanner

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scanbridge/internal/domain"
	applog "scanbridge/internal/log"
	"scanbridge/internal/metrics"
	"scanbridge/internal/ports"
)

// Targets maps a camera selector to the scanner's base URL.
type Targets interface {
	BaseURL(camera string) (string, error)
}

// Timings bounds every wait the controller performs against the remote UI.
type Timings struct {
	Navigate        time.Duration
	ElementWait     time.Duration
	StartSettle     time.Duration
	Deadline        time.Duration
	PollInterval    time.Duration
	CompletionProbe time.Duration
	StopWait        time.Duration
	StopSettle      time.Duration
	DeleteWait      time.Duration
	PauseWait       time.Duration
	PauseSettle     time.Duration
	PausedSleep     time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		Navigate:        30 * time.Second,
		ElementWait:     15 * time.Second,
		StartSettle:     3 * time.Second,
		Deadline:        500 * time.Second,
		PollInterval:    500 * time.Millisecond,
		CompletionProbe: time.Second,
		StopWait:        10 * time.Second,
		StopSettle:      time.Second,
		DeleteWait:      15 * time.Second,
		PauseWait:       5 * time.Second,
		PauseSettle:     time.Second,
		PausedSleep:     2 * time.Second,
	}
}

type Option func(*Service)

// WithArtifactStore enables downloading the finished scan into store.
func WithArtifactStore(store ports.ArtifactStore) Option {
	return func(s *Service) { s.store = store }
}

// WithConverter enables conversion of the finished scan; format is the output extension.
func WithConverter(conv ports.Converter, format string) Option {
	return func(s *Service) {
		s.conv = conv
		s.format = format
	}
}

func WithTimings(t Timings) Option {
	return func(s *Service) { s.timings = t }
}

// Service is the scan session controller. At most one session runs at a time.
type Service struct {
	ui      ports.UILauncher
	dir     ports.ScanDirectory
	targets Targets
	store   ports.ArtifactStore
	conv    ports.Converter
	format  string
	timings Timings

	state *sessionState

	handleMu sync.Mutex
	handle   ports.UISession

	lastMu sync.Mutex
	last   *domain.SessionResult

	wg sync.WaitGroup
}

func New(ui ports.UILauncher, dir ports.ScanDirectory, targets Targets, opts ...Option) *Service {
	s := &Service{
		ui:      ui,
		dir:     dir,
		targets: targets,
		format:  "e57",
		timings: DefaultTimings(),
		state:   newSessionState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartScan runs a whole session and blocks until it ends.
func (s *Service) StartScan(ctx context.Context, camera string) (domain.SessionResult, error) {
	base, err := s.reserve(camera)
	if err != nil {
		return domain.SessionResult{}, err
	}
	return s.run(ctx, camera, base)
}

// StartScanAsync reserves the session and runs it in the background. The result
// is available from Status once the session ends.
func (s *Service) StartScanAsync(ctx context.Context, camera string) error {
	base, err := s.reserve(camera)
	if err != nil {
		return err
	}
	s.wg.Go(func() {
		if _, err := s.run(ctx, camera, base); err != nil {
			slog.ErrorContext(ctx, "background scan session failed", "camera", camera, "error", err)
		}
	})
	return nil
}

// Wait blocks until background sessions have returned.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) RequestPause() error {
	if err := s.state.requestPause(); err != nil {
		metrics.ScanSignalsTotal.WithLabelValues("pause", "rejected").Inc()
		return err
	}
	metrics.ScanSignalsTotal.WithLabelValues("pause", "accepted").Inc()
	slog.Info("pause requested")
	return nil
}

func (s *Service) RequestStop() error {
	if err := s.state.requestStop(); err != nil {
		metrics.ScanSignalsTotal.WithLabelValues("stop", "rejected").Inc()
		return err
	}
	metrics.ScanSignalsTotal.WithLabelValues("stop", "accepted").Inc()
	slog.Info("stop requested")
	return nil
}

func (s *Service) Status() domain.SessionStatus {
	st := s.state.snapshot()
	s.lastMu.Lock()
	if s.last != nil {
		last := *s.last
		st.Last = &last
	}
	s.lastMu.Unlock()
	return st
}

func (s *Service) reserve(camera string) (string, error) {
	base, err := s.targets.BaseURL(camera)
	if err != nil {
		return "", err
	}
	if !s.state.begin(camera, time.Now().UTC()) {
		return "", domain.ErrSessionBusy
	}
	metrics.ScanSessionActive.Set(1)
	return base, nil
}

func (s *Service) run(ctx context.Context, camera, base string) (res domain.SessionResult, err error) {
	ctx = applog.ContextAttrs(ctx, slog.String("camera", camera))
	res = domain.SessionResult{Camera: camera, StartedAt: time.Now().UTC()}
	slog.InfoContext(ctx, "starting scan session", "url", base)

	defer func() {
		res.FinishedAt = time.Now().UTC()
		if err != nil {
			res.Outcome = domain.SessionFailed
			res.Message = "Scan failed"
			res.Error = err.Error()
		}
		s.lastMu.Lock()
		last := res
		s.last = &last
		s.lastMu.Unlock()
		metrics.ScanSessionsTotal.WithLabelValues(string(res.Outcome)).Inc()
		metrics.ScanSessionDuration.Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
	}()

	end, err := s.drive(ctx, base)
	if err != nil {
		slog.ErrorContext(ctx, "scan session aborted", "error", err)
		return res, err
	}
	if end == endStopped {
		slog.InfoContext(ctx, "scan stopped and deleted by user")
		res.Outcome = domain.SessionStopped
		res.Message = "Scan stopped and deleted"
		return res, nil
	}
	if end == endDeadline {
		slog.WarnContext(ctx, "scan deadline reached before completion was observed", "deadline", s.timings.Deadline)
		res.DeadlineExceeded = true
	}

	ref, err := s.dir.LatestScan(ctx, base)
	if err != nil {
		return res, fmt.Errorf("resolve latest scan: %w", err)
	}
	res.FileName = cmp.Or(ref.DisplayName, "unknown")
	if ref.DownloadName == "" {
		res.Outcome = domain.SessionUnresolved
		res.Message = "Scan complete (could not resolve download name)"
		return res, nil
	}
	name := ref.DownloadName
	res.Outcome = domain.SessionCompleted
	res.Message = "Scan complete"
	res.DownloadName = &name
	slog.InfoContext(ctx, "scan complete", "file_name", res.FileName, "download_name", name)

	if s.store != nil {
		res.Artifact = s.fetchArtifact(ctx, base, name)
	}
	if s.conv != nil {
		res.Conversion = s.convert(ctx, ref.DisplayName)
	}
	return res, nil
}

func (s *Service) fetchArtifact(ctx context.Context, base, name string) *domain.ArtifactResult {
	out := &domain.ArtifactResult{Name: name}
	data, err := s.dir.Download(ctx, base, name)
	if err != nil {
		slog.WarnContext(ctx, "scan download failed", "download_name", name, "error", err)
		out.Error = err.Error()
		return out
	}
	path, err := s.store.Save(ctx, name, data)
	if err != nil {
		slog.WarnContext(ctx, "storing scan failed", "download_name", name, "error", err)
		out.Error = err.Error()
		return out
	}
	out.Path = path
	out.Size = int64(len(data))
	return out
}

func (s *Service) convert(ctx context.Context, displayName string) *domain.ConversionResult {
	var hint string
	if displayName != "" {
		hint = displayName + "." + s.format
	}
	conv, err := s.conv.ConvertLatest(ctx, hint)
	if err != nil {
		slog.WarnContext(ctx, "conversion failed", "out_name", hint, "error", err)
		return &domain.ConversionResult{Error: err.Error()}
	}
	slog.InfoContext(ctx, "conversion finished", "run_dir", conv.RunDir, "primary_file", conv.PrimaryFile)
	return &domain.ConversionResult{RunDir: conv.RunDir, Run: conv.Run, PrimaryFile: conv.PrimaryFile, Files: conv.Files}
}

type loopEnd int

const (
	endCompleted loopEnd = iota
	endStopped
	endDeadline
)

// drive owns the automation handle for one session. The handle is released and
// the session flags cleared on every return path.
func (s *Service) drive(ctx context.Context, base string) (loopEnd, error) {
	defer func() {
		// Cleared before end so a session reserved right after cannot be zeroed.
		metrics.ScanSessionActive.Set(0)
		s.state.end()
	}()

	sess, err := s.acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: launch browser: %w", domain.ErrAutomation, err)
	}
	defer s.release(ctx)

	if err := s.startOnUI(ctx, sess, base+"/"); err != nil {
		return 0, err
	}
	return s.poll(ctx, sess)
}

func (s *Service) acquire(ctx context.Context) (ports.UISession, error) {
	sess, err := s.ui.Launch(ctx)
	if err != nil {
		return nil, err
	}
	s.handleMu.Lock()
	s.handle = sess
	s.handleMu.Unlock()
	return sess, nil
}

func (s *Service) release(ctx context.Context) {
	s.handleMu.Lock()
	sess := s.handle
	s.handle = nil
	s.handleMu.Unlock()
	if sess == nil {
		return
	}
	if err := sess.Close(); err != nil {
		slog.WarnContext(ctx, "closing browser failed", "error", err)
	}
}

func (s *Service) startOnUI(ctx context.Context, sess ports.UISession, url string) error {
	t := s.timings
	if err := sess.Navigate(ctx, url, t.Navigate); err != nil {
		return automationFault(ctx, "load scanner ui", err)
	}
	slog.DebugContext(ctx, "scanner ui loaded")

	if err := sess.Click(ctx, startScanButton, t.ElementWait); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.InfoContext(ctx, "start button not available, using preview button", "error", err)
		if err := sess.Click(ctx, previewButton, t.ElementWait); err != nil {
			return automationFault(ctx, "click start", err)
		}
	}
	if err := sess.Click(ctx, alertFirstButton, t.ElementWait); err != nil {
		return automationFault(ctx, "confirm start", err)
	}
	slog.InfoContext(ctx, "scan started")
	return sleep(ctx, t.StartSettle)
}

func (s *Service) poll(ctx context.Context, sess ports.UISession) (loopEnd, error) {
	t := s.timings
	deadline := time.Now().Add(t.Deadline)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		sig := s.state.take()

		if sig.stop {
			err := s.stopOnUI(ctx, sess)
			if err == nil {
				return endStopped, nil
			}
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			slog.WarnContext(ctx, "stop failed", "error", err)
		}

		paused := sig.paused
		if sig.pause && !paused {
			paused = s.pauseOnUI(ctx, sess)
		}

		if !paused {
			done, err := s.probeComplete(ctx, sess)
			if err != nil {
				return 0, err
			}
			if done {
				slog.InfoContext(ctx, "scan complete, start button visible")
				return endCompleted, nil
			}
		} else {
			woken, err := s.idle(ctx, t.PausedSleep)
			if err != nil {
				return 0, err
			}
			if woken {
				continue
			}
		}

		if _, err := s.idle(ctx, t.PollInterval); err != nil {
			return 0, err
		}
	}
	return endDeadline, nil
}

func (s *Service) stopOnUI(ctx context.Context, sess ports.UISession) error {
	t := s.timings
	slog.InfoContext(ctx, "stop requested, executing")
	if err := sess.Click(ctx, stopButton, t.StopWait); err != nil {
		return fmt.Errorf("click stop: %w", err)
	}
	if err := sleep(ctx, t.StopSettle); err != nil {
		return err
	}
	if err := sess.Click(ctx, alertLastButton, t.DeleteWait); err != nil {
		return fmt.Errorf("confirm delete: %w", err)
	}
	return nil
}

// pauseOnUI handles one consumed pause request and reports whether the scan is
// now paused. An inactive pause button re-arms the request; any other fault drops it.
func (s *Service) pauseOnUI(ctx context.Context, sess ports.UISession) bool {
	t := s.timings
	classes, err := sess.Attribute(ctx, pauseButton, "class", t.PauseWait)
	if err != nil {
		slog.WarnContext(ctx, "pause failed", "error", err)
		return false
	}
	if hasClass(classes, inactivePauseClass) {
		slog.InfoContext(ctx, "pause button inactive, retrying later", "classes", classes)
		s.state.rearmPause()
		return false
	}
	if err := sess.ScriptClick(ctx, pauseButton); err != nil {
		slog.WarnContext(ctx, "pause click failed", "error", err)
		return false
	}
	s.state.markPaused()
	slog.InfoContext(ctx, "scan paused")
	if err := sleep(ctx, t.PauseSettle); err != nil {
		slog.DebugContext(ctx, "pause settle interrupted", "error", err)
	}
	return true
}

// probeComplete reports whether the preview button is clickable again. Not
// finding it within the probe window is the normal, still-scanning case.
func (s *Service) probeComplete(ctx context.Context, sess ports.UISession) (bool, error) {
	err := sess.WaitClickable(ctx, previewButton, s.timings.CompletionProbe)
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, domain.ErrElementTimeout):
		return false, nil
	default:
		return false, automationFault(ctx, "probe completion", err)
	}
}

func automationFault(ctx context.Context, step string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrAutomation, step, err)
}

// idle waits for d, returning early with woken set when a pause or stop
// request arrives.
func (s *Service) idle(ctx context.Context, d time.Duration) (woken bool, err error) {
	if d <= 0 {
		return false, ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return false, nil
	case <-s.state.wake:
		return true, nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
