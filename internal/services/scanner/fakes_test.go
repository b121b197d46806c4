package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"scanbridge/internal/domain"
	"scanbridge/internal/ports"
)

// fakeUI scripts the scanner's web UI. The preview button is clickable while the
// scanner is idle and disappears once a scan starts.
type fakeUI struct {
	mu sync.Mutex

	launchErr   error
	navigateErr error
	closeErr    error
	probeErr    error

	startMissing bool
	alertMissing bool
	stopFails    bool
	// pauseClass is the pause button's class attribute; empty means it is absent.
	pauseClass string

	previewReady bool
	// probesUntilComplete > 0 makes the scan finish after that many probes.
	probesUntilComplete int

	launches     int
	closes       int
	probes       int
	pauseReads   int
	stopClicks   int
	scriptClicks int
	clicks       []string
}

type fakeCounts struct {
	launches, closes, probes, pauseReads, stopClicks, scriptClicks int
	clicks                                                          []string
}

func (f *fakeUI) counts() fakeCounts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeCounts{
		launches:     f.launches,
		closes:       f.closes,
		probes:       f.probes,
		pauseReads:   f.pauseReads,
		stopClicks:   f.stopClicks,
		scriptClicks: f.scriptClicks,
		clicks:       append([]string(nil), f.clicks...),
	}
}

// finish makes the scan complete: the preview button becomes clickable again.
func (f *fakeUI) finish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previewReady = true
}

func (f *fakeUI) set(fn func(f *fakeUI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeUI) Launch(ctx context.Context) (ports.UISession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	f.launches++
	return &fakeSession{ui: f}, nil
}

type fakeSession struct {
	ui *fakeUI
}

func timeoutErr(sel ports.Selector) error {
	return fmt.Errorf("%w: %s", domain.ErrElementTimeout, sel)
}

func (s *fakeSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	s.ui.mu.Lock()
	defer s.ui.mu.Unlock()
	return s.ui.navigateErr
}

func (s *fakeSession) WaitClickable(ctx context.Context, sel ports.Selector, timeout time.Duration) error {
	f := s.ui
	f.mu.Lock()
	f.probes++
	if f.probeErr != nil {
		err := f.probeErr
		f.mu.Unlock()
		return err
	}
	if f.probesUntilComplete > 0 && f.probes >= f.probesUntilComplete {
		f.previewReady = true
	}
	ready := f.previewReady
	f.mu.Unlock()

	if ready {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return timeoutErr(sel)
	}
}

func (s *fakeSession) Click(ctx context.Context, sel ports.Selector, timeout time.Duration) error {
	f := s.ui
	f.mu.Lock()
	defer f.mu.Unlock()
	switch sel {
	case startScanButton:
		if f.startMissing {
			return timeoutErr(sel)
		}
		f.previewReady = false
	case previewButton:
		if !f.previewReady {
			return timeoutErr(sel)
		}
		f.previewReady = false
	case alertFirstButton:
		if f.alertMissing {
			return timeoutErr(sel)
		}
	case stopButton:
		f.stopClicks++
		if f.stopFails {
			return timeoutErr(sel)
		}
	}
	f.clicks = append(f.clicks, sel.String())
	return nil
}

func (s *fakeSession) Attribute(ctx context.Context, sel ports.Selector, name string, timeout time.Duration) (string, error) {
	f := s.ui
	f.mu.Lock()
	defer f.mu.Unlock()
	if sel != pauseButton || name != "class" {
		return "", fmt.Errorf("unexpected attribute read %s[%s]", sel, name)
	}
	f.pauseReads++
	if f.pauseClass == "" {
		return "", timeoutErr(sel)
	}
	return f.pauseClass, nil
}

func (s *fakeSession) ScriptClick(ctx context.Context, sel ports.Selector) error {
	f := s.ui
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scriptClicks++
	f.clicks = append(f.clicks, "js:"+sel.String())
	return nil
}

func (s *fakeSession) Close() error {
	f := s.ui
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return f.closeErr
}

type fakeDir struct {
	mu          sync.Mutex
	ref         domain.ScanRef
	err         error
	data        []byte
	downloadErr error
	latestCalls int
}

func (d *fakeDir) LatestScan(ctx context.Context, baseURL string) (domain.ScanRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latestCalls++
	return d.ref, d.err
}

func (d *fakeDir) Download(ctx context.Context, baseURL, name string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.downloadErr != nil {
		return nil, d.downloadErr
	}
	if name != d.ref.DownloadName {
		return nil, domain.ErrNotFound
	}
	return d.data, nil
}

func (d *fakeDir) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latestCalls
}

type fakeStore struct {
	saved map[string][]byte
	// entered and release, when set, hold Save until the test lets it go.
	entered chan struct{}
	release chan struct{}
}

func (s *fakeStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	if s.release != nil {
		close(s.entered)
		<-s.release
	}
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	s.saved[name] = data
	return "/artifacts/" + name, nil
}

type fakeConverter struct {
	hint string
	err  error
}

func (c *fakeConverter) ConvertLatest(ctx context.Context, preferredName string) (domain.Conversion, error) {
	c.hint = preferredName
	if c.err != nil {
		return domain.Conversion{}, c.err
	}
	return domain.Conversion{RunDir: `C:\exports\run_1`, Run: "run_1", PrimaryFile: preferredName,
		Files: []string{preferredName, "B.log"}}, nil
}

func (c *fakeConverter) Download(ctx context.Context, run, name string) ([]byte, error) {
	return nil, errors.New("not used")
}
