// Package browser drives the scanner's web UI through a headless Chrome.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"scanbridge/internal/domain"
	"scanbridge/internal/ports"
)

type Launcher struct {
	ExecPath string
	Headless bool
}

func New(execPath string, headless bool) *Launcher {
	return &Launcher{ExecPath: execPath, Headless: headless}
}

// Launch starts a fresh browser. The browser outlives ctx cancellation until
// Close is called, so a cancelled request never leaks a half-closed process.
func (l *Launcher) Launch(ctx context.Context) (ports.UISession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		// Scanners serve a self-signed certificate.
		chromedp.IgnoreCertErrors,
		chromedp.Flag("allow-insecure-localhost", true),
	)
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()
	select {
	case err := <-started:
		if err != nil {
			tabCancel()
			allocCancel()
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-ctx.Done():
		tabCancel()
		allocCancel()
		<-started
		return nil, ctx.Err()
	}
	return &Session{ctx: tabCtx, cancel: tabCancel, allocCancel: allocCancel}, nil
}

// Session is one browser tab bound to one scan session.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// run executes actions against the tab, bounded by timeout and by the caller's ctx.
func (s *Session) run(ctx context.Context, sel string, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", domain.ErrElementTimeout, sel, timeout)
	}
	return err
}

func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	return s.run(ctx, url, timeout, chromedp.Navigate(url))
}

func (s *Session) WaitClickable(ctx context.Context, sel ports.Selector, timeout time.Duration) error {
	q := sel.String()
	return s.run(ctx, q, timeout,
		chromedp.WaitVisible(q, chromedp.ByQuery),
		chromedp.WaitEnabled(q, chromedp.ByQuery),
	)
}

func (s *Session) Click(ctx context.Context, sel ports.Selector, timeout time.Duration) error {
	q := sel.String()
	return s.run(ctx, q, timeout,
		chromedp.WaitVisible(q, chromedp.ByQuery),
		chromedp.WaitEnabled(q, chromedp.ByQuery),
		chromedp.Click(q, chromedp.ByQuery),
	)
}

func (s *Session) Attribute(ctx context.Context, sel ports.Selector, name string, timeout time.Duration) (string, error) {
	q := sel.String()
	var (
		value string
		ok    bool
	)
	err := s.run(ctx, q, timeout,
		chromedp.WaitReady(q, chromedp.ByQuery),
		chromedp.AttributeValue(q, name, &value, &ok, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	return value, nil
}

// ScriptClick clicks through the DOM, for elements a synthetic mouse event cannot reach.
func (s *Session) ScriptClick(ctx context.Context, sel ports.Selector) error {
	q := sel.String()
	expr := fmt.Sprintf("document.querySelector(%q).click()", q)
	return s.run(ctx, q, 5*time.Second, chromedp.Evaluate(expr, nil))
}

func (s *Session) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	s.allocCancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
