package ports

import (
	"context"
	"time"
)

type By int

const (
	ByClass By = iota
	ByID
)

// Selector locates one element of the remote UI.
type Selector struct {
	By    By
	Value string
}

func (s Selector) String() string {
	if s.By == ByID {
		return "#" + s.Value
	}
	return "." + s.Value
}

// UILauncher starts automation handles. Each handle belongs to exactly one session.
type UILauncher interface {
	Launch(ctx context.Context) (UISession, error)
}

// UISession is a live automation handle. Waiting methods return an error wrapping
// domain.ErrElementTimeout when the element is not ready within timeout.
type UISession interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitClickable(ctx context.Context, sel Selector, timeout time.Duration) error
	Click(ctx context.Context, sel Selector, timeout time.Duration) error
	// Attribute waits for the element to be present and returns the named attribute.
	Attribute(ctx context.Context, sel Selector, name string, timeout time.Duration) (string, error)
	// ScriptClick clicks through the page's script engine, bypassing overlay checks.
	ScriptClick(ctx context.Context, sel Selector) error
	Close() error
}
