// Package bridgeclient talks to the job bridge from a remote worker.
package bridgeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"scanbridge/internal/domain"
)

type Client struct {
	baseURL string
	worker  string
	http    *http.Client
	backOff func() backoff.BackOff
}

type Option func(*Client)

// WithBackOff replaces the retry policy used for completion reports.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.backOff = fn }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL, worker string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		worker:  worker,
		http:    &http.Client{Timeout: 30 * time.Second},
		backOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 10 * time.Minute
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Job     *domain.Job `json:"job"`
}

// ClaimNext asks the bridge for the next queued job. found is false when the queue is empty.
func (c *Client) ClaimNext(ctx context.Context) (domain.Job, bool, error) {
	q := url.Values{}
	q.Set("worker", c.worker)
	env, err := c.do(ctx, http.MethodGet, "/bridge/jobs/next?"+q.Encode(), nil)
	if err != nil {
		return domain.Job{}, false, err
	}
	if env.Job == nil {
		return domain.Job{}, false, nil
	}
	return *env.Job, true, nil
}

// Complete reports a job outcome, retrying transport failures and server errors
// with exponential backoff. The bridge accepts duplicate reports.
func (c *Client) Complete(ctx context.Context, jobID string, outcome domain.Outcome) (domain.Job, error) {
	body, err := json.Marshal(outcome)
	if err != nil {
		return domain.Job{}, err
	}
	path := "/bridge/jobs/" + url.PathEscape(jobID) + "/complete"

	var (
		job   domain.Job
		final error
	)
	op := func() error {
		env, err := c.do(ctx, http.MethodPost, path, body)
		if err != nil {
			if retryable(err) && ctx.Err() == nil {
				slog.WarnContext(ctx, "completion report failed, retrying", "job_id", jobID, "error", err)
				return err
			}
			final = err
			return nil
		}
		if env.Job != nil {
			job = *env.Job
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(c.backOff(), ctx)); err != nil {
		return domain.Job{}, fmt.Errorf("report completion of %s: %w", jobID, err)
	}
	if final != nil {
		return domain.Job{}, fmt.Errorf("report completion of %s: %w", jobID, final)
	}
	return job, nil
}

type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("bridge status %d: %s", e.code, e.msg)
}

func (e *statusError) Unwrap() error {
	switch {
	case e.code == http.StatusNotFound:
		return domain.ErrNotFound
	case e.code == http.StatusBadRequest:
		return domain.ErrInvalidSpec
	default:
		return domain.ErrRemoteUnavailable
	}
}

// retryable reports whether a failed call may succeed later: transport errors and 5xx.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	return true
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (envelope, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return envelope{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("%w: bridge: %v", domain.ErrRemoteUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)
	if resp.StatusCode != http.StatusOK {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return envelope{}, &statusError{code: resp.StatusCode, msg: msg}
	}
	if decodeErr != nil {
		return envelope{}, fmt.Errorf("%w: bridge: undecodable body: %v", domain.ErrRemoteUnavailable, decodeErr)
	}
	return env, nil
}
