// Package converter calls the conversion service that wraps the vendor converter on the Windows host.
package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scanbridge/internal/domain"
)

type Client struct {
	baseURL   string
	format    string
	workspace string
	timeout   time.Duration
	http      *http.Client
}

// New returns a client for the service at baseURL. workspace may be empty, in which
// case the service falls back to its own default workspace.
func New(baseURL, format, workspace string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		format:    format,
		workspace: workspace,
		timeout:   timeout,
		http:      &http.Client{},
	}
}

type convertRequest struct {
	Format    string `json:"format"`
	OutName   string `json:"out_name,omitempty"`
	Workspace string `json:"workspace,omitempty"`
}

type convertResponse struct {
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	ReturnCode  *int     `json:"returncode"`
	RunDir      string   `json:"run_dir"`
	PrimaryFile string   `json:"primary_file"`
	Files       []string `json:"files"`
	Log         string   `json:"log"`
}

// ConvertLatest asks the service to convert the newest scan in its workspace. A
// non-empty preferredName is passed as the rename hint for the primary output.
func (c *Client) ConvertLatest(ctx context.Context, preferredName string) (domain.Conversion, error) {
	body, err := json.Marshal(convertRequest{Format: c.format, OutName: preferredName, Workspace: c.workspace})
	if err != nil {
		return domain.Conversion{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/convert/latest", bytes.NewReader(body))
	if err != nil {
		return domain.Conversion{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	slog.InfoContext(ctx, "requesting conversion", "converter", c.baseURL, "out_name", preferredName)
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Conversion{}, fmt.Errorf("%w: conversion after %s", domain.ErrTimeout, c.timeout)
		}
		return domain.Conversion{}, fmt.Errorf("%w: converter: %v", domain.ErrRemoteUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusGatewayTimeout {
		return domain.Conversion{}, fmt.Errorf("%w: converter reported timeout", domain.ErrTimeout)
	}

	var cr convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return domain.Conversion{}, fmt.Errorf("%w: converter status %d: undecodable body: %v",
			domain.ErrRemoteUnavailable, resp.StatusCode, err)
	}
	if cr.Status != "ok" || cr.PrimaryFile == "" {
		msg := cr.Message
		if msg == "" {
			msg = "no primary file reported"
		}
		if cr.ReturnCode != nil {
			msg = fmt.Sprintf("%s (returncode %d)", msg, *cr.ReturnCode)
		}
		return domain.Conversion{}, fmt.Errorf("%w: %s", domain.ErrConversion, msg)
	}

	return domain.Conversion{
		RunDir:      cr.RunDir,
		Run:         RunName(cr.RunDir),
		PrimaryFile: cr.PrimaryFile,
		Files:       cr.Files,
	}, nil
}

// Download fetches a converted artifact from a run directory.
func (c *Client) Download(ctx context.Context, run, name string) ([]byte, error) {
	q := url.Values{}
	q.Set("run", run)
	q.Set("name", name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/download?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: converter: %v", domain.ErrRemoteUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: converted file %s/%s", domain.ErrNotFound, run, name)
	default:
		return nil, fmt.Errorf("%w: converter download status %d", domain.ErrRemoteUnavailable, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read converted file: %v", domain.ErrRemoteUnavailable, err)
	}
	return data, nil
}

// RunName returns the last element of a run directory path written with either separator.
func RunName(runDir string) string {
	runDir = strings.TrimRight(runDir, `/\`)
	if i := strings.LastIndexAny(runDir, `/\`); i >= 0 {
		return runDir[i+1:]
	}
	return runDir
}
