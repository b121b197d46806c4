// Package lswebapi reads the scanner's own REST listing and downloads scan enclosures.
package lswebapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"slices"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"scanbridge/internal/domain"
)

const listingPath = "/lswebapi/scans"

type Client struct {
	http            *http.Client
	listTimeout     time.Duration
	downloadTimeout time.Duration
}

// New returns a client. Scanners ship self-signed certificates, so insecureTLS is
// normally true.
func New(insecureTLS bool) *Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: insecureTLS} //nolint:gosec // scanner certs are self-signed
	return &Client{
		http:            &http.Client{Transport: transport, Jar: jar},
		listTimeout:     15 * time.Second,
		downloadTimeout: 60 * time.Second,
	}
}

type listing struct {
	Embedded map[string]record `json:"_embedded"`
}

type record struct {
	Name          string `json:"name"`
	RecordingTime *int64 `json:"recordingTime"`
	Links         struct {
		Enclosure struct {
			Href string `json:"href"`
		} `json:"enclosure"`
	} `json:"_links"`
}

func (r record) enclosureFile() string {
	href := r.Links.Enclosure.Href
	if href == "" {
		return ""
	}
	return href[strings.LastIndex(href, "/")+1:]
}

// LatestScan picks the record with the greatest recordingTime. Records without a
// recording time are never picked; an empty result means nothing could be resolved.
func (c *Client) LatestScan(ctx context.Context, baseURL string) (domain.ScanRef, error) {
	l, err := c.fetchListing(ctx, baseURL)
	if err != nil {
		return domain.ScanRef{}, err
	}

	var latest *record
	var latestTime int64
	for _, id := range sortedKeys(l.Embedded) {
		rec := l.Embedded[id]
		if rec.RecordingTime == nil {
			continue
		}
		if latest == nil || *rec.RecordingTime > latestTime {
			latest = &rec
			latestTime = *rec.RecordingTime
		}
	}
	if latest == nil {
		return domain.ScanRef{}, nil
	}
	return domain.ScanRef{DisplayName: latest.Name, DownloadName: latest.enclosureFile()}, nil
}

// Download fetches the enclosure whose file name equals artifactName.
func (c *Client) Download(ctx context.Context, baseURL, artifactName string) ([]byte, error) {
	l, err := c.fetchListing(ctx, baseURL)
	if err != nil {
		return nil, err
	}

	var href string
	for _, id := range sortedKeys(l.Embedded) {
		rec := l.Embedded[id]
		if rec.enclosureFile() == artifactName && artifactName != "" {
			href = rec.Links.Enclosure.Href
			break
		}
	}
	if href == "" {
		return nil, fmt.Errorf("%w: scan file %q on %s", domain.ErrNotFound, artifactName, baseURL)
	}

	target := href
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		target = baseURL + href
	}
	slog.InfoContext(ctx, "downloading scan enclosure", "url", target)

	ctx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	defer cancel()
	resp, err := c.get(ctx, target)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: download %s: status %d", domain.ErrRemoteUnavailable, artifactName, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrRemoteUnavailable, artifactName, err)
	}
	return data, nil
}

func (c *Client) fetchListing(ctx context.Context, baseURL string) (listing, error) {
	ctx, cancel := context.WithTimeout(ctx, c.listTimeout)
	defer cancel()

	resp, err := c.get(ctx, baseURL+listingPath)
	if err != nil {
		return listing{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return listing{}, fmt.Errorf("%w: scan listing: status %d", domain.ErrRemoteUnavailable, resp.StatusCode)
	}
	var l listing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return listing{}, fmt.Errorf("%w: decoding scan listing: %v", domain.ErrRemoteUnavailable, err)
	}
	return l, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	return resp, nil
}

func sortedKeys(m map[string]record) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
