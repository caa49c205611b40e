// Package sheet reads LinkedIn post URLs from a public Google Sheet.
package sheet

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://docs.google.com"

var activityIDRe = regexp.MustCompile(`(?:activity|ugcPost)[:\-](\d+)`)

// Source downloads a sheet as CSV.
type Source struct {
	baseURL string
	http    *http.Client
}

// Option configures a Source.
type Option func(*Source)

// WithBaseURL overrides the Google Docs host (used in tests).
func WithBaseURL(u string) Option {
	return func(s *Source) {
		if u != "" {
			s.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Source) {
		s.http = hc
	}
}

// New creates a Source.
func New(opts ...Option) *Source {
	s := &Source{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ExportURL returns the CSV export URL for one tab of a spreadsheet.
func (s *Source) ExportURL(spreadsheetID, gid string) string {
	return fmt.Sprintf("%s/spreadsheets/d/%s/export?format=csv&gid=%s",
		s.baseURL, url.PathEscape(spreadsheetID), url.QueryEscape(gid))
}

// FetchPostURLs returns every cell that is a LinkedIn URL carrying an
// activity id, in sheet order.
func (s *Source) FetchPostURLs(ctx context.Context, spreadsheetID, gid string) ([]string, error) {
	exportURL := s.ExportURL(spreadsheetID, gid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: create request")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("sheet: unexpected status %d from %s", resp.StatusCode, exportURL)
	}

	return collectPostURLs(ctx, resp.Body)
}

func collectPostURLs(ctx context.Context, r io.Reader) ([]string, error) {
	cellCh, errCh := streamCells(ctx, r)

	var urls []string
	for cell := range cellCh {
		if strings.Contains(cell, "linkedin.com") && activityIDRe.MatchString(cell) {
			urls = append(urls, cell)
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}

	zap.L().Info("sheet: post urls found", zap.Int("urls", len(urls)))
	return urls, nil
}

// ExtractActivityID returns the numeric activity id in u, or "" when none.
func ExtractActivityID(u string) string {
	m := activityIDRe.FindStringSubmatch(u)
	if m == nil {
		return ""
	}
	return m[1]
}

// UniqueActivityIDs extracts activity ids from urls, dropping duplicates and
// urls without an id. First-seen order is kept.
func UniqueActivityIDs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	var ids []string
	for _, u := range urls {
		id := ExtractActivityID(u)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
