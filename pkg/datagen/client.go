// Package datagen provides a client for the Datagen tool execution API.
package datagen

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.datagen.dev"

// Tool names used by the engager pipeline.
const (
	ToolPostReactions = "get_linkedin_person_post_reactions"
	ToolPostComments  = "get_linkedin_person_post_comments"
	ToolPostReposts   = "get_linkedin_person_post_repost"
	ToolPersonData    = "get_linkedin_person_data"
)

// Client executes Datagen tools.
type Client interface {
	// ExecuteTool runs the named tool with args and returns the raw tool output.
	ExecuteTool(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default limit of 5 req/s. Zero disables it.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Datagen client. The limiter is shared by every caller,
// including concurrent enrichment workers.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 5),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type executeRequest struct {
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input"`
}

type executeResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *httpClient) ExecuteTool(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "datagen: rate limit")
		}
	}

	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(executeRequest{Tool: tool, Input: args})
	if err != nil {
		return nil, eris.Wrapf(err, "datagen: marshal %s request", tool)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tools/execute", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "datagen: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "datagen: %s request failed", tool)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "datagen: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, eris.Errorf("datagen: %s unexpected status %d: %s", tool, resp.StatusCode, truncate(respBody, 300))
	}

	var result executeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrapf(err, "datagen: unmarshal %s response", tool)
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "tool reported failure"
		}
		return nil, eris.Errorf("datagen: %s: %s", tool, msg)
	}

	return result.Data, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
