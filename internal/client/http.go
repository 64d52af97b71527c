package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agent-racer/hookwatch/internal/status"
)

// HTTPClient makes REST calls to the event service.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:3790").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// ListEvents fetches /events/list, returning records newer than since.
func (c *HTTPClient) ListEvents(ctx context.Context, since time.Time, limit int) ([]Record, error) {
	var out []Record
	if err := c.get(ctx, "/events/list", sinceQuery(since, limit), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DebugLogs fetches /debug-logs, returning records newer than since.
func (c *HTTPClient) DebugLogs(ctx context.Context, since time.Time, limit int) ([]Record, error) {
	var out []Record
	if err := c.get(ctx, "/debug-logs", sinceQuery(since, limit), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// HooksStatus fetches /hooks/status.
func (c *HTTPClient) HooksStatus(ctx context.Context) (status.HooksInfo, error) {
	var resp HooksResponse
	if err := c.get(ctx, "/hooks/status", nil, &resp); err != nil {
		return status.HooksInfo{}, err
	}
	info := status.HooksInfo{Installed: resp.Installed, Hooks: make([]status.HookInfo, 0, len(resp.Hooks))}
	for _, h := range resp.Hooks {
		info.Hooks = append(info.Hooks, status.HookInfo{Name: h.Name, Enabled: h.Enabled})
	}
	return info, nil
}

// EventStats fetches /events/stats.
func (c *HTTPClient) EventStats(ctx context.Context) (status.EventCounts, error) {
	var s EventStats
	if err := c.get(ctx, "/events/stats", nil, &s); err != nil {
		return status.EventCounts{}, err
	}
	return status.EventCounts{Total: s.Total, Today: s.Today}, nil
}

// Health fetches /health.
func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.get(ctx, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func sinceQuery(since time.Time, limit int) url.Values {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

func (c *HTTPClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decoding response: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
