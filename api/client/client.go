// Package client talks to a running mnemo API server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/mnemo/api"
	"github.com/papercomputeco/mnemo/pkg/embeddings"
	"github.com/papercomputeco/mnemo/pkg/ingest"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/retrieval"
)

const defaultTimeout = 60 * time.Second

// Client is a thin JSON client for the /v1 endpoints. Error responses are
// mapped back onto the memory error taxonomy where the status allows it.
type Client struct {
	target *url.URL
	http   *http.Client
}

// New returns a client for the server at target, e.g. http://localhost:8081.
// A nil httpClient uses one with a 60s timeout.
func New(target string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API target URL %q: scheme and host are required", target)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{target: u, http: httpClient}, nil
}

func (c *Client) Capture(ctx context.Context, in embeddings.Input) (*api.IDResponse, error) {
	var out api.IDResponse
	if err := c.do(ctx, http.MethodPost, "/v1/capture", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Ingest(ctx context.Context, m memory.Memory) (*api.IDResponse, error) {
	var out api.IDResponse
	if err := c.do(ctx, http.MethodPost, "/v1/memories", nil, m, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Retrieve(ctx context.Context, req api.RetrieveRequest) (*retrieval.Context, error) {
	var out retrieval.Context
	if err := c.do(ctx, http.MethodPost, "/v1/retrieve", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Delete(ctx context.Context, ownerID, id string) error {
	q := url.Values{"owner_id": {ownerID}}
	return c.do(ctx, http.MethodDelete, "/v1/memories/"+url.PathEscape(id), q, nil, nil)
}

// Recent lists the owner's session memories, newest first. limit <= 0 lets
// the server pick.
func (c *Client) Recent(ctx context.Context, ownerID string, limit int) ([]*memory.Memory, error) {
	var out []*memory.Memory
	q := url.Values{"owner_id": {ownerID}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if err := c.do(ctx, http.MethodGet, "/v1/memories", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Insights(ctx context.Context, ownerID string) (*retrieval.Insights, error) {
	var out retrieval.Insights
	q := url.Values{"owner_id": {ownerID}}
	if err := c.do(ctx, http.MethodGet, "/v1/insights", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Pending(ctx context.Context) (*api.PendingResponse, error) {
	var out api.PendingResponse
	if err := c.do(ctx, http.MethodGet, "/v1/pending", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Sweep(ctx context.Context) (*ingest.SweepStats, error) {
	var out ingest.SweepStats
	if err := c.do(ctx, http.MethodPost, "/v1/sweep", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.target
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to mnemo API at %s: %w", c.target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var er api.ErrorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		msg = er.Error
	}

	var sentinel error
	switch status {
	case http.StatusBadRequest:
		sentinel = memory.ErrInvalidInput
	case http.StatusNotFound:
		sentinel = memory.ErrNotFound
	case http.StatusServiceUnavailable:
		sentinel = memory.ErrRetrievalUnavailable
	case http.StatusGatewayTimeout:
		sentinel = memory.ErrAdapterTimeout
	default:
		return fmt.Errorf("request failed (HTTP %d): %s", status, msg)
	}
	return fmt.Errorf("%w: HTTP %d: %s", sentinel, status, msg)
}
