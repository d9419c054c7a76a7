package takedemo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/okian/retake/internal/domain/types"
)

var errStatus = errors.New("unexpected status")

// HTTPClient wraps http.Client with the service's base URL.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// do sends body as JSON and decodes a JSON reply into out when out is not
// nil. The status code is returned so callers can tell 200 from 202.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any, want ...int) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	ok := len(want) == 0 && resp.StatusCode < 300
	for _, code := range want {
		ok = ok || resp.StatusCode == code
	}
	if !ok {
		return resp.StatusCode, fmt.Errorf("%w: %s %s: %d %s", errStatus, method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

// Health checks GET /healthz.
func (c *HTTPClient) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, StatusOK)
	return err
}

// CreateSession creates a session with the given options.
func (c *HTTPClient) CreateSession(ctx context.Context, opts types.SessionOptions) (types.Session, error) {
	var s types.Session
	_, err := c.do(ctx, http.MethodPost, "/sessions", opts, &s, StatusCreated)
	return s, err
}

// Session reads a session.
func (c *HTTPClient) Session(ctx context.Context, id string) (types.Session, error) {
	var s types.Session
	_, err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, &s, StatusOK)
	return s, err
}

// DeleteSession closes a session.
func (c *HTTPClient) DeleteSession(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil, nil)
	return err
}

// Control posts a bare control operation such as arm or stop.
func (c *HTTPClient) Control(ctx context.Context, id, op string) (types.Session, error) {
	var s types.Session
	_, err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/"+op, nil, &s, StatusOK)
	return s, err
}

// Play starts playback of the session's recording.
func (c *HTTPClient) Play(ctx context.Context, id string, loop bool) (types.Session, error) {
	var s types.Session
	body := map[string]any{"loop": loop}
	_, err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/play", body, &s, StatusOK)
	return s, err
}

// PostBatch posts one input batch. duplicate reports a 200 replay answer.
func (c *HTTPClient) PostBatch(ctx context.Context, id string, b Batch) (types.InputResult, error) {
	var res types.InputResult
	_, err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/input", b, &res, StatusOK, StatusAccepted)
	return res, err
}

// Renders reads one page of the render log after seq.
func (c *HTTPClient) Renders(ctx context.Context, id string, after uint64, limit int) ([]types.Render, error) {
	var out []types.Render
	q := url.Values{}
	q.Set("after", strconv.FormatUint(after, 10))
	q.Set("limit", strconv.Itoa(limit))
	_, err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id)+"/renders?"+q.Encode(), nil, &out, StatusOK)
	return out, err
}

// SaveTake stores the session's recording under name.
func (c *HTTPClient) SaveTake(ctx context.Context, id, name string) (types.Take, error) {
	var t types.Take
	body := map[string]string{"name": name}
	_, err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/takes", body, &t, StatusCreated)
	return t, err
}
