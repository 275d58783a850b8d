package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"courtadmin/internal/adapters/http/perf"
	"courtadmin/internal/domain/booking"
	"courtadmin/internal/domain/failure"
)

// Remote API paths.
const (
	PathLogin    = "/admin/login"
	PathOverview = "/admin/overview"
	PathHistory  = "/admin/history"
)

// maxBody caps how much of a response is read.
const maxBody = 16 << 20

// ErrUnexpectedPayload is returned when a response holds no recognisable booking collection.
var ErrUnexpectedPayload = errors.New("unexpected payload from booking API")

// ErrNoToken is returned when a login response carries no token.
var ErrNoToken = errors.New("login response has no token")

// collectionKeys are the object fields a booking collection may be wrapped in, in lookup order.
var collectionKeys = []string{"bookings", "data", "history", "recentBookings", "items", "results"}

// Client talks to the remote booking API.
type Client struct {
	baseURL   string
	http      *http.Client
	collector *perf.Collector
}

// NewClient creates an API client.
// PRE: baseURL is an absolute URL; httpClient may be nil (http.DefaultClient is used)
// POST: Returns a client that records upstream timings to collector when non-nil
func NewClient(baseURL string, httpClient *http.Client, collector *perf.Collector) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      httpClient,
		collector: collector,
	}
}

// BaseURL returns the API root, used by the connectivity prober.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"accessToken"`
	Data        struct {
		Token string `json:"token"`
	} `json:"data"`
}

// Login exchanges admin credentials for a bearer token.
// PRE: email and password are non-empty
// POST: Returns the token, or a *failure.StatusError for non-2xx responses
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", err
	}
	raw, err := c.do(ctx, http.MethodPost, PathLogin, "", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	var resp loginResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	for _, tok := range []string{resp.Token, resp.AccessToken, resp.Data.Token} {
		if tok != "" {
			return tok, nil
		}
	}
	return "", ErrNoToken
}

// Overview fetches the dashboard booking collection.
func (c *Client) Overview(ctx context.Context, token string) ([]booking.Raw, error) {
	return c.collection(ctx, PathOverview, token)
}

// History fetches the full booking history.
func (c *Client) History(ctx context.Context, token string) ([]booking.Raw, error) {
	return c.collection(ctx, PathHistory, token)
}

func (c *Client) collection(ctx context.Context, path, token string) ([]booking.Raw, error) {
	raw, err := c.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	out, err := DecodeCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// do performs one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path, token string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(method, path, 0, start)
		slog.Warn("api_request_failed", "method", method, "path", path, "error", err)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.observe(method, path, resp.StatusCode, start)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("api_request_rejected", "method", method, "path", path, "status", resp.StatusCode)
		return nil, &failure.StatusError{Code: resp.StatusCode, Path: path}
	}
	return raw, nil
}

func (c *Client) observe(method, path string, status int, start time.Time) {
	if c.collector == nil {
		return
	}
	c.collector.Record(perf.Entry{
		Kind:       perf.KindUpstream,
		Path:       method + " " + path,
		StatusCode: status,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Timestamp:  start,
	})
}

// DecodeCollection accepts a bare array of bookings or an object wrapping one
// under a known key, possibly nested (for example {"data":{"bookings":[...]}}).
// PRE: body is the raw response
// POST: Returns the bookings (empty for null) or ErrUnexpectedPayload
func DecodeCollection(body []byte) ([]booking.Raw, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return []booking.Raw{}, nil
	}

	switch trimmed[0] {
	case '[':
		var out []booking.Raw
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
		}
		return out, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
		}
		for _, k := range collectionKeys {
			if v, ok := obj[k]; ok {
				return DecodeCollection(v)
			}
		}
	}
	return nil, ErrUnexpectedPayload
}
