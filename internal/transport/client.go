// Package transport is the agent's authenticated HTTP client.
//
// Every authenticated call reads the bearer token from the credential store at
// call time. A response signalling an invalid token triggers one refresh round
// trip and one retry of the original request; a failed or exhausted refresh
// logs the driver out. Concurrent GETs of the same path share one network call.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"courier/internal/credentials"
)

const (
	// RefreshPath is the backend endpoint exchanging a refresh token for a new session.
	RefreshPath = "/auth/refresh"

	defaultTimeout            = 30 * time.Second
	defaultDedupWindow        = time.Second
	defaultMaxRefreshAttempts = 3
	maxResponseBytes          = 4 << 20
	requestIDHeader           = "X-Request-ID"
)

// Options configures a Client.
type Options struct {
	BaseURL            string
	Timeout            time.Duration
	DedupWindow        time.Duration
	MaxRefreshAttempts int

	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client

	// OnForcedLogout is called after the session has been cleared because it
	// could not be refreshed. It must not block.
	OnForcedLogout func(reason error)

	Clock quartz.Clock
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals a 2xx JSON body into v.
func (r *Response) Decode(v any) error {
	if !r.OK() {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, r.StatusCode)
	}
	return json.Unmarshal(r.Body, v)
}

type recentResult struct {
	resp      *Response
	startedAt time.Time
}

// Client talks to the backend on behalf of the logged-in driver.
type Client struct {
	logger  zerolog.Logger
	store   credentials.Store
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Response]
	clock   quartz.Clock

	baseURL        string
	dedupWindow    time.Duration
	maxAttempts    int32
	onForcedLogout func(reason error)

	group    singleflight.Group
	recentMu sync.Mutex
	recent   map[string]recentResult

	refreshMu       sync.Mutex
	refreshAttempts atomic.Int32
}

// New creates a Client. There should be one per process: the refresh attempt
// counter lives on it.
func New(logger zerolog.Logger, store credentials.Store, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = defaultDedupWindow
	}
	if opts.MaxRefreshAttempts <= 0 {
		opts.MaxRefreshAttempts = defaultMaxRefreshAttempts
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{
		logger:         logger,
		store:          store,
		http:           httpClient,
		clock:          opts.Clock,
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		dedupWindow:    opts.DedupWindow,
		maxAttempts:    int32(opts.MaxRefreshAttempts),
		onForcedLogout: opts.OnForcedLogout,
		recent:         make(map[string]recentResult),
	}
	c.breaker = newBreaker(logger)
	return c
}

// RefreshAttempts returns the current value of the refresh attempt counter.
func (c *Client) RefreshAttempts() int {
	return int(c.refreshAttempts.Load())
}

// Get performs an authenticated GET. Identical GETs issued while one is in
// flight, or within the dedup window of its start, share its response.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	key := http.MethodGet + " " + path
	if resp, ok := c.lookupRecent(key); ok {
		return resp, nil
	}

	startedAt := c.clock.Now()
	v, err, shared := c.group.Do(key, func() (any, error) {
		resp, err := c.do(ctx, http.MethodGet, path, nil, true)
		if err == nil {
			c.remember(key, resp, startedAt)
		}
		return resp, err
	})
	if shared {
		c.logger.Debug().Str("path", path).Msg("[TRANSPORT] Shared in-flight GET")
	}
	if err != nil {
		return nil, err
	}
	return v.(*Response), nil
}

// Post performs an authenticated POST with a JSON body. Writes are never deduplicated.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	data, err := encode(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, path, data, true)
}

// PostPublic performs an unauthenticated POST, used for login.
func (c *Client) PostPublic(ctx context.Context, path string, body any) (*Response, error) {
	data, err := encode(body)
	if err != nil {
		return nil, err
	}
	resp, _, err := c.send(ctx, http.MethodPost, path, data, "")
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, auth bool) (*Response, error) {
	if !auth {
		resp, _, err := c.send(ctx, method, path, body, "")
		return resp, err
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	resp, _, err := c.send(ctx, method, path, body, token)
	if err != nil {
		return nil, err
	}
	if !isInvalidToken(resp) {
		return resp, nil
	}

	c.logger.Info().Str("path", path).Int("status", resp.StatusCode).Msg("[TRANSPORT] Token rejected, refreshing")
	if err := c.refresh(ctx, token); err != nil {
		return nil, err
	}

	token, err = c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	resp, _, err = c.send(ctx, method, path, body, token)
	return resp, err
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	cred, err := c.store.Load(ctx)
	if err != nil {
		if errors.Is(err, credentials.ErrNoCredential) {
			return "", ErrNotAuthenticated
		}
		return "", err
	}
	return cred.AccessToken, nil
}

// send performs one round trip through the circuit breaker.
func (c *Client) send(ctx context.Context, method, path string, body []byte, token string) (*Response, string, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.breaker.Execute(func() (*Response, error) {
		httpResp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		r := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}
		if httpResp.StatusCode >= http.StatusInternalServerError {
			return r, errServerStatus
		}
		return r, nil
	})
	if errors.Is(err, errServerStatus) {
		err = nil
	}
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Str("request_id", requestID).Msg("[TRANSPORT] Request failed")
		return nil, requestID, err
	}
	return resp, requestID, nil
}

func (c *Client) lookupRecent(key string) (*Response, bool) {
	c.recentMu.Lock()
	defer c.recentMu.Unlock()

	r, ok := c.recent[key]
	if !ok {
		return nil, false
	}
	if c.clock.Since(r.startedAt) >= c.dedupWindow {
		delete(c.recent, key)
		return nil, false
	}
	return r.resp, true
}

func (c *Client) remember(key string, resp *Response, startedAt time.Time) {
	c.recentMu.Lock()
	defer c.recentMu.Unlock()

	for k, r := range c.recent {
		if c.clock.Since(r.startedAt) >= c.dedupWindow {
			delete(c.recent, k)
		}
	}
	if c.clock.Since(startedAt) < c.dedupWindow {
		c.recent[key] = recentResult{resp: resp, startedAt: startedAt}
	}
}

// Invalidate drops every remembered GET so the next read goes to the network.
func (c *Client) Invalidate() {
	c.forget()
}

func (c *Client) forget() {
	c.recentMu.Lock()
	defer c.recentMu.Unlock()
	clear(c.recent)
}

func encode(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return data, nil
}
