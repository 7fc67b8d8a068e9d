// Package fetch provides resilient HTTP GET with bounded retry and a
// paginated collector built on top of it.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 32 * 1024 * 1024 // 32MB

// Default retry settings.
const (
	DefaultMaxRetries  = 3
	DefaultTimeout     = 10 * time.Second
	DefaultBackoffBase = time.Second
)

// Response is a completed HTTP exchange. Non-2xx responses are returned as
// values; the caller decides what a status means.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err returns a StatusError for non-2xx responses and nil otherwise.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	body := string(r.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return &StatusError{URL: r.URL, StatusCode: r.StatusCode, Body: body}
}

// Observer receives one callback per attempt. It is used for metrics.
type Observer interface {
	ObserveAttempt(host string, status int, err error, elapsed time.Duration)
	ObserveRetry(host string)
}

// Fetcher performs GET requests with bounded retry on transient failures.
// It keeps no state between calls and is safe for concurrent use.
type Fetcher struct {
	httpClient  *http.Client
	maxRetries  int
	timeout     time.Duration
	backoffBase time.Duration
	logger      *slog.Logger
	observer    Observer
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = c
	}
}

// WithMaxRetries sets the total number of attempts per call.
func WithMaxRetries(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxRetries = n
		}
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithBackoffBase sets the first backoff delay. Delay doubles per attempt.
func WithBackoffBase(d time.Duration) Option {
	return func(f *Fetcher) {
		f.backoffBase = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// WithObserver sets the attempt observer.
func WithObserver(o Observer) Option {
	return func(f *Fetcher) {
		f.observer = o
	}
}

// withSleep replaces the backoff sleep; tests use it to avoid real delays.
func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) {
		f.sleep = fn
	}
}

// NewFetcher creates a Fetcher with default retry settings.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient:  &http.Client{},
		maxRetries:  DefaultMaxRetries,
		timeout:     DefaultTimeout,
		backoffBase: DefaultBackoffBase,
		logger:      slog.Default(),
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch issues a GET for rawURL with the given headers. Transient failures are
// retried up to the configured number of attempts with exponential backoff;
// after exhaustion the last failure is returned as a *TransientError. Any
// HTTP response, whatever its status, ends the loop and is returned.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt < f.maxRetries; attempt++ {
		resp, err := f.do(ctx, rawURL, headers)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err

		if attempt < f.maxRetries-1 {
			backoff := f.backoff(attempt)
			f.logger.Debug("Request failed, retrying",
				"url", rawURL,
				"attempt", attempt+1,
				"max_attempts", f.maxRetries,
				"backoff", backoff,
				"error", err)
			if f.observer != nil {
				f.observer.ObserveRetry(hostOf(rawURL))
			}
			if err := f.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}
	}

	var transient *TransientError
	if errors.As(lastErr, &transient) {
		transient.Attempts = f.maxRetries
	}
	f.logger.Warn("Request failed after retries", "url", rawURL, "attempts", f.maxRetries, "error", lastErr)
	return nil, lastErr
}

// backoff returns base * 2^attempt for a 0-based attempt.
func (f *Fetcher) backoff(attempt int) time.Duration {
	return f.backoffBase * time.Duration(1<<attempt)
}

// do executes a single attempt bounded by the per-request timeout.
func (f *Fetcher) do(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", rawURL, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := f.httpClient.Do(req)
	if err != nil {
		f.observe(req, 0, err, start)
		return nil, &TransientError{URL: rawURL, err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		f.observe(req, httpResp.StatusCode, err, start)
		return nil, &TransientError{URL: rawURL, err: fmt.Errorf("read body: %w", err)}
	}
	f.observe(req, httpResp.StatusCode, nil, start)

	return &Response{
		URL:        rawURL,
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

func (f *Fetcher) observe(req *http.Request, status int, err error, start time.Time) {
	if f.observer == nil {
		return
	}
	f.observer.ObserveAttempt(req.URL.Host, status, err, time.Since(start))
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
