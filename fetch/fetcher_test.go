package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// flakyTransport fails the first n requests with a connection error and then
// delegates to the default transport.
func flakyTransport(n int32, calls *int32) http.RoundTripper {
	return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if atomic.AddInt32(calls, 1) <= n {
			return nil, errors.New("connection refused")
		}
		return http.DefaultTransport.RoundTrip(r)
	})
}

// recordSleep captures backoff delays without sleeping.
func recordSleep(delays *[]time.Duration) Option {
	return withSleep(func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	})
}

func TestFetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	f := NewFetcher()
	resp, err := f.Fetch(context.Background(), server.URL, map[string]string{"Authorization": "Bearer tok"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.OK())
	assert.NoError(t, resp.Err())
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestFetch_SucceedsOnFinalAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	var calls int32
	var delays []time.Duration
	f := NewFetcher(
		WithHTTPClient(&http.Client{Transport: flakyTransport(2, &calls)}),
		WithMaxRetries(3),
		WithBackoffBase(time.Second),
		recordSleep(&delays),
	)

	resp, err := f.Fetch(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestFetch_ExhaustsRetries(t *testing.T) {
	var calls int32
	var delays []time.Duration
	f := NewFetcher(
		WithHTTPClient(&http.Client{Transport: flakyTransport(100, &calls)}),
		WithMaxRetries(3),
		recordSleep(&delays),
	)

	_, err := f.Fetch(context.Background(), "http://example.invalid/x", nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Len(t, delays, 2)

	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, 3, transient.Attempts)
}

func TestFetch_NonSuccessStatusIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer server.Close()

	f := NewFetcher()
	resp, err := f.Fetch(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	statusErr := resp.Err()
	require.Error(t, statusErr)
	assert.True(t, IsStatus(statusErr))
	assert.Equal(t, http.StatusNotFound, StatusCode(statusErr))
}

func TestFetch_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	var delays []time.Duration
	f := NewFetcher(
		WithTimeout(20*time.Millisecond),
		WithMaxRetries(2),
		recordSleep(&delays),
	)

	_, err := f.Fetch(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Len(t, delays, 1)
}

func TestBackoff_DoublesWithoutJitter(t *testing.T) {
	f := NewFetcher(WithBackoffBase(100 * time.Millisecond))
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}
	for attempt, d := range want {
		for range 3 {
			assert.Equal(t, d, f.backoff(attempt))
		}
	}
}

func TestFetch_ContextCancelledDuringBackoff(t *testing.T) {
	var calls int32
	f := NewFetcher(
		WithHTTPClient(&http.Client{Transport: flakyTransport(100, &calls)}),
		WithBackoffBase(time.Hour),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := f.Fetch(ctx, "http://example.invalid/x", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Minute)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

type countingObserver struct {
	attempts int
	retries  int
}

func (o *countingObserver) ObserveAttempt(string, int, error, time.Duration) { o.attempts++ }
func (o *countingObserver) ObserveRetry(string)                            { o.retries++ }

func TestFetch_Observer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	var calls int32
	var delays []time.Duration
	obs := &countingObserver{}
	f := NewFetcher(
		WithHTTPClient(&http.Client{Transport: flakyTransport(1, &calls)}),
		WithObserver(obs),
		recordSleep(&delays),
	)

	_, err := f.Fetch(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, obs.attempts)
	assert.Equal(t, 1, obs.retries)
}

func TestResponseErr_TruncatesBody(t *testing.T) {
	body := make([]byte, 500)
	for i := range body {
		body[i] = 'x'
	}
	resp := &Response{URL: "u", StatusCode: http.StatusInternalServerError, Body: body}

	var statusErr *StatusError
	require.ErrorAs(t, resp.Err(), &statusErr)
	assert.Len(t, statusErr.Body, 203)
}
