package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360studio/repograph/llm"
	_ "github.com/c360studio/repograph/llm/providers" // Register providers
	"github.com/c360studio/repograph/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastRetry keeps retry tests quick.
var fastRetry = llm.RetryConfig{
	MaxAttempts:       3,
	BackoffBase:       time.Millisecond,
	BackoffMultiplier: 2,
	MaxBackoff:        5 * time.Millisecond,
}

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"id":    "chatcmpl-123",
		"model": "deepseek-chat",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 8, "total_tokens": 18},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// registryFor builds a registry whose extraction capability prefers the
// given endpoints in order.
func registryFor(urls ...string) *model.Registry {
	names := make([]string, len(urls))
	endpoints := make(map[string]*model.EndpointConfig, len(urls))
	for i, u := range urls {
		name := "ep" + string(rune('a'+i))
		names[i] = name
		endpoints[name] = &model.EndpointConfig{Provider: "deepseek", URL: u, Model: "deepseek-chat", APIKey: "sk-" + name}
	}
	return model.NewRegistry(
		map[model.Capability]*model.CapabilityConfig{
			model.CapabilityExtraction: {Preferred: names[:1], Fallback: names[1:]},
		},
		endpoints,
	)
}

func userRequest() llm.Request {
	temp := 0.0
	return llm.Request{
		Capability:  model.CapabilityExtraction.String(),
		Messages:    []llm.Message{{Role: "user", Content: "Text: vllm is written in Python."}},
		Temperature: &temp,
		MaxTokens:   800,
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []error
}

func (o *recordingObserver) ObserveCompletion(_, _ string, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, err)
}

func TestClient_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer sk-epa", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "deepseek-chat", body["model"])
		assert.EqualValues(t, 0, body["temperature"])
		assert.EqualValues(t, 800, body["max_tokens"])

		writeJSON(w, chatCompletion(`[{"subject":"vllm","predicate":"writtenIn","object":"Python"}]`))
	}))
	defer server.Close()

	obs := &recordingObserver{}
	client := llm.NewClient(registryFor(server.URL), llm.WithObserver(obs))

	resp, err := client.Complete(context.Background(), userRequest())
	require.NoError(t, err)

	assert.Contains(t, resp.Content, "writtenIn")
	assert.Equal(t, "deepseek-chat", resp.Model)
	assert.Equal(t, "message.content", resp.Decoder)
	assert.Equal(t, 18, resp.Usage.TotalTokens)
	assert.NotEmpty(t, resp.RequestID)
	require.Len(t, obs.calls, 1)
	assert.NoError(t, obs.calls[0])
}

func TestClient_Complete_RetryOnTransientError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, chatCompletion("ok"))
	}))
	defer server.Close()

	client := llm.NewClient(registryFor(server.URL), llm.WithRetryConfig(fastRetry))

	resp, err := client.Complete(context.Background(), userRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_Complete_NoRetryOnFatalError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "invalid api key"}`))
	}))
	defer server.Close()

	var fallbackHits atomic.Int32
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackHits.Add(1)
		writeJSON(w, chatCompletion("ok"))
	}))
	defer fallback.Close()

	client := llm.NewClient(registryFor(server.URL, fallback.URL), llm.WithRetryConfig(fastRetry))

	_, err := client.Complete(context.Background(), userRequest())
	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
	assert.Contains(t, err.Error(), "status 401")
	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, int32(0), fallbackHits.Load())
}

func TestClient_Complete_Fallback(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer primary.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-epb", r.Header.Get("Authorization"))
		writeJSON(w, chatCompletion("from fallback"))
	}))
	defer fallback.Close()

	registry := registryFor(primary.URL, fallback.URL)
	client := llm.NewClient(registry, llm.WithRetryConfig(llm.RetryConfig{
		MaxAttempts:       2,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1,
	}))

	resp, err := client.Complete(context.Background(), userRequest())
	require.NoError(t, err)
	assert.Equal(t, "from fallback", resp.Content)

	health := registry.GetEndpointHealth("epa")
	require.NotNil(t, health)
	assert.Equal(t, 1, health.FailureCount)
}

func TestClient_Complete_AllEndpointsFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	obs := &recordingObserver{}
	client := llm.NewClient(registryFor(server.URL),
		llm.WithRetryConfig(fastRetry),
		llm.WithObserver(obs))

	_, err := client.Complete(context.Background(), userRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all endpoints failed")
	assert.True(t, llm.IsTransient(err))
	require.Len(t, obs.calls, 1)
	assert.Error(t, obs.calls[0])
}

func TestClient_Complete_NoContentIsFatal(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		writeJSON(w, map[string]any{"id": "x", "choices": []any{}})
	}))
	defer server.Close()

	client := llm.NewClient(registryFor(server.URL), llm.WithRetryConfig(fastRetry))

	_, err := client.Complete(context.Background(), userRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrNoContent)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_Complete_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := llm.NewClient(registryFor(server.URL), llm.WithRetryConfig(llm.RetryConfig{
		MaxAttempts:       5,
		BackoffBase:       time.Second,
		BackoffMultiplier: 1,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Complete(ctx, userRequest())
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_Complete_ValidationErrors(t *testing.T) {
	client := llm.NewClient(registryFor("http://unused"))

	_, err := client.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "x"}},
	})
	assert.ErrorContains(t, err, "capability is required")

	_, err = client.Complete(context.Background(), llm.Request{Capability: "extraction"})
	assert.ErrorContains(t, err, "at least one message")

	empty := llm.NewClient(model.NewRegistry(nil, nil))
	_, err = empty.Complete(context.Background(), userRequest())
	assert.ErrorContains(t, err, "no models configured")
}
