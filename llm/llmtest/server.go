// Package llmtest provides an in-process OpenAI-compatible chat completion
// endpoint for tests.
//
// Responses are scripted per model. When a model has several responses, the
// Nth call returns the Nth one and the last response repeats once the script
// is exhausted. Every request is captured for prompt assertions.
package llmtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"
)

// AnyModel scripts the responses served to models without their own script.
const AnyModel = "*"

// Message is one chat message as received on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a captured chat completion request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// Server is a scripted chat completion endpoint backed by httptest.
type Server struct {
	*httptest.Server

	calls atomic.Int64

	mu         sync.Mutex
	scripts    map[string][]string
	modelCalls map[string]int
	requests   []Request
	status     int
}

// NewServer starts a server answering every model with responses in order.
func NewServer(responses ...string) *Server {
	return NewModelServer(map[string][]string{AnyModel: responses})
}

// NewModelServer starts a server with per-model response scripts. The
// AnyModel key scripts unlisted models.
func NewModelServer(scripts map[string][]string) *Server {
	s := &Server{
		scripts:    scripts,
		modelCalls: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/chat/completions", s.handleChatCompletions)
	s.Server = httptest.NewServer(mux)
	return s
}

// FailWith makes every subsequent request fail with the given HTTP status.
// Zero restores scripted responses.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Calls returns the number of completion requests served, failures included.
func (s *Server) Calls() int {
	return int(s.calls.Load())
}

// Requests returns a copy of the captured requests in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	n := s.calls.Add(1)

	content, status := s.next(req)
	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      fmt.Sprintf("llmtest-%d", n),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       Message{Role: "assistant", Content: content},
		}},
		"usage": map[string]int{
			"prompt_tokens":     len(content) / 4,
			"completion_tokens": len(content) / 4,
			"total_tokens":      len(content) / 2,
		},
	})
}

// next records req and picks its response. A non-zero status means the
// request fails.
func (s *Server) next(req Request) (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if s.status != 0 {
		return "", s.status
	}

	script, ok := s.scripts[req.Model]
	if !ok {
		script, ok = s.scripts[AnyModel]
	}
	if !ok || len(script) == 0 {
		return "", http.StatusNotFound
	}

	i := s.modelCalls[req.Model]
	s.modelCalls[req.Model] = i + 1
	if i >= len(script) {
		i = len(script) - 1
	}
	return script[i], 0
}
