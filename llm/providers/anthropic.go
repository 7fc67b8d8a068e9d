// Package providers implements the chat-completion wire formats the llm
// client can speak. Importing it registers every provider.
package providers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/c360studio/repograph/llm"
)

// Messages implements the Anthropic Messages API. System prompts travel in
// a top-level field and max_tokens is mandatory.
type Messages struct {
	name       string
	defaultURL string
	version    string
}

// Anthropic is the registered Messages API provider.
var Anthropic = &Messages{
	name:       "anthropic",
	defaultURL: "https://api.anthropic.com",
	version:    "2023-06-01",
}

// defaultMaxTokens fills the mandatory max_tokens when the caller leaves it unset.
const defaultMaxTokens = 4096

func init() {
	llm.RegisterProvider(Anthropic)
}

// Name returns the provider identifier.
func (p *Messages) Name() string {
	return p.name
}

// BuildURL appends /v1/messages to the base URL.
func (p *Messages) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = p.defaultURL
	}
	return strings.TrimSuffix(baseURL, "/") + "/v1/messages"
}

// SetHeaders sends the key as x-api-key along with the pinned API version.
func (p *Messages) SetHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	req.Header.Set("anthropic-version", p.version)
}

type messagesRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

// BuildRequestBody moves system messages into the system field; several are
// joined with blank lines.
func (p *Messages) BuildRequestBody(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	var system []string
	turns := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			system = append(system, msg.Content)
			continue
		}
		turns = append(turns, chatMessage{Role: msg.Role, Content: msg.Content})
	}

	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return json.Marshal(messagesRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      strings.Join(system, "\n\n"),
		Messages:    turns,
		Temperature: temperature,
	})
}

// ParseResponse reads the text content blocks through the shared decoder
// chain, so a reply without text is a fatal ErrNoContent.
func (p *Messages) ParseResponse(body []byte, _ string) (*llm.Response, error) {
	return llm.DecodeCompletion(body)
}
