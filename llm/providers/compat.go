package providers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/c360studio/repograph/llm"
)

// ChatCompletions implements the OpenAI-compatible chat completions API
// spoken by OpenAI, DeepSeek, Ollama, vLLM and OpenRouter. Instances differ
// only in name and default base URL.
type ChatCompletions struct {
	name       string
	defaultURL string
}

// Registered OpenAI-compatible providers.
var (
	OpenAI   = &ChatCompletions{name: "openai", defaultURL: "https://api.openai.com/v1"}
	DeepSeek = &ChatCompletions{name: "deepseek", defaultURL: "https://api.deepseek.com/v1"}
	Ollama   = &ChatCompletions{name: "ollama", defaultURL: "http://localhost:11434/v1"}
)

func init() {
	llm.RegisterProvider(OpenAI)
	llm.RegisterProvider(DeepSeek)
	llm.RegisterProvider(Ollama)
}

// Name returns the provider identifier.
func (p *ChatCompletions) Name() string {
	return p.name
}

// BuildURL appends /chat/completions unless the base already ends with it.
func (p *ChatCompletions) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = p.defaultURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

// SetHeaders adds bearer authentication when a key is configured.
func (p *ChatCompletions) SetHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildRequestBody creates the chat completions request body.
func (p *ChatCompletions) BuildRequestBody(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	apiMessages := make([]chatMessage, len(messages))
	for i, msg := range messages {
		apiMessages[i] = chatMessage{Role: msg.Role, Content: msg.Content}
	}

	req := chatRequest{
		Model:       model,
		Messages:    apiMessages,
		Temperature: temperature, // nil = use default, 0 = deterministic
	}
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}
	return json.Marshal(req)
}

// ParseResponse decodes any of the completion shapes llm.DecodeCompletion
// understands. The requested model fills in when the body omits it.
func (p *ChatCompletions) ParseResponse(body []byte, model string) (*llm.Response, error) {
	resp, err := llm.DecodeCompletion(body)
	if err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = model
	}
	return resp, nil
}
