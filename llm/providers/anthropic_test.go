package providers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/c360studio/repograph/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessages_BuildURL(t *testing.T) {
	tests := []struct {
		baseURL string
		want    string
	}{
		{"", "https://api.anthropic.com/v1/messages"},
		{"https://proxy.internal", "https://proxy.internal/v1/messages"},
		{"https://proxy.internal/", "https://proxy.internal/v1/messages"},
	}
	for _, tt := range tests {
		t.Run(tt.baseURL, func(t *testing.T) {
			assert.Equal(t, tt.want, Anthropic.BuildURL(tt.baseURL))
		})
	}
}

func TestMessages_BuildRequestBody(t *testing.T) {
	temp := 0.0
	body, err := Anthropic.BuildRequestBody("claude-sonnet", []llm.Message{
		{Role: "system", Content: "Extract relations."},
		{Role: "user", Content: "Text: vllm is written in Python."},
		{Role: "system", Content: "Answer in JSON."},
	}, &temp, 800)
	require.NoError(t, err)

	var got messagesRequest
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "claude-sonnet", got.Model)
	assert.Equal(t, 800, got.MaxTokens)
	assert.Equal(t, "Extract relations.\n\nAnswer in JSON.", got.System)
	assert.Equal(t, []chatMessage{{Role: "user", Content: "Text: vllm is written in Python."}}, got.Messages)
	require.NotNil(t, got.Temperature)
	assert.Zero(t, *got.Temperature)
}

func TestMessages_BuildRequestBody_Defaults(t *testing.T) {
	body, err := Anthropic.BuildRequestBody("claude-sonnet", []llm.Message{{Role: "user", Content: "hi"}}, nil, 0)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"max_tokens":4096`)
	assert.NotContains(t, string(body), `"temperature"`)
	assert.NotContains(t, string(body), `"system"`)
}

func TestMessages_SetHeaders(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, Anthropic.BuildURL(""), nil)
	require.NoError(t, err)

	Anthropic.SetHeaders(req, "ak-test")
	assert.Equal(t, "ak-test", req.Header.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", req.Header.Get("anthropic-version"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestMessages_ParseResponse(t *testing.T) {
	resp, err := Anthropic.ParseResponse([]byte(`{
		"id": "msg_1",
		"type": "message",
		"content": [
			{"type": "text", "text": "[{\"predicate\":\"writtenIn\","},
			{"type": "text", "text": "\"object\":\"Python\"}]"}
		],
		"model": "claude-sonnet",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 40, "output_tokens": 12}
	}`), "claude-sonnet")
	require.NoError(t, err)

	assert.Equal(t, `[{"predicate":"writtenIn","object":"Python"}]`, resp.Content)
	assert.Equal(t, "content[]", resp.Decoder)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, llm.TokenUsage{PromptTokens: 40, CompletionTokens: 12, TotalTokens: 52}, resp.Usage)
}

func TestMessages_ParseResponse_NoText(t *testing.T) {
	_, err := Anthropic.ParseResponse([]byte(`{"content":[{"type":"tool_use"}],"model":"claude"}`), "claude")
	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
	assert.ErrorIs(t, err, llm.ErrNoContent)
}
