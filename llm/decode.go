package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// completionEnvelope covers the response shapes seen from chat services:
// chat choices with string or multi-part content, legacy text choices,
// Messages-API content blocks, and services that put the text at the top
// level.
type completionEnvelope struct {
	Model      string          `json:"model"`
	Content    json.RawMessage `json:"content"`
	StopReason string          `json:"stop_reason"`
	Choices []struct {
		Message *struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
		Text         *string `json:"text"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Output json.RawMessage `json:"output"`
	Text   json.RawMessage `json:"text"`
	Usage  struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
		InputTokens      int `json:"input_tokens"`
		OutputTokens     int `json:"output_tokens"`
	} `json:"usage"`
}

// contentDecoder is one strategy for locating the completion text.
// It reports false when its shape is absent.
type contentDecoder struct {
	name   string
	decode func(*completionEnvelope) (string, bool)
}

// contentDecoders run in priority order; the first match wins.
var contentDecoders = []contentDecoder{
	{name: "message.content", decode: decodeMessageString},
	{name: "message.content[]", decode: decodeMessageParts},
	{name: "choices.text", decode: decodeChoiceText},
	{name: "content[]", decode: func(e *completionEnvelope) (string, bool) { return joinTextParts(e.Content) }},
	{name: "output", decode: func(e *completionEnvelope) (string, bool) { return rawString(e.Output) }},
	{name: "text", decode: func(e *completionEnvelope) (string, bool) { return rawString(e.Text) }},
}

// DecodeCompletion extracts the completion from a chat response body. It
// returns a fatal ErrNoContent when no strategy matches.
func DecodeCompletion(body []byte) (*Response, error) {
	var env completionEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, NewFatalError(fmt.Errorf("parse completion response: %w", err))
	}

	for _, d := range contentDecoders {
		content, ok := d.decode(&env)
		if !ok {
			continue
		}
		resp := &Response{
			Content:      content,
			Model:        env.Model,
			Decoder:      d.name,
			Usage:        env.usage(),
			FinishReason: env.StopReason,
		}
		if len(env.Choices) > 0 {
			resp.FinishReason = env.Choices[0].FinishReason
		}
		return resp, nil
	}
	return nil, NewFatalError(ErrNoContent)
}

// usage reads either token-count convention and fills in the total.
func (e *completionEnvelope) usage() TokenUsage {
	u := TokenUsage{
		PromptTokens:     e.Usage.PromptTokens,
		CompletionTokens: e.Usage.CompletionTokens,
		TotalTokens:      e.Usage.TotalTokens,
	}
	if u.PromptTokens == 0 && u.CompletionTokens == 0 {
		u.PromptTokens = e.Usage.InputTokens
		u.CompletionTokens = e.Usage.OutputTokens
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

func decodeMessageString(e *completionEnvelope) (string, bool) {
	if len(e.Choices) == 0 || e.Choices[0].Message == nil {
		return "", false
	}
	return rawString(e.Choices[0].Message.Content)
}

func decodeMessageParts(e *completionEnvelope) (string, bool) {
	if len(e.Choices) == 0 || e.Choices[0].Message == nil {
		return "", false
	}
	return joinTextParts(e.Choices[0].Message.Content)
}

// joinTextParts concatenates the text parts of a content-part array.
func joinTextParts(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) == 0 {
		return "", false
	}
	var sb strings.Builder
	for _, p := range parts {
		if p.Type == "" || p.Type == "text" || p.Type == "output_text" {
			sb.WriteString(p.Text)
		}
	}
	if sb.Len() == 0 {
		return "", false
	}
	return sb.String(), true
}

func decodeChoiceText(e *completionEnvelope) (string, bool) {
	if len(e.Choices) == 0 || e.Choices[0].Text == nil || *e.Choices[0].Text == "" {
		return "", false
	}
	return *e.Choices[0].Text, true
}

// rawString decodes a non-empty JSON string.
func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}
