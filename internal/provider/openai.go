package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/exoclaw/gateway/internal/wire"
)

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIProvider streams completions from the OpenAI chat completions API.
type OpenAIProvider struct {
	Client   *http.Client
	Endpoint string // defaults to the public chat completions API; overridable for tests
}

// NewOpenAIProvider builds an OpenAIProvider using http.DefaultClient.
func NewOpenAIProvider() *OpenAIProvider {
	return &OpenAIProvider{Client: http.DefaultClient, Endpoint: openAIEndpoint}
}

func (p *OpenAIProvider) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

func (p *OpenAIProvider) endpoint() string {
	if p.Endpoint != "" {
		return p.Endpoint
	}
	return openAIEndpoint
}

type openAIBody struct {
	Model         string                 `json:"model"`
	Messages      []wire.ProviderMessage `json:"messages"`
	MaxTokens     int                    `json:"max_tokens"`
	Stream        bool                   `json:"stream"`
	StreamOptions map[string]bool        `json:"stream_options,omitempty"`
	Tools         []map[string]any       `json:"tools,omitempty"`
}

// pendingToolCall accumulates one tool_calls[].delta across chunks, keyed
// by its index in the response.
type pendingToolCall struct {
	id   string
	name string
	args bytes.Buffer
}

// Stream issues a streaming chat completion request and translates its SSE
// chunks into the normalized vocabulary, accumulating tool_calls deltas by
// index until finish_reason=="tool_calls".
func (p *OpenAIProvider) Stream(ctx context.Context, req Request, ch chan<- wire.StreamEvent) error {
	messages := make([]wire.ProviderMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, wire.ProviderMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, m.AsProviderMessage())
	}

	body := openAIBody{
		Model:         req.Model,
		Messages:      messages,
		MaxTokens:     req.MaxTokens,
		Stream:        true,
		StreamOptions: map[string]bool{"include_usage": true},
	}
	if len(req.Tools) > 0 {
		body.Tools = BuildOpenAITools(req.Tools)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("openai: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := p.client().Do(httpReq)
	if err != nil {
		ch <- wire.StreamEvent{Kind: wire.EventError, ErrMessage: err.Error()}
		ch <- wire.StreamEvent{Kind: wire.EventDone}
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		text, _ := io.ReadAll(resp.Body)
		ch <- wire.StreamEvent{Kind: wire.EventError, ErrMessage: fmt.Sprintf("%d: %s", resp.StatusCode, text)}
		ch <- wire.StreamEvent{Kind: wire.EventDone}
		return nil
	}

	pending := make(map[int]*pendingToolCall)
	var inputTokens, outputTokens int
	done := false

	err = parseSSEStream(resp.Body, func(_ string, data string) error {
		if data == "[DONE]" {
			done = true
			ch <- wire.StreamEvent{Kind: wire.EventUsage, InputTokens: inputTokens, OutputTokens: outputTokens}
			ch <- wire.StreamEvent{Kind: wire.EventDone}
			return nil
		}

		var chunk struct {
			Usage *struct {
				PromptTokens     int `json:"prompt_tokens"`
				CompletionTokens int `json:"completion_tokens"`
			} `json:"usage"`
			Choices []struct {
				FinishReason string `json:"finish_reason"`
				Delta        struct {
					Content   string `json:"content"`
					ToolCalls []struct {
						Index    int    `json:"index"`
						ID       string `json:"id"`
						Function struct {
							Name      string `json:"name"`
							Arguments string `json:"arguments"`
						} `json:"function"`
					} `json:"tool_calls"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
		}

		if chunk.Usage != nil {
			inputTokens = chunk.Usage.PromptTokens
			outputTokens = chunk.Usage.CompletionTokens
		}

		if len(chunk.Choices) == 0 {
			return nil
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			ch <- wire.StreamEvent{Kind: wire.EventText, Text: choice.Delta.Content}
		}

		for _, tc := range choice.Delta.ToolCalls {
			entry, ok := pending[tc.Index]
			if !ok {
				entry = &pendingToolCall{}
				pending[tc.Index] = entry
			}
			if tc.ID != "" {
				entry.id = tc.ID
			}
			if tc.Function.Name != "" {
				entry.name = tc.Function.Name
			}
			entry.args.WriteString(tc.Function.Arguments)
		}

		if choice.FinishReason == "tool_calls" {
			indices := make([]int, 0, len(pending))
			for idx := range pending {
				indices = append(indices, idx)
			}
			for i := 1; i < len(indices); i++ {
				j := i
				for j > 0 && indices[j-1] > indices[j] {
					indices[j-1], indices[j] = indices[j], indices[j-1]
					j--
				}
			}
			for _, idx := range indices {
				entry := pending[idx]
				input := entry.args.Bytes()
				if len(input) == 0 || !json.Valid(input) {
					input = []byte("{}")
				}
				ch <- wire.StreamEvent{
					Kind:      wire.EventToolUse,
					ToolUseID: entry.id,
					ToolName:  entry.name,
					ToolInput: json.RawMessage(input),
				}
				delete(pending, idx)
			}
		}
		return nil
	})

	switch {
	case done:
	case err != nil:
		ch <- wire.StreamEvent{Kind: wire.EventError, ErrMessage: err.Error()}
		ch <- wire.StreamEvent{Kind: wire.EventDone}
	default:
		ch <- wire.StreamEvent{Kind: wire.EventUsage, InputTokens: inputTokens, OutputTokens: outputTokens}
		ch <- wire.StreamEvent{Kind: wire.EventDone}
	}
	return nil
}
