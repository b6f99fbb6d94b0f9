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

const anthropicEndpoint = "https://api.anthropic.com/v1/messages"

// AnthropicProvider streams completions from the Anthropic Messages API.
type AnthropicProvider struct {
	Client   *http.Client
	Endpoint string // defaults to the public Messages API; overridable for tests
}

// NewAnthropicProvider builds an AnthropicProvider using http.DefaultClient.
func NewAnthropicProvider() *AnthropicProvider {
	return &AnthropicProvider{Client: http.DefaultClient, Endpoint: anthropicEndpoint}
}

func (p *AnthropicProvider) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

func (p *AnthropicProvider) endpoint() string {
	if p.Endpoint != "" {
		return p.Endpoint
	}
	return anthropicEndpoint
}

type anthropicBody struct {
	Model     string                     `json:"model"`
	MaxTokens int                        `json:"max_tokens"`
	Messages  []wire.ProviderMessage     `json:"messages"`
	Stream    bool                       `json:"stream"`
	System    string                     `json:"system,omitempty"`
	Tools     []map[string]any           `json:"tools,omitempty"`
}

// Stream issues a streaming Messages API call and translates its SSE
// events into the normalized vocabulary, buffering each content block's
// partial_json deltas until content_block_stop before emitting ToolUse.
func (p *AnthropicProvider) Stream(ctx context.Context, req Request, ch chan<- wire.StreamEvent) error {
	messages := make([]wire.ProviderMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, m.AsProviderMessage())
	}

	body := anthropicBody{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Messages:  messages,
		Stream:    true,
		System:    req.SystemPrompt,
	}
	if len(req.Tools) > 0 {
		body.Tools = BuildAnthropicTools(req.Tools)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("anthropic: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("anthropic: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", req.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

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

	var (
		currentToolID    string
		currentToolName  string
		currentToolInput bytes.Buffer
		inputTokens      int
		outputTokens     int
		done             bool
	)

	err = parseSSEStream(resp.Body, func(eventType, data string) error {
		switch eventType {
		case "message_start":
			var evt struct {
				Message struct {
					Usage struct {
						InputTokens int `json:"input_tokens"`
					} `json:"usage"`
				} `json:"message"`
			}
			if json.Unmarshal([]byte(data), &evt) == nil {
				inputTokens = evt.Message.Usage.InputTokens
			}
		case "content_block_start":
			var evt struct {
				ContentBlock struct {
					Type string `json:"type"`
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"content_block"`
			}
			if json.Unmarshal([]byte(data), &evt) == nil && evt.ContentBlock.Type == "tool_use" {
				currentToolID = evt.ContentBlock.ID
				currentToolName = evt.ContentBlock.Name
				currentToolInput.Reset()
			}
		case "content_block_delta":
			var evt struct {
				Delta struct {
					Type        string `json:"type"`
					Text        string `json:"text"`
					PartialJSON string `json:"partial_json"`
				} `json:"delta"`
			}
			if json.Unmarshal([]byte(data), &evt) != nil {
				return nil
			}
			switch evt.Delta.Type {
			case "text_delta":
				ch <- wire.StreamEvent{Kind: wire.EventText, Text: evt.Delta.Text}
			case "input_json_delta":
				currentToolInput.WriteString(evt.Delta.PartialJSON)
			}
		case "content_block_stop":
			if currentToolID != "" {
				input := currentToolInput.Bytes()
				if len(input) == 0 || !json.Valid(input) {
					input = []byte("{}")
				}
				ch <- wire.StreamEvent{
					Kind:      wire.EventToolUse,
					ToolUseID: currentToolID,
					ToolName:  currentToolName,
					ToolInput: json.RawMessage(input),
				}
				currentToolID, currentToolName = "", ""
				currentToolInput.Reset()
			}
		case "message_delta":
			var evt struct {
				Usage struct {
					OutputTokens int `json:"output_tokens"`
				} `json:"usage"`
			}
			if json.Unmarshal([]byte(data), &evt) == nil {
				outputTokens = evt.Usage.OutputTokens
			}
		case "message_stop":
			done = true
			ch <- wire.StreamEvent{Kind: wire.EventUsage, InputTokens: inputTokens, OutputTokens: outputTokens}
			ch <- wire.StreamEvent{Kind: wire.EventDone}
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
