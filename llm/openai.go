package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aicli-sh/aicli/config"
	"github.com/aicli-sh/aicli/errors"
	"github.com/aicli-sh/aicli/session"
)

// OpenAIClient speaks the OpenAI-compatible chat/completions streaming
// protocol. It covers the gpt, deepseek and other model families, including
// Azure OpenAI and Azure AI Foundry endpoint layouts.
type OpenAIClient struct {
	cfg config.ModelConfig
}

func (c *OpenAIClient) ModelName() string { return c.cfg.Name }
func (c *OpenAIClient) MaxContext() int   { return c.cfg.Type.MaxContext() }

type chatCompletionRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
	Tools       []chatTool   `json:"tools,omitempty"`
	Stream      bool         `json:"stream"`
}

type chatTool struct {
	Type     string           `json:"type"`
	Function chatToolFunction `json:"function"`
}

type chatToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type chatCompletionChunk struct {
	Choices []chatChunkChoice `json:"choices"`
}

type chatChunkChoice struct {
	Delta        chatChunkDelta `json:"delta"`
	FinishReason *string        `json:"finish_reason"`
}

type chatChunkDelta struct {
	Content   *string             `json:"content"`
	ToolCalls []chatToolCallDelta `json:"tool_calls"`
}

type chatToolCallDelta struct {
	ID       string            `json:"id"`
	Function chatFunctionDelta `json:"function"`
}

type chatFunctionDelta struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Chat sends one streamed turn and parses the event stream into a Reply.
func (c *OpenAIClient) Chat(ctx context.Context, messages []session.Message, tools []ToolDefinition, onToken func(string)) (*Reply, error) {
	system := SystemPrompt()

	apiMessages := make([]apiMessage, 0, len(messages)+1)
	apiMessages = append(apiMessages, apiMessage{Role: "system", Content: system})
	apiMessages = append(apiMessages, flattenMessages(messages)...)

	var chatTools []chatTool
	for _, t := range tools {
		chatTools = append(chatTools, chatTool{
			Type: "function",
			Function: chatToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       c.cfg.Deployment,
		Messages:    apiMessages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Tools:       chatTools,
		Stream:      true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build request")
	}
	req.Header.Set("api-key", c.cfg.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request failed")
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	p := &openaiParser{onToken: onToken}
	dec := NewDecoder(resp.Body)
	for dec.Next() {
		p.parseEvent(dec.Data())
	}
	if err := dec.Err(); err != nil {
		return nil, errors.Wrapf(err, "stream read failed")
	}
	p.flush()

	content := p.content.String()
	return &Reply{
		Content:   content,
		ToolCalls: p.toolCalls,
		Usage:     estimateUsage(promptChars(system, messages), content),
	}, nil
}

// endpoint supports both the Azure AI Foundry and classic Azure OpenAI URL
// layouts, keyed off the configured endpoint shape.
func (c *OpenAIClient) endpoint() string {
	base := strings.TrimRight(c.cfg.Endpoint, "/")
	if strings.Contains(base, "/models") || strings.Contains(base, "services.ai.azure.com") {
		return base + "/models/chat/completions?api-version=2024-05-01-preview"
	}
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=2024-02-15-preview", base, c.cfg.Deployment)
}

// openaiParser folds chat/completions stream events into accumulated text and
// finalized tool calls. At most one tool call is pending at a time: a delta
// that carries a new function name replaces the pending call, and finalization
// happens on finish_reason or, defensively, at stream end (the finish_reason
// event may be absent).
type openaiParser struct {
	onToken   func(string)
	content   strings.Builder
	pending   *pendingToolCall
	toolCalls []session.ToolCall
}

func (p *openaiParser) parseEvent(data string) {
	if data == "[DONE]" {
		return
	}

	var chunk chatCompletionChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		// Malformed lines are never fatal to the turn.
		return
	}

	for _, choice := range chunk.Choices {
		if choice.Delta.Content != nil {
			p.content.WriteString(*choice.Delta.Content)
			if p.onToken != nil {
				p.onToken(*choice.Delta.Content)
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			if tc.Function.Name != "" {
				p.pending = &pendingToolCall{id: tc.ID, name: tc.Function.Name}
			}
			if tc.Function.Arguments != "" && p.pending != nil {
				p.pending.args.WriteString(tc.Function.Arguments)
			}
		}

		if choice.FinishReason != nil {
			if *choice.FinishReason == "tool_calls" || *choice.FinishReason == "stop" {
				p.flush()
			}
		}
	}
}

func (p *openaiParser) flush() {
	if call, ok := p.pending.finalize(); ok {
		p.toolCalls = append(p.toolCalls, call)
	}
	p.pending = nil
}
