package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aicli-sh/aicli/config"
	"github.com/aicli-sh/aicli/errors"
	"github.com/aicli-sh/aicli/session"
)

// AnthropicClient speaks the Anthropic messages streaming protocol, either
// against the Anthropic API directly or through an Azure AI Foundry endpoint.
type AnthropicClient struct {
	cfg config.ModelConfig
}

func (c *AnthropicClient) ModelName() string { return c.cfg.Name }
func (c *AnthropicClient) MaxContext() int   { return c.cfg.Type.MaxContext() }

type messagesRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system"`
	Messages  []apiMessage    `json:"messages"`
	Tools     []anthropicTool `json:"tools,omitempty"`
	Stream    bool            `json:"stream"`
}

// anthropicTool is the messages-API tool shape: the schema travels under
// input_schema instead of parameters.
type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type messagesEvent struct {
	Type         string              `json:"type"`
	ContentBlock *messagesBlock      `json:"content_block"`
	Delta        *messagesBlockDelta `json:"delta"`
}

type messagesBlock struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

type messagesBlockDelta struct {
	Text        string `json:"text"`
	PartialJSON string `json:"partial_json"`
}

// Chat sends one streamed turn and parses the event stream into a Reply.
func (c *AnthropicClient) Chat(ctx context.Context, messages []session.Message, tools []ToolDefinition, onToken func(string)) (*Reply, error) {
	system := SystemPrompt()

	var anthropicTools []anthropicTool
	for _, t := range tools {
		anthropicTools = append(anthropicTools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}

	body, err := json.Marshal(messagesRequest{
		Model:     c.cfg.Deployment,
		MaxTokens: c.cfg.MaxTokens,
		System:    system,
		Messages:  flattenMessages(messages),
		Tools:     anthropicTools,
		Stream:    true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build request")
	}
	req.Header.Set("api-key", c.cfg.APIKey)
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")
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

	p := &anthropicParser{onToken: onToken}
	dec := NewDecoder(resp.Body)
	for dec.Next() {
		p.parseEvent(dec.Data())
	}
	if err := dec.Err(); err != nil {
		return nil, errors.Wrapf(err, "stream read failed")
	}

	content := p.content.String()
	return &Reply{
		Content:   content,
		ToolCalls: p.toolCalls,
		Usage:     estimateUsage(promptChars(system, messages), content),
	}, nil
}

func (c *AnthropicClient) endpoint() string {
	base := strings.TrimRight(c.cfg.Endpoint, "/")
	if strings.Contains(base, "services.ai.azure.com") {
		return base + "/anthropic/v1/messages"
	}
	return base + "/v1/messages"
}

// anthropicParser folds messages-API stream events into accumulated text and
// finalized tool calls. A tool_use content_block_start opens the pending call,
// partial_json deltas append raw fragments (individually invalid JSON; only
// the concatenation parses), and content_block_stop finalizes. All other
// event types are ignored.
type anthropicParser struct {
	onToken   func(string)
	content   strings.Builder
	pending   *pendingToolCall
	toolCalls []session.ToolCall
}

func (p *anthropicParser) parseEvent(data string) {
	var ev messagesEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		// Malformed lines are never fatal to the turn.
		return
	}

	switch ev.Type {
	case "content_block_start":
		if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
			p.pending = &pendingToolCall{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
		}
	case "content_block_delta":
		if ev.Delta == nil {
			return
		}
		if ev.Delta.Text != "" {
			p.content.WriteString(ev.Delta.Text)
			if p.onToken != nil {
				p.onToken(ev.Delta.Text)
			}
		}
		if ev.Delta.PartialJSON != "" && p.pending != nil {
			p.pending.args.WriteString(ev.Delta.PartialJSON)
		}
	case "content_block_stop":
		if call, ok := p.pending.finalize(); ok {
			p.toolCalls = append(p.toolCalls, call)
		}
		p.pending = nil
	}
}
