package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/aicli-sh/aicli/config"
	"github.com/aicli-sh/aicli/errors"
	"github.com/aicli-sh/aicli/session"
)

// TokenUsage is the token accounting for one turn. Both adapters estimate it
// with the same characters/4 heuristic, so compaction timing is identical
// across providers. TotalTokens is always the sum of the other two.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ToolDefinition is the provider-agnostic tool schema: a name, a description
// and a JSON Schema for the arguments. The OpenAI adapter sends it under
// "parameters", the Anthropic adapter under "input_schema".
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Reply is the finalized result of one streamed turn.
type Reply struct {
	Content   string
	ToolCalls []session.ToolCall
	Usage     TokenUsage
}

// Client is the interface for one model endpoint. Chat sends the full message
// history, invokes onToken for every text delta in arrival order, and blocks
// until the stream ends. Exactly one Chat call is in flight at a time.
type Client interface {
	Chat(ctx context.Context, messages []session.Message, tools []ToolDefinition, onToken func(string)) (*Reply, error)
	ModelName() string
	MaxContext() int
}

// New constructs the client for a model. Exactly two wire formats exist:
// the Anthropic messages protocol for the claude family, the OpenAI
// chat/completions protocol for everything else.
func New(cfg config.ModelConfig) Client {
	if cfg.Type == config.ModelClaude {
		return &AnthropicClient{cfg: cfg}
	}
	return &OpenAIClient{cfg: cfg}
}

// streamClient is shared across all streaming API calls. A single shared
// transport reuses connections; compression is disabled because gzip over
// chunked encoding breaks incremental reads.
var streamClient = &http.Client{
	Transport: &http.Transport{
		TLSHandshakeTimeout:   30 * time.Second,
		ResponseHeaderTimeout: 2 * time.Minute,
		IdleConnTimeout:       90 * time.Second,
		DisableCompression:    true,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   4,
	},
}

// SystemPrompt returns the instruction block sent with every turn.
func SystemPrompt() string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return fmt.Sprintf(`You are an AI assistant with direct access to the user's computer through tools.
You can execute commands, read/write files, and perform system operations.

Current working directory: %s
Operating System: %s

IMPORTANT RULES:
1. Execute tasks IMMEDIATELY without asking for confirmation
2. Use tools proactively to accomplish tasks
3. When writing code, write complete, working solutions
4. If a task requires multiple steps, execute them all
5. Report results clearly and concisely
6. If an error occurs, try to fix it automatically

Available tools:
- execute_command: Run shell commands
- read_file: Read file contents
- write_file: Create/overwrite files
- edit_file: Modify existing files
- list_directory: List directory contents
- search_files: Find files by pattern
- search_content: Search text in files

Be efficient, precise, and helpful.`, cwd, runtime.GOOS)
}

// apiMessage is the flattened {role, content} shape both request bodies use.
// Structured parts are collapsed to their text.
type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func flattenMessages(messages []session.Message) []apiMessage {
	out := make([]apiMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, apiMessage{Role: m.Role, Content: m.Content.AsText()})
	}
	return out
}

// promptChars counts the characters the prompt side of a turn carries: the
// system prompt plus every history message's text.
func promptChars(system string, messages []session.Message) int {
	n := len(system)
	for _, m := range messages {
		n += len(m.Content.AsText())
	}
	return n
}

// estimateUsage applies the 1 token ~= 4 characters heuristic to both sides
// of a turn.
func estimateUsage(promptChars int, content string) TokenUsage {
	prompt := promptChars / 4
	completion := len(content) / 4
	return TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// pendingToolCall accumulates one tool invocation across stream events.
// Argument fragments are appended in arrival order; only the concatenation is
// valid JSON.
type pendingToolCall struct {
	id   string
	name string
	args strings.Builder
}

// finalize parses the accumulated arguments and produces the immutable
// ToolCall. A pending call with an empty name is discarded. Arguments that
// fail to parse default to an empty object rather than failing the turn.
func (p *pendingToolCall) finalize() (session.ToolCall, bool) {
	if p == nil || p.name == "" {
		return session.ToolCall{}, false
	}
	raw := json.RawMessage(p.args.String())
	if !json.Valid(raw) || len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	return session.ToolCall{ID: p.id, Name: p.name, Input: raw}, true
}

// checkResponse converts a non-2xx response into an APIError carrying the
// full body.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return &errors.APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
