package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/aicli-sh/aicli/config"
	"github.com/aicli-sh/aicli/llm"
	"github.com/aicli-sh/aicli/session"
	"github.com/aicli-sh/aicli/tools"
)

type Mode string

const (
	ModeAuto   Mode = "auto"
	ModePrompt Mode = "prompt"
)

type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

// ProcessCallbacks lets an interaction mode observe a turn as it unfolds.
// OnToken fires once per text delta in arrival order. ShouldExecuteTool gates
// each tool call (prompt mode); a nil callback means always execute.
type ProcessCallbacks struct {
	OnToken           func(token string)
	OnResponseDone    func(content string, usage llm.TokenUsage)
	OnToolCall        func(call session.ToolCall)
	OnToolResult      func(result tools.Result)
	ShouldExecuteTool func(call session.ToolCall) bool
	OnNotice          func(message string)
	OnWarning         func(warning string)
}

// Agent owns the conversation history and drives the model/tool loop.
// It is strictly sequential: one ProcessUserInput call, and within it one
// network turn, at a time.
type Agent struct {
	Config    *config.Config
	Session   *session.Session
	Client    llm.Client
	Mode      Mode
	Verbosity ToolVerbosity

	registry    *tools.Registry
	activeTools []tools.Tool
	totalTokens int
}

func New(cfg *config.Config, sess *session.Session, toolset string, mode Mode, client llm.Client, verbosity ToolVerbosity, registry *tools.Registry) (*Agent, error) {
	active, err := registry.ActiveTools(cfg.GetToolset(toolset))
	if err != nil {
		return nil, err
	}

	return &Agent{
		Config:      cfg,
		Session:     sess,
		Client:      client,
		Mode:        mode,
		Verbosity:   verbosity,
		registry:    registry,
		activeTools: active,
		totalTokens: estimateTokens(sess.Messages),
	}, nil
}

// TotalTokens returns the running token estimate for the history.
func (a *Agent) TotalTokens() int { return a.totalTokens }

// Reset drops the conversation history and the token estimate.
func (a *Agent) Reset() {
	a.Session.Clear()
	a.totalTokens = 0
}

// ContextPercent returns the estimated context window utilization.
func (a *Agent) ContextPercent() float64 {
	return float64(a.totalTokens) / float64(a.Client.MaxContext())
}

// ProcessUserInput runs one full cycle: append the user message, compact if
// the context budget demands it, stream the model's response, execute any
// requested tools and feed the results back until the model stops asking or
// the iteration cap is reached.
//
// If the first turn of the cycle fails, the just-appended user message is
// rolled back so the history is exactly as it was; prior history is never
// touched by failures.
func (a *Agent) ProcessUserInput(ctx context.Context, input string, cb ProcessCallbacks) error {
	a.Session.AddMessage(session.Message{Role: "user", Content: session.Text(input)})

	a.compactIfNeeded(cb)

	reply, err := a.Client.Chat(ctx, a.Session.Messages, a.toolDefinitions(), cb.OnToken)
	if err != nil {
		a.Session.RemoveLast()
		return err
	}
	a.noteReply(reply, cb)

	if len(reply.ToolCalls) > 0 {
		results := a.executeTools(ctx, reply.ToolCalls, cb)

		iterations := 0
		for len(results) > 0 && iterations < maxToolIterations {
			iterations++
			a.Session.AddMessage(feedbackMessage(results))

			followUp, err := a.Client.Chat(ctx, a.Session.Messages, a.toolDefinitions(), cb.OnToken)
			if err != nil {
				// Tool feedback already in history stays; only the model
				// response is missing.
				return err
			}
			a.noteReply(followUp, cb)

			if len(followUp.ToolCalls) == 0 {
				results = nil
			} else {
				results = a.executeTools(ctx, followUp.ToolCalls, cb)
			}
		}

		if iterations >= maxToolIterations && cb.OnNotice != nil {
			cb.OnNotice("Max iterations reached.")
		}
	}

	if err := a.Session.Save(); err != nil && cb.OnWarning != nil {
		cb.OnWarning(fmt.Sprintf("failed to save session: %v", err))
	}
	return nil
}

// noteReply updates the token accounting and appends the assistant message
// when the model produced text.
func (a *Agent) noteReply(reply *llm.Reply, cb ProcessCallbacks) {
	a.totalTokens = reply.Usage.TotalTokens
	if reply.Content != "" {
		a.Session.AddMessage(session.Message{Role: "assistant", Content: session.Text(reply.Content)})
	}
	if cb.OnResponseDone != nil {
		cb.OnResponseDone(reply.Content, reply.Usage)
	}
}

// executeTools runs a batch sequentially, in the order the model emitted the
// calls. A declined or failing tool is reported as an unsuccessful result;
// the rest of the batch still executes.
func (a *Agent) executeTools(ctx context.Context, calls []session.ToolCall, cb ProcessCallbacks) []tools.Result {
	results := make([]tools.Result, 0, len(calls))
	for _, call := range calls {
		if cb.OnToolCall != nil {
			cb.OnToolCall(call)
		}

		var result tools.Result
		if cb.ShouldExecuteTool != nil && !cb.ShouldExecuteTool(call) {
			result = tools.Result{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Output:     "Tool execution declined by user",
				Success:    false,
			}
		} else {
			result = a.registry.Execute(ctx, call)
		}

		if cb.OnToolResult != nil {
			cb.OnToolResult(result)
		}
		results = append(results, result)
	}
	return results
}

// feedbackMessage folds a batch of tool results into the user-role message
// the model sees on re-entry.
func feedbackMessage(results []tools.Result) session.Message {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("[Tool: %s | Success: %t]\n%s", r.ToolName, r.Success, r.Output))
	}
	text := fmt.Sprintf("Tool execution results:\n\n%s\n\nContinue with the task.",
		strings.Join(parts, "\n\n---\n\n"))
	return session.Message{Role: "user", Content: session.Text(text)}
}

func (a *Agent) toolDefinitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(a.activeTools))
	for _, t := range a.activeTools {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}
