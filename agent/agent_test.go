package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/aicli-sh/aicli/config"
	"github.com/aicli-sh/aicli/llm"
	"github.com/aicli-sh/aicli/session"
	"github.com/aicli-sh/aicli/tools"
)

// scriptedClient returns canned replies in order. Once the script runs out it
// keeps answering with a plain "done" reply.
type scriptedClient struct {
	replies    []*llm.Reply
	errs       []error
	calls      int
	maxContext int
}

func (c *scriptedClient) Chat(ctx context.Context, messages []session.Message, defs []llm.ToolDefinition, onToken func(string)) (*llm.Reply, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i < len(c.replies) {
		return c.replies[i], nil
	}
	return &llm.Reply{Content: "done"}, nil
}

func (c *scriptedClient) ModelName() string { return "scripted" }

func (c *scriptedClient) MaxContext() int {
	if c.maxContext > 0 {
		return c.maxContext
	}
	return 128000
}

type stubTool struct {
	name  string
	fail  bool
	calls int
}

func (s *stubTool) Name() string                { return s.name }
func (s *stubTool) Description() string         { return "stub tool" }
func (s *stubTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }

func (s *stubTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	s.calls++
	if s.fail {
		return "", fmt.Errorf("boom")
	}
	return "ok", nil
}

func testAgent(t *testing.T, client llm.Client, stubs ...tools.Tool) *Agent {
	t.Helper()
	t.Chdir(t.TempDir())

	registry := tools.NewRegistry(&config.Config{})
	for _, s := range stubs {
		registry.Register(s)
	}
	sess, err := session.New("test")
	if err != nil {
		t.Fatal(err)
	}
	a, err := New(&config.Config{}, sess, "", ModeAuto, client, ToolVerbosityNone, registry)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func toolCall(name string) session.ToolCall {
	return session.ToolCall{ID: "c1", Name: name, Input: json.RawMessage(`{}`)}
}

func TestProcessUserInputSimpleTurn(t *testing.T) {
	client := &scriptedClient{replies: []*llm.Reply{
		{Content: "hello back", Usage: llm.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
	}}
	a := testAgent(t, client)

	if err := a.ProcessUserInput(context.Background(), "hello", ProcessCallbacks{}); err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}

	msgs := a.Session.Messages
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].Content.AsText() != "hello back" {
		t.Errorf("assistant content = %q", msgs[1].Content.AsText())
	}
	if a.TotalTokens() != 15 {
		t.Errorf("totalTokens = %d, want 15", a.TotalTokens())
	}
}

func TestProcessUserInputRollsBackOnFirstTurnError(t *testing.T) {
	client := &scriptedClient{errs: []error{fmt.Errorf("connection refused")}}
	a := testAgent(t, client)
	a.Session.AddMessage(session.Message{Role: "user", Content: session.Text("earlier")})

	err := a.ProcessUserInput(context.Background(), "new input", ProcessCallbacks{})
	if err == nil {
		t.Fatal("expected error")
	}
	msgs := a.Session.Messages
	if len(msgs) != 1 || msgs[0].Content.AsText() != "earlier" {
		t.Errorf("history after failed turn = %+v, want only the earlier message", msgs)
	}
}

func TestProcessUserInputToolLoop(t *testing.T) {
	stub := &stubTool{name: "echo_tool"}
	client := &scriptedClient{replies: []*llm.Reply{
		{ToolCalls: []session.ToolCall{toolCall("echo_tool")}},
		{Content: "all finished"},
	}}
	a := testAgent(t, client, stub)

	var calls, results int
	if err := a.ProcessUserInput(context.Background(), "do it", ProcessCallbacks{
		OnToolCall:   func(session.ToolCall) { calls++ },
		OnToolResult: func(tools.Result) { results++ },
	}); err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}

	if stub.calls != 1 || calls != 1 || results != 1 {
		t.Errorf("tool executions = %d, OnToolCall = %d, OnToolResult = %d", stub.calls, calls, results)
	}
	if client.calls != 2 {
		t.Errorf("chat calls = %d, want 2", client.calls)
	}

	msgs := a.Session.Messages
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want user, feedback, assistant", len(msgs))
	}
	feedback := msgs[1].Content.AsText()
	if !strings.HasPrefix(feedback, "Tool execution results:\n\n") {
		t.Errorf("feedback header: %q", feedback)
	}
	if !strings.Contains(feedback, "[Tool: echo_tool | Success: true]\nok") {
		t.Errorf("feedback body: %q", feedback)
	}
	if !strings.HasSuffix(feedback, "Continue with the task.") {
		t.Errorf("feedback trailer: %q", feedback)
	}
}

func TestProcessUserInputIterationCap(t *testing.T) {
	stub := &stubTool{name: "echo_tool"}
	// Every reply asks for another tool invocation.
	replies := make([]*llm.Reply, 20)
	for i := range replies {
		replies[i] = &llm.Reply{ToolCalls: []session.ToolCall{toolCall("echo_tool")}}
	}
	client := &scriptedClient{replies: replies}
	a := testAgent(t, client, stub)

	var notices []string
	err := a.ProcessUserInput(context.Background(), "loop forever", ProcessCallbacks{
		OnNotice: func(msg string) { notices = append(notices, msg) },
	})
	if err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}

	if client.calls != 1+maxToolIterations {
		t.Errorf("chat calls = %d, want %d", client.calls, 1+maxToolIterations)
	}
	found := false
	for _, n := range notices {
		if n == "Max iterations reached." {
			found = true
		}
	}
	if !found {
		t.Errorf("missing iteration cap notice, got %v", notices)
	}
}

func TestExecuteToolsFailureDoesNotAbortBatch(t *testing.T) {
	failing := &stubTool{name: "fail_tool", fail: true}
	ok := &stubTool{name: "echo_tool"}
	client := &scriptedClient{replies: []*llm.Reply{
		{ToolCalls: []session.ToolCall{
			{ID: "c1", Name: "fail_tool", Input: json.RawMessage(`{}`)},
			{ID: "c2", Name: "echo_tool", Input: json.RawMessage(`{}`)},
		}},
		{Content: "recovered"},
	}}
	a := testAgent(t, client, failing, ok)

	var results []tools.Result
	if err := a.ProcessUserInput(context.Background(), "go", ProcessCallbacks{
		OnToolResult: func(r tools.Result) { results = append(results, r) },
	}); err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Success || !strings.Contains(results[0].Output, "boom") {
		t.Errorf("failing result = %+v", results[0])
	}
	if !results[1].Success || results[1].Output != "ok" {
		t.Errorf("second result = %+v", results[1])
	}
	if ok.calls != 1 {
		t.Errorf("second tool ran %d times, want 1", ok.calls)
	}
}

func TestExecuteToolsDeclined(t *testing.T) {
	stub := &stubTool{name: "echo_tool"}
	client := &scriptedClient{replies: []*llm.Reply{
		{ToolCalls: []session.ToolCall{toolCall("echo_tool")}},
		{Content: "understood"},
	}}
	a := testAgent(t, client, stub)
	a.Mode = ModePrompt

	var declined tools.Result
	if err := a.ProcessUserInput(context.Background(), "go", ProcessCallbacks{
		ShouldExecuteTool: func(session.ToolCall) bool { return false },
		OnToolResult:      func(r tools.Result) { declined = r },
	}); err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}

	if stub.calls != 0 {
		t.Errorf("declined tool still ran %d times", stub.calls)
	}
	if declined.Success || declined.Output != "Tool execution declined by user" {
		t.Errorf("declined result = %+v", declined)
	}
}

func TestUnknownToolReportedAsFailure(t *testing.T) {
	client := &scriptedClient{replies: []*llm.Reply{
		{ToolCalls: []session.ToolCall{toolCall("no_such_tool")}},
		{Content: "ok"},
	}}
	a := testAgent(t, client)

	var result tools.Result
	if err := a.ProcessUserInput(context.Background(), "go", ProcessCallbacks{
		OnToolResult: func(r tools.Result) { result = r },
	}); err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}
	if result.Success || !strings.Contains(result.Output, "unknown tool") {
		t.Errorf("result = %+v", result)
	}
}

func TestFeedbackMessage(t *testing.T) {
	msg := feedbackMessage([]tools.Result{
		{ToolName: "read_file", Output: "contents", Success: true},
		{ToolName: "write_file", Output: "Error: denied", Success: false},
	})
	if msg.Role != "user" {
		t.Errorf("role = %q", msg.Role)
	}
	want := "Tool execution results:\n\n" +
		"[Tool: read_file | Success: true]\ncontents" +
		"\n\n---\n\n" +
		"[Tool: write_file | Success: false]\nError: denied" +
		"\n\nContinue with the task."
	if got := msg.Content.AsText(); got != want {
		t.Errorf("feedback = %q\nwant %q", got, want)
	}
}

func TestReset(t *testing.T) {
	client := &scriptedClient{replies: []*llm.Reply{
		{Content: "hi", Usage: llm.TokenUsage{TotalTokens: 40}},
	}}
	a := testAgent(t, client)
	if err := a.ProcessUserInput(context.Background(), "hello", ProcessCallbacks{}); err != nil {
		t.Fatal(err)
	}

	a.Reset()
	if len(a.Session.Messages) != 0 || a.TotalTokens() != 0 {
		t.Errorf("after reset: %d messages, %d tokens", len(a.Session.Messages), a.TotalTokens())
	}
}
