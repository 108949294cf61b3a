package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/aicli-sh/aicli/config"
	"github.com/aicli-sh/aicli/session"
	"github.com/aicli-sh/aicli/tools/mcp"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool defines the interface for any action the agent can take. Parameters
// returns the JSON Schema for the tool's arguments; it is both sent to the
// model and used to validate inputs before dispatch.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// Result is the outcome of one tool invocation. A failing tool produces a
// Result with Success=false; it never aborts the surrounding batch.
type Result struct {
	ToolCallID string
	ToolName   string
	Output     string
	Success    bool
}

// Registry holds all available tools.
type Registry struct {
	tools      map[string]Tool
	order      []string
	mcpClients map[string]*mcp.Client
}

// NewRegistry builds a registry with the built-in tools wired to the
// configured restrictions, plus the tools discovered on any configured MCP
// servers. A server that fails to start is reported and skipped, never fatal.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		tools:      make(map[string]Tool),
		mcpClients: make(map[string]*mcp.Client),
	}

	fs := &cfg.FilesystemAccess
	r.Register(&ExecuteCommandTool{allowedCommands: cfg.AllowedCommands})
	r.Register(&ReadFileTool{fsAccess: fs})
	r.Register(&WriteFileTool{fsAccess: fs})
	r.Register(&EditFileTool{fsAccess: fs})
	r.Register(&ListDirectoryTool{})
	r.Register(&SearchFilesTool{})
	r.Register(&SearchContentTool{})

	for _, server := range cfg.MCPServers {
		client, err := mcp.NewClient(server.Name, server.Command, server.Args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not start MCP server '%s': %v\n", server.Name, err)
			continue
		}
		r.mcpClients[server.Name] = client
		for _, t := range client.Tools() {
			r.Register(t)
		}
	}

	return r
}

// Close terminates any MCP server subprocesses the registry started.
func (r *Registry) Close() {
	for _, client := range r.mcpClients {
		client.Close()
	}
}

func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// ActiveTools returns the tool instances for a toolset, in registration order.
// A nil toolset activates every registered tool.
func (r *Registry) ActiveTools(ts *config.Toolset) ([]Tool, error) {
	if ts == nil {
		active := make([]Tool, 0, len(r.order))
		for _, name := range r.order {
			active = append(active, r.tools[name])
		}
		return active, nil
	}

	var active []Tool
	for _, name := range ts.Tools {
		t, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("tool '%s' from toolset '%s' is not registered", name, ts.Name)
		}
		active = append(active, t)
	}
	return active, nil
}

// Execute dispatches one finalized tool call. The tool identity is an opaque
// key; unknown tools, invalid inputs and execution failures all come back as
// a Result with Success=false so the model sees the failure as context.
func (r *Registry) Execute(ctx context.Context, call session.ToolCall) Result {
	t, ok := r.Get(call.Name)
	if !ok {
		return failure(call, fmt.Errorf("unknown tool: %s", call.Name))
	}

	if err := validateInput(t.Parameters(), call.Input); err != nil {
		return failure(call, fmt.Errorf("invalid input for %s: %v", call.Name, err))
	}

	output, err := t.Execute(ctx, call.Input)
	if err != nil {
		return failure(call, err)
	}
	return Result{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Output:     output,
		Success:    true,
	}
}

func failure(call session.ToolCall, err error) Result {
	return Result{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Output:     fmt.Sprintf("Error: %v", err),
		Success:    false,
	}
}

// validateInput checks the call arguments against the tool's parameter schema.
func validateInput(schema, input json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("schema resource: %w", err)
	}
	s, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(input, &doc); err != nil {
		return fmt.Errorf("parse input: %w", err)
	}
	return s.Validate(doc)
}

// isPathRestricted checks if a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// isCommandAllowed checks a command against the allowlist (regex patterns).
// An empty allowlist places no restriction.
func isCommandAllowed(command string, allowed []string) (bool, error) {
	if len(allowed) == 0 {
		return true, nil
	}
	if len(strings.Fields(command)) == 0 {
		return false, nil
	}

	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			// Fall back to exact comparison when the pattern is not a regex.
			if command == pattern {
				return true, nil
			}
			continue
		}
		if re.MatchString(command) {
			return true, nil
		}
	}
	return false, nil
}
