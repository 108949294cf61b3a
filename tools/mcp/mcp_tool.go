package mcp

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"

	"github.com/aicli-sh/aicli/errors"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client manages the connection to a single MCP server subprocess.
type Client struct {
	Name  string
	cmd   *exec.Cmd
	conn  *mcpsdk.ClientSession
	tools []*Tool
}

// NewClient starts the MCP server subprocess, connects, and discovers the
// tools the server provides.
func NewClient(name, command string, args []string) (*Client, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr

	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "aicli", Version: "v1.0.0"}, nil)
	ctx := context.Background()
	conn, err := mcpClient.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		cmd.Process.Kill()
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}

	client := &Client{
		Name: name,
		cmd:  cmd,
		conn: conn,
	}

	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			cmd.Process.Kill()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}

		for _, t := range list.Tools {
			schema := json.RawMessage(`{"type":"object","properties":{}}`)
			if t.InputSchema != nil {
				if raw, err := json.Marshal(t.InputSchema); err == nil {
					schema = raw
				}
			}
			client.tools = append(client.tools, &Tool{
				serverName:  name,
				toolName:    t.Name,
				description: t.Description,
				parameters:  schema,
				client:      client,
			})
		}

		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}

	return client, nil
}

// Tools returns the tools discovered on this server.
func (c *Client) Tools() []*Tool {
	return c.tools
}

// Close terminates the server subprocess.
func (c *Client) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Kill()
	}
	return nil
}

// Tool is a tool served by an external MCP server. It satisfies the
// tools.Tool interface from the parent package.
type Tool struct {
	serverName  string
	toolName    string
	description string
	parameters  json.RawMessage
	client      *Client
}

func (t *Tool) Name() string                { return t.toolName }
func (t *Tool) Description() string         { return t.description }
func (t *Tool) Parameters() json.RawMessage { return t.parameters }

// Execute forwards the call to the MCP server and concatenates the text
// content of the result.
func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var args map[string]any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return "", errors.Wrapf(err, "invalid arguments for '%s'", t.toolName)
		}
	}

	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s'", t.toolName)
	}

	var out string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			out += tc.Text
		}
	}
	return out, nil
}
