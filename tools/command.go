package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/aicli-sh/aicli/errors"
)

// ExecuteCommandTool implements the tool for running OS commands.
type ExecuteCommandTool struct {
	allowedCommands []string
}

func (t *ExecuteCommandTool) Name() string { return "execute_command" }

func (t *ExecuteCommandTool) Description() string {
	return "Execute a shell command on the system. Use this to run any command-line operations."
}

func (t *ExecuteCommandTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "string",
				"description": "The command to execute"
			},
			"working_dir": {
				"type": "string",
				"description": "Working directory for the command (optional)"
			}
		},
		"required": ["command"]
	}`)
}

func (t *ExecuteCommandTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		Command    string `json:"command"`
		WorkingDir string `json:"working_dir"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", errors.Wrapf(err, "invalid arguments")
	}
	if args.Command == "" {
		return "", errors.New("missing 'command' parameter")
	}

	allowed, err := isCommandAllowed(args.Command, t.allowedCommands)
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", errors.New("command '%s' is not in the list of allowed commands", args.Command)
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", args.Command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", args.Command)
	}
	if args.WorkingDir != "" {
		cmd.Dir = args.WorkingDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		// A non-zero exit is reported through the output, not as a tool
		// failure; only a spawn failure is an error.
		if _, ok := runErr.(*exec.ExitError); !ok {
			return "", errors.Wrapf(runErr, "command execution failed")
		}
	}

	var result string
	if stdout.Len() > 0 {
		result = stdout.String()
	}
	if stderr.Len() > 0 {
		if result != "" {
			result += "\n"
		}
		result += "[stderr]\n" + stderr.String()
	}
	if result == "" {
		result = fmt.Sprintf("Command completed with exit code: %d", cmd.ProcessState.ExitCode())
	}
	return result, nil
}
