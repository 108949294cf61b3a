package terminal

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"

	"github.com/aicli-sh/aicli/agent"
	"github.com/aicli-sh/aicli/llm"
	"github.com/aicli-sh/aicli/render"
	"github.com/aicli-sh/aicli/session"
	"github.com/aicli-sh/aicli/tools"
)

const (
	colorPrefix = "\x1b[38;5;141m" // assistant prefix
	colorDim    = "\x1b[38;5;103m"
	colorTool   = "\x1b[38;5;215m"
	colorErr    = "\x1b[38;5;203m"
	colorReset  = "\x1b[0m"
)

// Terminal handles the interactive CLI mode for the agent.
type Terminal struct {
	agent *agent.Agent
	in    *bufio.Reader
}

// New creates a new Terminal instance.
func New(a *agent.Agent) *Terminal {
	return &Terminal{
		agent: a,
		in:    bufio.NewReader(os.Stdin),
	}
}

// Run starts the interactive loop. An optional initial prompt from the
// command line is processed before reading stdin.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	if initialPrompt != "" {
		if err := t.processTurn(ctx, initialPrompt); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Printf("%sYou:%s ", colorPrefix, colorReset)
		if !scanner.Scan() {
			// EOF or read error ends the session
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if t.runCommand(input) {
				break
			}
			continue
		}

		if err := t.processTurn(ctx, input); err != nil {
			fmt.Printf("%sError: %v%s\n", colorErr, err, colorReset)
		}
	}

	return scanner.Err()
}

// runCommand executes a slash command and reports whether the session
// should end.
func (t *Terminal) runCommand(input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/exit", "/quit", "/q":
		return true
	case "/clear", "/c":
		t.agent.Reset()
		fmt.Println("Conversation cleared.")
	case "/history":
		t.printHistory()
	case "/model":
		if len(fields) < 2 {
			fmt.Printf("Usage: /model <name>. Available: %s\n",
				strings.Join(t.modelNames(), ", "))
			break
		}
		t.switchModel(fields[1])
	case "/config":
		t.printConfig()
	case "/help", "/h":
		t.printHelp()
	default:
		fmt.Printf("Unknown command %s. Try /help.\n", fields[0])
	}
	return false
}

func (t *Terminal) printHistory() {
	if len(t.agent.Session.Messages) == 0 {
		fmt.Println("No messages yet.")
		return
	}
	for i, msg := range t.agent.Session.Messages {
		preview := strings.ReplaceAll(msg.Content.AsText(), "\n", " ")
		if len(preview) > 80 {
			preview = preview[:80] + "..."
		}
		fmt.Printf("%3d %s[%s]%s %s\n", i+1, colorDim, msg.Role, colorReset, preview)
	}
}

func (t *Terminal) modelNames() []string {
	names := make([]string, 0, len(t.agent.Config.Models))
	for name := range t.agent.Config.Models {
		names = append(names, name)
	}
	return names
}

func (t *Terminal) switchModel(name string) {
	if !t.agent.Config.SetActiveModel(name) {
		fmt.Printf("%sError: no model named %q. Available: %s%s\n",
			colorErr, name, strings.Join(t.modelNames(), ", "), colorReset)
		return
	}
	mc, err := t.agent.Config.ActiveModelConfig()
	if err != nil {
		fmt.Printf("%sError: %v%s\n", colorErr, err, colorReset)
		return
	}
	t.agent.Client = llm.New(mc)
	fmt.Printf("Switched to model %s (%s).\n", name, mc.Type)
}

func (t *Terminal) printConfig() {
	mc, err := t.agent.Config.ActiveModelConfig()
	if err != nil {
		fmt.Printf("%sError: %v%s\n", colorErr, err, colorReset)
		return
	}
	key := mc.APIKey
	if len(key) > 8 {
		key = key[:8] + "..."
	}
	fmt.Printf("Model:       %s\n", mc.Name)
	fmt.Printf("Type:        %s (context %d)\n", mc.Type, mc.Type.MaxContext())
	fmt.Printf("Endpoint:    %s\n", mc.Endpoint)
	if mc.Deployment != "" {
		fmt.Printf("Deployment:  %s\n", mc.Deployment)
	}
	fmt.Printf("API key:     %s\n", key)
	fmt.Printf("Max tokens:  %d\n", mc.MaxTokens)
	fmt.Printf("Temperature: %.2f\n", mc.Temperature)
}

func (t *Terminal) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /exit, /quit, /q   End the session")
	fmt.Println("  /clear, /c         Clear the conversation history")
	fmt.Println("  /history           Show the conversation so far")
	fmt.Println("  /model <name>      Switch to another configured model")
	fmt.Println("  /config            Show the active model configuration")
	fmt.Println("  /help, /h          Show this help")
}

// turnPrinter tracks per-turn display state: the spinner, whether the
// assistant prefix was printed yet, and the code-block render state.
type turnPrinter struct {
	spin    *spinner
	started bool
	state   render.State
}

func (p *turnPrinter) stopSpinner() {
	if p.spin != nil {
		p.spin.Stop()
		p.spin = nil
	}
}

func (p *turnPrinter) beginResponse() {
	if p.started {
		return
	}
	p.stopSpinner()
	fmt.Printf("%sAI:%s ", colorPrefix, colorReset)
	p.started = true
}

func (p *turnPrinter) printDelta(text string) {
	var ops []render.Op
	p.state, ops = render.Feed(p.state, text)
	applyOps(ops)
}

func (p *turnPrinter) endResponse(content string) {
	p.stopSpinner()
	if !p.started && content != "" {
		// Nothing streamed; print the collected content in one go.
		p.beginResponse()
		p.printDelta(content)
	}
	var ops []render.Op
	p.state, ops = render.Flush(p.state)
	applyOps(ops)
	if p.started {
		fmt.Println()
	}
	p.started = false
	p.state = render.State{}
}

func applyOps(ops []render.Op) {
	for _, op := range ops {
		switch op.Kind {
		case render.OpText:
			fmt.Print(op.Text)
		case render.OpOpenBlock:
			fmt.Printf("%s```%s%s\n", colorDim, op.Lang, colorReset)
		case render.OpCloseBlock:
			fmt.Printf("%s```%s\n", colorDim, colorReset)
		case render.OpCodeLine:
			printCodeLine(op.Text, op.Lang)
		}
	}
}

func printCodeLine(line, lang string) {
	if err := quick.Highlight(os.Stdout, line+"\n", lang, "terminal256", "monokai"); err != nil {
		fmt.Println(line)
	}
}

// processTurn handles a single user input turn.
func (t *Terminal) processTurn(ctx context.Context, input string) error {
	p := &turnPrinter{spin: startSpinner("Thinking")}

	callbacks := agent.ProcessCallbacks{
		OnToken: func(token string) {
			p.beginResponse()
			p.printDelta(token)
		},
		OnResponseDone: func(content string, usage llm.TokenUsage) {
			p.endResponse(content)
		},
		OnToolCall: func(call session.ToolCall) {
			p.stopSpinner()
			switch t.agent.Verbosity {
			case agent.ToolVerbosityAll:
				fmt.Printf("%s→ %s%s %s\n", colorTool, call.Name, colorReset, string(call.Input))
			case agent.ToolVerbosityInfo:
				fmt.Printf("%s→ %s%s\n", colorTool, call.Name, colorReset)
			}
		},
		OnToolResult: func(result tools.Result) {
			if t.agent.Verbosity != agent.ToolVerbosityNone {
				printToolResult(result)
			}
			// The model gets the results next; show progress again.
			p.spin = startSpinner("Thinking")
		},
		ShouldExecuteTool: func(call session.ToolCall) bool {
			if t.agent.Mode != agent.ModePrompt {
				return true
			}
			p.stopSpinner()
			fmt.Printf("%sRun %s with %s? (y/n):%s ", colorTool, call.Name, string(call.Input), colorReset)
			answer, _ := t.in.ReadString('\n')
			return strings.TrimSpace(strings.ToLower(answer)) == "y"
		},
		OnNotice: func(message string) {
			p.stopSpinner()
			fmt.Printf("%s%s%s\n", colorDim, message, colorReset)
		},
		OnWarning: func(warning string) {
			p.stopSpinner()
			fmt.Printf("%sWarning: %s%s\n", colorErr, warning, colorReset)
		},
	}

	err := t.agent.ProcessUserInput(ctx, input, callbacks)
	p.stopSpinner()
	if err != nil {
		return err
	}
	fmt.Printf("%sContext: %d tokens (%.0f%%)%s\n",
		colorDim, t.agent.TotalTokens(), t.agent.ContextPercent()*100, colorReset)
	return nil
}

// printToolResult shows a condensed view of a tool's output: the first few
// lines, each clipped.
func printToolResult(result tools.Result) {
	status := "✓"
	color := colorTool
	if !result.Success {
		status = "✗"
		color = colorErr
	}
	fmt.Printf("%s%s %s%s\n", color, status, result.ToolName, colorReset)
	lines := strings.Split(strings.TrimRight(result.Output, "\n"), "\n")
	const maxLines, maxWidth = 4, 70
	for i, line := range lines {
		if i == maxLines {
			fmt.Printf("  %s... (%d more lines)%s\n", colorDim, len(lines)-maxLines, colorReset)
			break
		}
		if len(line) > maxWidth {
			line = line[:maxWidth] + "..."
		}
		fmt.Printf("  %s%s%s\n", colorDim, line, colorReset)
	}
}
