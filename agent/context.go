package agent

import (
	"fmt"
	"strings"

	"github.com/aicli-sh/aicli/session"
)

// Fixed policy constants. Compaction fires when the estimated context
// utilization crosses the threshold, keeps the most recent messages intact
// and replaces everything older with one synthetic summary message. The
// tool-feedback loop re-enters the model at most maxToolIterations times per
// user input.
const (
	compactThreshold   = 0.85
	keepRecentMessages = 4
	maxToolIterations  = 10
	summaryTruncateLen = 200
)

// compactIfNeeded performs the lossy history compaction when the running
// token estimate crosses the threshold. Irreversible: nothing restores the
// dropped detail.
func (a *Agent) compactIfNeeded(cb ProcessCallbacks) {
	percent := float64(a.totalTokens) / float64(a.Client.MaxContext())
	if percent <= compactThreshold || len(a.Session.Messages) <= keepRecentMessages {
		return
	}

	if cb.OnNotice != nil {
		cb.OnNotice(fmt.Sprintf("Context %d%% full. Auto-compacting...", int(percent*100)))
	}

	a.Session.Messages = compactMessages(a.Session.Messages)
	a.totalTokens = estimateTokens(a.Session.Messages)

	if cb.OnNotice != nil {
		cb.OnNotice("Conversation compacted. Continuing...")
	}
}

// estimateTokens applies the characters/4 heuristic across a history.
func estimateTokens(messages []session.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content.AsText()) / 4
	}
	return total
}

// compactMessages replaces all but the last keepRecentMessages messages with
// a single synthetic summary message of role user.
func compactMessages(messages []session.Message) []session.Message {
	if len(messages) <= keepRecentMessages {
		return messages
	}

	older := messages[:len(messages)-keepRecentMessages]
	recent := messages[len(messages)-keepRecentMessages:]

	lines := make([]string, 0, len(older))
	for _, m := range older {
		role := "Assistant"
		if m.Role == "user" {
			role = "User"
		}
		content := m.Content.AsText()
		if len(content) > summaryTruncateLen {
			content = content[:summaryTruncateLen] + "..."
		}
		lines = append(lines, fmt.Sprintf("[%s]: %s", role, content))
	}

	summary := session.Message{
		Role: "user",
		Content: session.Text(fmt.Sprintf(
			"[Conversation Summary - %d earlier messages]\n%s\n[End of Summary]",
			len(older), strings.Join(lines, "\n"))),
	}

	compacted := make([]session.Message, 0, 1+len(recent))
	compacted = append(compacted, summary)
	compacted = append(compacted, recent...)
	return compacted
}
