// Package render turns a stream of raw text deltas into printable events,
// detecting fenced code blocks as they arrive. The detection state is an
// explicit value threaded through a pure transition function, so the protocol
// core never carries rendering state.
package render

import "strings"

// State is the code-block detection state between two Feed calls.
// Pending holds the tail of the current, not-yet-terminated line.
type State struct {
	InCodeBlock bool
	Lang        string
	Pending     string

	// midLine records that the head of the current line was already emitted,
	// which rules the line out as a fence.
	midLine bool
}

type OpKind int

const (
	OpText OpKind = iota
	OpOpenBlock
	OpCodeLine
	OpCloseBlock
)

// Op is one render event: plain text to print, a code line to highlight, or
// a block boundary.
type Op struct {
	Kind OpKind
	Text string
	Lang string
}

// Feed consumes one text delta and returns the updated state plus the render
// events it releases. Outside a code block, text flows through as soon as the
// current line can no longer open a fence; inside, lines are released one at
// a time so each can be highlighted whole.
func Feed(st State, text string) (State, []Op) {
	st.Pending += text
	var ops []Op

	for {
		i := strings.IndexByte(st.Pending, '\n')
		if i < 0 {
			break
		}
		line := st.Pending[:i]
		st.Pending = st.Pending[i+1:]
		atLineStart := !st.midLine
		st.midLine = false

		trimmed := strings.TrimSpace(line)
		switch {
		case atLineStart && strings.HasPrefix(trimmed, "```"):
			if st.InCodeBlock {
				ops = append(ops, Op{Kind: OpCloseBlock, Lang: st.Lang})
				st.InCodeBlock = false
				st.Lang = ""
			} else {
				st.InCodeBlock = true
				st.Lang = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
				ops = append(ops, Op{Kind: OpOpenBlock, Lang: st.Lang})
			}
		case st.InCodeBlock:
			ops = append(ops, Op{Kind: OpCodeLine, Text: line, Lang: st.Lang})
		default:
			ops = append(ops, Op{Kind: OpText, Text: line + "\n"})
		}
	}

	// Release the partial line early when it cannot be a fence.
	if !st.InCodeBlock && st.Pending != "" {
		if st.midLine || !strings.HasPrefix(strings.TrimSpace(st.Pending), "`") {
			ops = append(ops, Op{Kind: OpText, Text: st.Pending})
			st.Pending = ""
			st.midLine = true
		}
	}

	return st, ops
}

// Flush releases whatever is still buffered at the end of a response.
// An unterminated code block is closed implicitly.
func Flush(st State) (State, []Op) {
	var ops []Op
	if st.Pending != "" {
		if st.InCodeBlock {
			ops = append(ops, Op{Kind: OpCodeLine, Text: st.Pending, Lang: st.Lang})
		} else {
			ops = append(ops, Op{Kind: OpText, Text: st.Pending})
		}
		st.Pending = ""
	}
	if st.InCodeBlock {
		ops = append(ops, Op{Kind: OpCloseBlock, Lang: st.Lang})
		st.InCodeBlock = false
		st.Lang = ""
	}
	st.midLine = false
	return st, ops
}
