// Package agent contains the conversation engine shared by the interaction
// front ends. It owns the message history, the running token estimate, and the
// processing loop that streams model turns, executes requested tools and feeds
// results back until the model stops asking.
//
// # Processing loop
//
// One call to ProcessUserInput is one full cycle:
//
//  1. The user message is appended to the session history.
//  2. If the token estimate is over the compaction threshold, older messages
//     are folded into a single summary message.
//  3. The full history is streamed to the model; text deltas arrive through
//     OnToken in order.
//  4. Any tool calls in the finalized response are executed sequentially, and
//     their results are appended as a user-role feedback message before the
//     model is re-entered. Re-entry repeats up to a fixed iteration cap.
//  5. The session is saved.
//
// A failure on the first turn rolls back the just-appended user message, so a
// transport error leaves the history exactly as it was.
//
// # Callbacks
//
// ProcessCallbacks lets each interaction mode decide how turn events surface:
// the terminal front end prints tokens as they stream and asks for tool
// confirmation in prompt mode, while tests observe the same events directly.
// Every callback is optional; a nil ShouldExecuteTool means tools always run.
//
// # Modes and verbosity
//
//   - ModeAuto: tools execute without confirmation
//   - ModePrompt: each tool call is gated through ShouldExecuteTool
//
// ToolVerbosityNone, ToolVerbosityInfo and ToolVerbosityAll control how much
// of each tool invocation the front end displays.
package agent
