// Package terminal implements the interactive command-line front end for the
// agent.
//
// It runs a read-eval loop on stdin: plain input becomes a conversation turn,
// input starting with "/" is a local command (/help lists them). While a turn
// streams, text deltas are printed as they arrive, with fenced code blocks
// detected by the render package and highlighted line by line. A spinner runs
// between sending the request and the first token.
//
// In prompt mode every tool call is confirmed on the terminal before it runs;
// verbosity levels control how much of each call and its result is shown.
package terminal
