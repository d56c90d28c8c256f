// ABOUTME: Package doc for the invocation router
// ABOUTME: Routes tool calls to in-process handlers or remote servers

// Package router dispatches tool invocations by catalog resolution.
//
// Internal tools take precedence over external ones with the same name and
// run in-process. External calls go through the egress policy first, then
// over the server's live connection with a per-call timeout. Failures map
// onto a small sentinel error set so callers can branch with errors.Is.
package router
