// ABOUTME: Sentinel errors for the invocation router
// ABOUTME: Callers branch on these with errors.Is to map failures to responses

package router

import "errors"

// ErrToolNotFound indicates the requested tool exists in no source.
var ErrToolNotFound = errors.New("tool not found")

// ErrNotInvokable indicates the tool is config-only and cannot be called.
var ErrNotInvokable = errors.New("tool is not invokable")

// ErrServerUnavailable indicates the owning server is not connected.
var ErrServerUnavailable = errors.New("tool server unavailable")

// ErrPolicyDenied indicates the egress policy forbids reaching the server.
var ErrPolicyDenied = errors.New("denied by egress policy")
