// ABOUTME: Invocation router dispatching tool calls to internal handlers or external servers
// ABOUTME: Applies the egress policy and maps failures onto the sentinel error set

package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meshworks/toolmesh/internal/catalog"
	"github.com/meshworks/toolmesh/internal/mcp"
	"github.com/meshworks/toolmesh/internal/store"
	"github.com/meshworks/toolmesh/internal/tools"
)

// Resolver maps a tool name to its invocation target.
type Resolver interface {
	Resolve(ctx context.Context, name string) (catalog.Resolution, bool, error)
}

// Outcome is the result of a routed invocation. Streaming tools set Stream;
// everything else sets Result.
type Outcome struct {
	Result json.RawMessage
	Stream tools.ChunkStream
}

// Streaming reports whether the invocation produced a chunk stream.
func (o Outcome) Streaming() bool {
	return o.Stream != nil
}

// Router dispatches tool invocations. Internal tools run in-process; external
// tools are proxied to their owning server after the egress policy check.
type Router struct {
	resolver         Resolver
	servers          store.ServerStore
	restrictedEgress bool
	callTimeout      time.Duration
	log              *slog.Logger
}

// New creates a router. When restrictedEgress is set, external tools on
// non-loopback servers are refused with ErrPolicyDenied.
func New(resolver Resolver, servers store.ServerStore, restrictedEgress bool, callTimeout time.Duration, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		resolver:         resolver,
		servers:          servers,
		restrictedEgress: restrictedEgress,
		callTimeout:      callTimeout,
		log:              log.With("component", "router"),
	}
}

// Invoke routes one tool call. Cancellation surfaces as tools.ErrCancelled
// without additional wrapping so callers can tell an aborted call from a
// failed one.
func (r *Router) Invoke(ctx context.Context, inv tools.Invocation, name string, args json.RawMessage) (Outcome, error) {
	res, ok, err := r.resolver.Resolve(ctx, name)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Outcome{}, tools.ErrCancelled
		}
		return Outcome{}, fmt.Errorf("resolving tool %q: %w", name, err)
	}
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}

	if res.Internal() {
		return r.invokeInternal(ctx, inv, name, res.Binding, args)
	}
	return r.invokeExternal(ctx, name, res, args)
}

func (r *Router) invokeInternal(ctx context.Context, inv tools.Invocation, name string, binding tools.Binding, args json.RawMessage) (Outcome, error) {
	if binding.Definition.ConfigOnly {
		return Outcome{}, fmt.Errorf("%w: %q is configuration-only", ErrNotInvokable, name)
	}

	if binding.Streaming() {
		stream, err := binding.Stream(ctx, inv, args)
		if err != nil {
			return Outcome{}, r.classify(name, "", err)
		}
		return Outcome{Stream: stream}, nil
	}

	result, err := binding.Call(ctx, inv, args)
	if err != nil {
		return Outcome{}, r.classify(name, "", err)
	}
	return Outcome{Result: result}, nil
}

func (r *Router) invokeExternal(ctx context.Context, name string, res catalog.Resolution, args json.RawMessage) (Outcome, error) {
	serverID := res.ServerID

	if err := r.checkEgress(ctx, serverID); err != nil {
		return Outcome{}, err
	}

	if res.Client == nil {
		return Outcome{}, fmt.Errorf("%w: server %s", ErrServerUnavailable, serverID)
	}

	callCtx := ctx
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}

	result, err := res.Client.CallTool(callCtx, name, args)
	if err != nil {
		if errors.Is(err, mcp.ErrNotConnected) {
			return Outcome{}, fmt.Errorf("%w: server %s", ErrServerUnavailable, serverID)
		}
		return Outcome{}, r.classify(name, serverID, err)
	}
	return Outcome{Result: result}, nil
}

// checkEgress enforces the restricted egress policy against the server's
// stored connection details. Policy is evaluated per call so a server edit
// takes effect without reconnecting.
func (r *Router) checkEgress(ctx context.Context, serverID string) error {
	if !r.restrictedEgress {
		return nil
	}
	rec, err := r.servers.GetServer(ctx, serverID)
	if err != nil {
		return fmt.Errorf("loading server %s for policy check: %w", serverID, err)
	}
	details, err := mcp.ParseDetails(rec.Transport, rec.Details)
	if err != nil {
		return fmt.Errorf("server %q details: %w", rec.Name, err)
	}
	if !details.Loopback() {
		return fmt.Errorf("%w: server %q is not loopback", ErrPolicyDenied, rec.Name)
	}
	return nil
}

// classify normalizes a tool failure. Cancellation passes through as
// tools.ErrCancelled; everything else is wrapped with the tool identity.
func (r *Router) classify(name, serverID string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, tools.ErrCancelled) {
		return tools.ErrCancelled
	}
	if serverID != "" {
		return fmt.Errorf("tool %q on server %s failed: %w", name, serverID, err)
	}
	return fmt.Errorf("tool %q failed: %w", name, err)
}
