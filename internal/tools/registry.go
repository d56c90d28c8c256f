// ABOUTME: Static implementation table and internal tool registry
// ABOUTME: Manifests bind to compiled-in callables at startup, not at call time

package tools

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Handler executes a single-shot internal tool.
type Handler func(ctx context.Context, inv Invocation, args json.RawMessage) (json.RawMessage, error)

// StreamHandler starts a streaming internal tool and returns its chunk stream.
type StreamHandler func(ctx context.Context, inv Invocation, args json.RawMessage) (ChunkStream, error)

// Implementation is one compiled-in callable. Exactly one of Call and Stream
// is set.
type Implementation struct {
	Call   Handler
	Stream StreamHandler
}

// Implementations maps implementation_ref keys ("module.function") to
// compiled-in callables. The table is assembled at build time, so a manifest
// referencing a missing implementation is detected at startup rather than at
// first invocation.
type Implementations map[string]Implementation

// Binding is a catalog definition resolved to its callable. Config-only
// definitions have neither Call nor Stream.
type Binding struct {
	Definition Definition
	Call       Handler
	Stream     StreamHandler
}

// Streaming reports whether the bound tool produces a chunk stream.
func (b Binding) Streaming() bool {
	return b.Stream != nil
}

// Registry holds the internal tool definitions bound to their callables.
// It is built once at initialization and read-only afterwards.
type Registry struct {
	defs     []Definition
	bindings map[string]Binding
}

// BuildRegistry binds discovered definitions against the implementation
// table. Definitions whose implementation cannot be resolved are dropped
// with a warning; duplicate names keep the first occurrence.
func BuildRegistry(defs []Definition, impls Implementations, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "tool-registry")

	r := &Registry{bindings: make(map[string]Binding, len(defs))}
	for _, def := range defs {
		if _, exists := r.bindings[def.Name]; exists {
			logger.Warn("duplicate internal tool name, keeping first", "tool", def.Name)
			continue
		}

		binding := Binding{Definition: def}
		if !def.ConfigOnly {
			impl, ok := impls[def.Impl.Key()]
			if !ok {
				logger.Warn("no implementation for tool, dropping",
					"tool", def.Name, "ref", def.Impl.Key())
				continue
			}
			binding.Call = impl.Call
			binding.Stream = impl.Stream
		}

		r.bindings[def.Name] = binding
		r.defs = append(r.defs, def)
	}
	return r
}

// Lookup returns the binding for an internal tool name.
func (r *Registry) Lookup(name string) (Binding, bool) {
	b, ok := r.bindings[name]
	return b, ok
}

// Definitions returns the registered internal definitions in discovery order.
func (r *Registry) Definitions() []Definition {
	return append([]Definition(nil), r.defs...)
}

// Names returns the registered internal tool names in discovery order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for _, d := range r.defs {
		names = append(names, d.Name)
	}
	return names
}
