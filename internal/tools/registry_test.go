// ABOUTME: Tests for the static tool registry
// ABOUTME: Validates binding resolution, missing implementations and duplicates

package tools

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callableDef(name, module, function string) Definition {
	return Definition{
		Name:            name,
		ArgumentsSchema: map[string]any{"type": "object"},
		Impl:            &ImplementationRef{Module: module, Function: function},
		Source:          SourceInternal,
	}
}

func TestBuildRegistry_BindsCallables(t *testing.T) {
	impls := Implementations{
		"m.call":   {Call: func(context.Context, Invocation, json.RawMessage) (json.RawMessage, error) { return nil, nil }},
		"m.stream": {Stream: func(context.Context, Invocation, json.RawMessage) (ChunkStream, error) { return nil, nil }},
	}
	defs := []Definition{
		callableDef("single", "m", "call"),
		callableDef("streaming", "m", "stream"),
	}

	r := BuildRegistry(defs, impls, nil)

	single, ok := r.Lookup("single")
	require.True(t, ok)
	assert.NotNil(t, single.Call)
	assert.False(t, single.Streaming())

	streaming, ok := r.Lookup("streaming")
	require.True(t, ok)
	assert.True(t, streaming.Streaming())

	assert.Equal(t, []string{"single", "streaming"}, r.Names())
}

func TestBuildRegistry_DropsMissingImplementation(t *testing.T) {
	r := BuildRegistry([]Definition{callableDef("ghost", "no", "impl")}, Implementations{}, nil)

	_, ok := r.Lookup("ghost")
	assert.False(t, ok)
	assert.Empty(t, r.Definitions())
}

func TestBuildRegistry_ConfigOnlyHasNoCallable(t *testing.T) {
	defs := []Definition{{
		Name:            "settings",
		ArgumentsSchema: map[string]any{"type": "object"},
		ConfigOnly:      true,
		Source:          SourceInternal,
	}}

	r := BuildRegistry(defs, Implementations{}, nil)

	b, ok := r.Lookup("settings")
	require.True(t, ok)
	assert.Nil(t, b.Call)
	assert.Nil(t, b.Stream)
}

func TestBuildRegistry_DuplicateKeepsFirst(t *testing.T) {
	impls := Implementations{
		"m.first": {Call: func(context.Context, Invocation, json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage(`"first"`), nil
		}},
		"m.second": {Call: func(context.Context, Invocation, json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage(`"second"`), nil
		}},
	}
	defs := []Definition{
		callableDef("twin", "m", "first"),
		callableDef("twin", "m", "second"),
	}

	r := BuildRegistry(defs, impls, nil)
	require.Len(t, r.Definitions(), 1)

	b, ok := r.Lookup("twin")
	require.True(t, ok)
	out, err := b.Call(context.Background(), Invocation{}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"first"`, string(out))
}

func TestBuiltins_EchoStream(t *testing.T) {
	impls := Builtins()
	impl, ok := impls["echo.stream"]
	require.True(t, ok)
	require.NotNil(t, impl.Stream)

	stream, err := impl.Stream(context.Background(), NewInvocation("u", "s"), json.RawMessage(`{"text":"hello world"}`))
	require.NoError(t, err)

	var kinds []ChunkKind
	var final string
	for {
		chunk, err := stream.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		kinds = append(kinds, chunk.Kind)
		if chunk.Kind == ChunkFinal {
			final = chunk.Content
		}
	}

	assert.Equal(t, []ChunkKind{ChunkProgress, ChunkPartial, ChunkPartial, ChunkFinal}, kinds)
	assert.Equal(t, "hello world", final)
}

func TestNewInvocation_GeneratesExecutionID(t *testing.T) {
	a := NewInvocation("u", "s")
	b := NewInvocation("u", "s")

	assert.NotEmpty(t, a.ExecutionID)
	assert.NotEqual(t, a.ExecutionID, b.ExecutionID)
	assert.Equal(t, "u", a.UserID)
	assert.Equal(t, "s", a.SessionID)
}
