// ABOUTME: Implementations shipped with the toolmesh binary
// ABOUTME: Plugin manifests reference these by module/function name

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Builtins returns the implementation table compiled into the binary.
func Builtins() Implementations {
	return Implementations{
		"echo.run":    {Call: echoRun},
		"echo.stream": {Stream: echoStream},
		"clock.now":   {Call: clockNow},
	}
}

// echoRun returns its arguments unchanged, wrapped in an envelope.
func echoRun(_ context.Context, inv Invocation, args json.RawMessage) (json.RawMessage, error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	out, err := json.Marshal(map[string]any{
		"echo":         json.RawMessage(args),
		"execution_id": inv.ExecutionID,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding echo result: %w", err)
	}
	return out, nil
}

// clockNow reports the current time in RFC 3339 format.
func clockNow(_ context.Context, _ Invocation, _ json.RawMessage) (json.RawMessage, error) {
	out, err := json.Marshal(map[string]string{
		"now": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding clock result: %w", err)
	}
	return out, nil
}

// echoStream streams the input text word by word, then emits a final chunk
// with the full text.
func echoStream(_ context.Context, _ Invocation, args json.RawMessage) (ChunkStream, error) {
	var in struct {
		Text string `json:"text"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("decoding echo stream args: %w", err)
		}
	}

	chunks := []Chunk{
		{Kind: ChunkProgress, Status: map[string]any{"state": "starting"}},
	}
	for _, word := range strings.Fields(in.Text) {
		chunks = append(chunks, Chunk{Kind: ChunkPartial, Content: word})
	}
	chunks = append(chunks, Chunk{Kind: ChunkFinal, Content: in.Text})

	return NewSliceStream(chunks...), nil
}
