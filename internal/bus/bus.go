// ABOUTME: Event bus topics and payload types for streaming tool executions
// ABOUTME: The bus itself is an external collaborator; this layer only publishes

package bus

import "context"

// Topics produced by the streaming execution protocol. Every payload carries
// the execution id and the originating session id.
const (
	TopicStreamStarted  = "tool.stream.started"
	TopicStreamChunk    = "tool.stream.chunk"
	TopicStreamComplete = "tool.stream.complete"
	TopicStreamError    = "tool.stream.error"
)

// StreamStarted announces a new streaming execution.
type StreamStarted struct {
	ExecutionID string `json:"execution_id"`
	SessionID   string `json:"session_id"`
	ToolName    string `json:"tool_name"`
}

// StreamChunk carries one progress or partial chunk. Kind discriminates the
// chunk type for subscribers.
type StreamChunk struct {
	ExecutionID string         `json:"execution_id"`
	SessionID   string         `json:"session_id"`
	Kind        string         `json:"kind"`
	Content     string         `json:"content,omitempty"`
	Status      map[string]any `json:"status,omitempty"`
}

// StreamComplete is the successful terminal event for an execution.
// ResultID is nil when the stream completed without emitting a final chunk.
type StreamComplete struct {
	ExecutionID string  `json:"execution_id"`
	SessionID   string  `json:"session_id"`
	ResultID    *string `json:"result_id"`
}

// StreamError is the failure terminal event for an execution.
type StreamError struct {
	ExecutionID string `json:"execution_id"`
	SessionID   string `json:"session_id"`
	Message     string `json:"message"`
	Cancelled   bool   `json:"cancelled"`
}

// Publisher is the publish-only view of the event bus. Durable delivery and
// subscriber fan-out are the collaborator's concern.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
}
