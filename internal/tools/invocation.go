// ABOUTME: Per-call invocation context carrying identity and correlation ids
// ABOUTME: The execution id links bus events and the persisted result for one call

package tools

import "github.com/google/uuid"

// Invocation is the ephemeral context of one tool call.
type Invocation struct {
	UserID      string
	SessionID   string
	ExecutionID string
}

// NewInvocation creates an invocation context with a fresh execution id.
func NewInvocation(userID, sessionID string) Invocation {
	return Invocation{
		UserID:      userID,
		SessionID:   sessionID,
		ExecutionID: uuid.New().String(),
	}
}
