// ABOUTME: Streaming execution protocol pumping chunk streams onto the event bus
// ABOUTME: Guarantees exactly one terminal event and exactly one persisted result per execution

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/meshworks/toolmesh/internal/bus"
	"github.com/meshworks/toolmesh/internal/store"
	"github.com/meshworks/toolmesh/internal/tools"
)

// ErrDuplicateExecution indicates a replayed execution id. The replayed
// request produces no events at all.
var ErrDuplicateExecution = errors.New("duplicate execution id")

const (
	defaultGuardTTL  = 10 * time.Minute
	defaultGuardSize = 10000
)

// Executor drives one streaming tool execution from start to terminal event.
//
// Protocol: a started event, zero or more chunk events, then exactly one of
// complete or error. A final chunk persists the result before the complete
// event is published, so a complete carrying a result id always refers to a
// durable row. The result store's idempotency keyed by execution id makes
// retried persists converge on the first write.
type Executor struct {
	results store.ResultStore
	bus     bus.Publisher
	guard   *Guard
	log     *slog.Logger
}

// NewExecutor creates an executor publishing to the given bus.
func NewExecutor(results store.ResultStore, publisher bus.Publisher, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		results: results,
		bus:     publisher,
		guard:   NewGuard(defaultGuardTTL, defaultGuardSize),
		log:     log.With("component", "stream-executor"),
	}
}

// Close releases the executor's replay guard.
func (e *Executor) Close() {
	e.guard.Close()
}

// Run pumps a chunk stream to completion. The returned error reports the
// execution outcome to the caller; subscribers learn it from the terminal
// event either way.
func (e *Executor) Run(ctx context.Context, inv tools.Invocation, toolName string, chunks tools.ChunkStream) error {
	if e.guard.CheckAndMark(inv.ExecutionID) {
		return fmt.Errorf("%w: %s", ErrDuplicateExecution, inv.ExecutionID)
	}

	log := e.log.With("execution_id", inv.ExecutionID, "tool", toolName)

	e.publish(ctx, bus.TopicStreamStarted, bus.StreamStarted{
		ExecutionID: inv.ExecutionID,
		SessionID:   inv.SessionID,
		ToolName:    toolName,
	})

	var resultID *string
	sawFinal := false

	for {
		chunk, err := chunks.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				e.publish(ctx, bus.TopicStreamComplete, bus.StreamComplete{
					ExecutionID: inv.ExecutionID,
					SessionID:   inv.SessionID,
					ResultID:    resultID,
				})
				log.Info("stream completed", "has_result", resultID != nil)
				return nil
			}
			cancelled := errors.Is(err, context.Canceled) || errors.Is(err, tools.ErrCancelled)
			e.publishError(ctx, inv, err.Error(), cancelled)
			if cancelled {
				log.Info("stream cancelled")
				return tools.ErrCancelled
			}
			log.Warn("stream failed", "error", err)
			return fmt.Errorf("streaming tool %q failed: %w", toolName, err)
		}

		if sawFinal {
			// The producer broke the protocol; terminate rather than
			// forward chunks subscribers must not see.
			err := fmt.Errorf("tool %q emitted a chunk after its final chunk", toolName)
			e.publishError(ctx, inv, err.Error(), false)
			log.Warn("protocol violation", "error", err)
			return err
		}

		switch chunk.Kind {
		case tools.ChunkProgress, tools.ChunkPartial:
			e.publish(ctx, bus.TopicStreamChunk, bus.StreamChunk{
				ExecutionID: inv.ExecutionID,
				SessionID:   inv.SessionID,
				Kind:        string(chunk.Kind),
				Content:     chunk.Content,
				Status:      chunk.Status,
			})

		case tools.ChunkFinal:
			sawFinal = true
			id, err := e.persist(ctx, inv, toolName, chunk)
			if err != nil {
				e.publishError(ctx, inv, err.Error(), false)
				log.Error("persisting final result failed", "error", err)
				return err
			}
			resultID = &id

		default:
			err := fmt.Errorf("tool %q emitted unknown chunk kind %q", toolName, chunk.Kind)
			e.publishError(ctx, inv, err.Error(), false)
			return err
		}
	}
}

// persist writes the final chunk's result. The store keys on execution id,
// so the returned id is canonical even if a retry raced an earlier write.
func (e *Executor) persist(ctx context.Context, inv tools.Invocation, toolName string, chunk tools.Chunk) (string, error) {
	sources := make([]store.ResultSource, 0, len(chunk.Sources))
	for _, s := range chunk.Sources {
		sources = append(sources, store.ResultSource{Title: s.Title, URL: s.URL})
	}
	id, err := e.results.SaveToolResult(ctx, &store.ToolResult{
		ExecutionID: inv.ExecutionID,
		UserID:      inv.UserID,
		SessionID:   inv.SessionID,
		ToolName:    toolName,
		Content:     chunk.Content,
		Sources:     sources,
	})
	if err != nil {
		return "", fmt.Errorf("saving result for execution %s: %w", inv.ExecutionID, err)
	}
	return id, nil
}

func (e *Executor) publishError(ctx context.Context, inv tools.Invocation, message string, cancelled bool) {
	e.publish(ctx, bus.TopicStreamError, bus.StreamError{
		ExecutionID: inv.ExecutionID,
		SessionID:   inv.SessionID,
		Message:     message,
		Cancelled:   cancelled,
	})
}

// publish sends an event without a context deadline; terminal events must
// go out even when the execution's context is already cancelled.
func (e *Executor) publish(_ context.Context, topic string, event any) {
	if err := e.bus.Publish(context.Background(), topic, event); err != nil {
		e.log.Error("publishing stream event failed", "topic", topic, "error", err)
	}
}
