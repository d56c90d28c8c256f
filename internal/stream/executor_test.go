// ABOUTME: Tests for the streaming execution protocol guarantees
// ABOUTME: Covers terminal event exactly-once, result persistence and replay rejection

package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshworks/toolmesh/internal/bus"
	"github.com/meshworks/toolmesh/internal/store"
	"github.com/meshworks/toolmesh/internal/tools"
)

type fakeResults struct {
	mu      sync.Mutex
	byExec  map[string]*store.ToolResult
	nextID  int
	saveErr error
}

func newFakeResults() *fakeResults {
	return &fakeResults{byExec: make(map[string]*store.ToolResult)}
}

func (f *fakeResults) SaveToolResult(_ context.Context, result *store.ToolResult) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	if existing, ok := f.byExec[result.ExecutionID]; ok {
		return existing.ID, nil
	}
	f.nextID++
	saved := *result
	saved.ID = fmt.Sprintf("result-%d", f.nextID)
	f.byExec[result.ExecutionID] = &saved
	return saved.ID, nil
}

func (f *fakeResults) GetToolResultByExecution(_ context.Context, executionID string) (*store.ToolResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.byExec[executionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return result, nil
}

// errStream yields fixed chunks and then a terminal error instead of io.EOF.
type errStream struct {
	chunks []tools.Chunk
	err    error
	pos    int
}

func (s *errStream) Next(context.Context) (tools.Chunk, error) {
	if s.pos < len(s.chunks) {
		c := s.chunks[s.pos]
		s.pos++
		return c, nil
	}
	return tools.Chunk{}, s.err
}

func newTestExecutor(t *testing.T) (*Executor, *fakeResults, *bus.Recorder) {
	t.Helper()
	results := newFakeResults()
	recorder := bus.NewRecorder()
	exec := NewExecutor(results, recorder, nil)
	t.Cleanup(exec.Close)
	return exec, results, recorder
}

func topics(events []bus.RecordedEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Topic)
	}
	return out
}

func TestRunHappyPath(t *testing.T) {
	exec, results, recorder := newTestExecutor(t)
	inv := tools.NewInvocation("user-1", "session-1")

	stream := tools.NewSliceStream(
		tools.Chunk{Kind: tools.ChunkProgress, Status: map[string]any{"step": "searching"}},
		tools.Chunk{Kind: tools.ChunkProgress, Status: map[string]any{"step": "ranking"}},
		tools.Chunk{Kind: tools.ChunkFinal, Content: "the answer", Sources: []tools.Source{{Title: "doc", URL: "https://example.com"}}},
	)

	require.NoError(t, exec.Run(context.Background(), inv, "research.run", stream))

	events := recorder.Events()
	assert.Equal(t, []string{
		bus.TopicStreamStarted,
		bus.TopicStreamChunk,
		bus.TopicStreamChunk,
		bus.TopicStreamComplete,
	}, topics(events))

	complete := events[len(events)-1].Event.(bus.StreamComplete)
	require.NotNil(t, complete.ResultID)

	saved, err := results.GetToolResultByExecution(context.Background(), inv.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, *complete.ResultID, saved.ID)
	assert.Equal(t, "the answer", saved.Content)
	require.Len(t, saved.Sources, 1)
	assert.Equal(t, "doc", saved.Sources[0].Title)
}

func TestRunCompletesWithoutFinalChunk(t *testing.T) {
	exec, results, recorder := newTestExecutor(t)
	inv := tools.NewInvocation("user-1", "session-1")

	stream := tools.NewSliceStream(
		tools.Chunk{Kind: tools.ChunkPartial, Content: "partial text"},
	)
	require.NoError(t, exec.Run(context.Background(), inv, "chatty.run", stream))

	events := recorder.Events()
	complete := events[len(events)-1].Event.(bus.StreamComplete)
	assert.Nil(t, complete.ResultID, "no final chunk means no result id")

	_, err := results.GetToolResultByExecution(context.Background(), inv.ExecutionID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunStreamFailure(t *testing.T) {
	exec, _, recorder := newTestExecutor(t)
	inv := tools.NewInvocation("user-1", "session-1")

	stream := &errStream{
		chunks: []tools.Chunk{{Kind: tools.ChunkProgress}},
		err:    errors.New("backend exploded"),
	}
	err := exec.Run(context.Background(), inv, "flaky.run", stream)
	require.Error(t, err)

	events := recorder.Events()
	assert.Equal(t, []string{
		bus.TopicStreamStarted,
		bus.TopicStreamChunk,
		bus.TopicStreamError,
	}, topics(events))

	failure := events[len(events)-1].Event.(bus.StreamError)
	assert.False(t, failure.Cancelled)
	assert.Contains(t, failure.Message, "backend exploded")
}

func TestRunCancellation(t *testing.T) {
	exec, _, recorder := newTestExecutor(t)
	inv := tools.NewInvocation("user-1", "session-1")

	stream := &errStream{err: tools.ErrCancelled}
	err := exec.Run(context.Background(), inv, "slow.run", stream)
	require.ErrorIs(t, err, tools.ErrCancelled)

	events := recorder.Events()
	failure := events[len(events)-1].Event.(bus.StreamError)
	assert.True(t, failure.Cancelled)
}

func TestRunExactlyOneTerminalEvent(t *testing.T) {
	exec, _, recorder := newTestExecutor(t)
	inv := tools.NewInvocation("user-1", "session-1")

	stream := tools.NewSliceStream(tools.Chunk{Kind: tools.ChunkFinal, Content: "done"})
	require.NoError(t, exec.Run(context.Background(), inv, "quick.run", stream))

	var terminals int
	for _, e := range recorder.Events() {
		if e.Topic == bus.TopicStreamComplete || e.Topic == bus.TopicStreamError {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
}

func TestRunChunkAfterFinalIsProtocolViolation(t *testing.T) {
	exec, _, recorder := newTestExecutor(t)
	inv := tools.NewInvocation("user-1", "session-1")

	stream := tools.NewSliceStream(
		tools.Chunk{Kind: tools.ChunkFinal, Content: "done"},
		tools.Chunk{Kind: tools.ChunkPartial, Content: "straggler"},
	)
	err := exec.Run(context.Background(), inv, "broken.run", stream)
	require.Error(t, err)

	events := recorder.Events()
	assert.Equal(t, bus.TopicStreamError, events[len(events)-1].Topic)

	// The straggler chunk must not reach subscribers.
	for _, e := range events {
		if e.Topic != bus.TopicStreamChunk {
			continue
		}
		chunk := e.Event.(bus.StreamChunk)
		assert.NotEqual(t, "straggler", chunk.Content)
	}
}

func TestRunPersistFailureIsTerminalError(t *testing.T) {
	exec, results, recorder := newTestExecutor(t)
	results.saveErr = errors.New("disk full")
	inv := tools.NewInvocation("user-1", "session-1")

	stream := tools.NewSliceStream(tools.Chunk{Kind: tools.ChunkFinal, Content: "done"})
	err := exec.Run(context.Background(), inv, "quick.run", stream)
	require.Error(t, err)

	events := recorder.Events()
	assert.Equal(t, bus.TopicStreamError, events[len(events)-1].Topic)
}

func TestRunRejectsReplayedExecution(t *testing.T) {
	exec, _, recorder := newTestExecutor(t)
	inv := tools.NewInvocation("user-1", "session-1")

	stream := tools.NewSliceStream(tools.Chunk{Kind: tools.ChunkFinal, Content: "first"})
	require.NoError(t, exec.Run(context.Background(), inv, "quick.run", stream))
	before := len(recorder.Events())

	replay := tools.NewSliceStream(tools.Chunk{Kind: tools.ChunkFinal, Content: "second"})
	err := exec.Run(context.Background(), inv, "quick.run", replay)
	require.ErrorIs(t, err, ErrDuplicateExecution)

	assert.Len(t, recorder.Events(), before, "a replay publishes nothing")
}

func TestGuardEvictsOldestAtCapacity(t *testing.T) {
	guard := NewGuard(defaultGuardTTL, 2)
	defer guard.Close()

	assert.False(t, guard.CheckAndMark("a"))
	assert.False(t, guard.CheckAndMark("b"))
	assert.False(t, guard.CheckAndMark("c"), "c is new")
	assert.False(t, guard.CheckAndMark("a"), "a was evicted to make room for c")
	assert.True(t, guard.CheckAndMark("c"))
}
