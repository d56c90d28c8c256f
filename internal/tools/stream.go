// ABOUTME: Chunk stream types for internal streaming tools
// ABOUTME: A lazy, finite, non-restartable sequence consumed by a single puller

package tools

import (
	"context"
	"errors"
	"io"
)

// ErrCancelled is the distinguished cancellation condition raised by a tool
// when its invocation was intentionally stopped. Callers treat it as an
// expected termination, not a failure.
var ErrCancelled = errors.New("tool execution cancelled")

// ChunkKind discriminates the chunk types a streaming tool may produce.
type ChunkKind string

const (
	// ChunkProgress carries a freeform status payload; forwarded to the
	// bus, never persisted.
	ChunkProgress ChunkKind = "progress"
	// ChunkPartial carries incremental content; forwarded, never persisted.
	ChunkPartial ChunkKind = "partial"
	// ChunkFinal carries the complete content and optional citations; it is
	// the only chunk that produces a persisted artifact.
	ChunkFinal ChunkKind = "final"
)

// Source is citation metadata attached to a final chunk.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Chunk is one tagged value in a streaming tool's output sequence.
type Chunk struct {
	Kind    ChunkKind
	Status  map[string]any // progress only
	Content string         // partial and final
	Sources []Source       // final only
}

// ChunkStream is a pull-based, single-consumer sequence of chunks.
// Next returns io.EOF when the stream is exhausted and ErrCancelled (possibly
// wrapped) when the producer was intentionally stopped. A stream is not
// restartable; after a non-nil error Next must not be called again.
type ChunkStream interface {
	Next(ctx context.Context) (Chunk, error)
}

// sliceStream replays a fixed set of chunks. Used by simple streaming tools
// and tests.
type sliceStream struct {
	chunks []Chunk
	pos    int
}

// NewSliceStream returns a ChunkStream that yields the given chunks in order.
func NewSliceStream(chunks ...Chunk) ChunkStream {
	return &sliceStream{chunks: chunks}
}

func (s *sliceStream) Next(ctx context.Context) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	if s.pos >= len(s.chunks) {
		return Chunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}
