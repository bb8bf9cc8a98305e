package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/wachiwi/rpi-webstream/pkg/framebuffer"
)

// FrameSource is the read side of the frame buffer.
type FrameSource interface {
	Next(ctx context.Context, since uint64) (framebuffer.Frame, error)
}

// State is the streaming session state.
type State int32

const (
	StateAwaitingFrame State = iota
	StateWritingSegment
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingFrame:
		return "awaiting_frame"
	case StateWritingSegment:
		return "writing_segment"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session streams frames to one viewer. It owns its writer exclusively and is
// never shared between connections.
type Session struct {
	ID     string
	Remote string

	source   FrameSource
	w        io.Writer
	lastSeen atomic.Uint64
	state    atomic.Int32
	written  atomic.Uint64
}

// NewSession creates a session that writes to w. If w implements http.Flusher it
// is flushed after every segment.
func NewSession(source FrameSource, w io.Writer, remote string) *Session {
	return &Session{
		ID:     uuid.NewString(),
		Remote: remote,
		source: source,
		w:      w,
	}
}

// State returns the current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// LastGeneration returns the generation of the last frame written.
func (s *Session) LastGeneration() uint64 {
	return s.lastSeen.Load()
}

// SegmentsWritten returns how many segments reached the writer.
func (s *Session) SegmentsWritten() uint64 {
	return s.written.Load()
}

// Run writes every new frame until ctx ends, the source closes or a write fails.
// It always returns a non-nil error describing why the session ended.
func (s *Session) Run(ctx context.Context) error {
	defer s.state.Store(int32(StateClosed))

	for {
		s.state.Store(int32(StateAwaitingFrame))
		frame, err := s.source.Next(ctx, s.lastSeen.Load())
		if err != nil {
			return err
		}

		s.state.Store(int32(StateWritingSegment))
		if err := WriteSegment(s.w, frame.Data); err != nil {
			return fmt.Errorf("write segment %d: %w", frame.Generation, err)
		}
		if f, ok := s.w.(http.Flusher); ok {
			f.Flush()
		}

		s.lastSeen.Store(frame.Generation)
		s.written.Add(1)
		segmentsWritten.Add(ctx, 1)
		segmentBytes.Add(ctx, int64(len(frame.Data)))
	}
}
