// Package framebuffer holds the latest complete JPEG frame produced by a capture
// source and hands it to any number of concurrent readers.
//
// A single writer feeds raw chunks through Ingest. A chunk starting with the JPEG
// start-of-image marker closes the frame being assembled, publishes it under a new
// generation and wakes every reader blocked in Next. Readers track the generation
// they last delivered, so intermediate frames are skipped for slow readers and memory
// stays bounded to one published frame plus the one being assembled.
package framebuffer

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxFrameSize bounds a single frame under assembly.
const DefaultMaxFrameSize = 10 * 1024 * 1024

// StartMarker is the JPEG start-of-image marker that begins every frame.
var StartMarker = []byte{0xFF, 0xD8}

// ErrClosed is returned by Next once the buffer has been closed.
var ErrClosed = errors.New("framebuffer: closed")

// Frame is one complete encoded image. Data must not be modified.
type Frame struct {
	Data       []byte
	Generation uint64
	Published  time.Time
}

// Stats is a point-in-time view of the buffer counters.
type Stats struct {
	Generation      uint64
	FramesPublished uint64
	ChunksDiscarded uint64
	Overflows       uint64
	PendingBytes    int
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithMaxFrameSize sets how large a frame under assembly may grow before it is
// discarded.
func WithMaxFrameSize(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.maxFrameSize = n
		}
	}
}

// WithPublishHook registers a function called after every published frame,
// outside the lock.
func WithPublishHook(fn func(Frame)) Option {
	return func(b *Buffer) { b.onPublish = fn }
}

// Buffer is the single-slot frame holder. The zero value is not usable; use New.
type Buffer struct {
	// Writer-owned: only Ingest and Flush touch these.
	pending      []byte
	maxFrameSize int
	onPublish    func(Frame)

	mu     sync.Mutex
	cond   *sync.Cond
	latest Frame
	closed bool

	done       atomic.Bool
	pendingLen atomic.Int64
	published  atomic.Uint64
	discarded  atomic.Uint64
	overflows  atomic.Uint64
}

// New returns an empty buffer at generation 0.
func New(opts ...Option) *Buffer {
	b := &Buffer{maxFrameSize: DefaultMaxFrameSize}
	b.cond = sync.NewCond(&b.mu)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IsFrameStart reports whether chunk begins a new frame.
func IsFrameStart(chunk []byte) bool {
	return bytes.HasPrefix(chunk, StartMarker)
}

// Ingest feeds one raw chunk from the capture source. It must only be called from
// a single goroutine. The chunk is copied, so the caller may reuse it.
func (b *Buffer) Ingest(chunk []byte) {
	if len(chunk) == 0 || b.done.Load() {
		return
	}

	if IsFrameStart(chunk) {
		b.finalize()
		if len(chunk) > b.maxFrameSize {
			b.overflows.Add(1)
			b.discarded.Add(1)
			return
		}
		b.pending = bytes.Clone(chunk)
		b.pendingLen.Store(int64(len(b.pending)))
		return
	}

	// Nothing to attach this chunk to until the next start marker: the stream
	// has not synced yet, the last frame overflowed, or it was just flushed.
	if len(b.pending) == 0 {
		b.discarded.Add(1)
		return
	}

	if len(b.pending)+len(chunk) > b.maxFrameSize {
		b.pending = nil
		b.pendingLen.Store(0)
		b.overflows.Add(1)
		b.discarded.Add(1)
		return
	}

	b.pending = append(b.pending, chunk...)
	b.pendingLen.Store(int64(len(b.pending)))
}

// Flush publishes the frame under assembly without waiting for the next start
// marker. Feeds that always deliver whole frames call it after each one.
func (b *Buffer) Flush() {
	b.finalize()
}

// finalize publishes the pending accumulation if it holds any bytes. The pending
// slice is handed over to the published frame and never written again.
func (b *Buffer) finalize() {
	if len(b.pending) == 0 {
		return
	}

	data := b.pending
	b.pending = nil
	b.pendingLen.Store(0)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.latest = Frame{
		Data:       data,
		Generation: b.latest.Generation + 1,
		Published:  time.Now(),
	}
	frame := b.latest
	b.cond.Broadcast()
	b.mu.Unlock()

	b.published.Add(1)
	if b.onPublish != nil {
		b.onPublish(frame)
	}
}

// Next returns the latest frame once its generation is greater than since. It
// blocks until that is true, ctx is done, or the buffer is closed.
func (b *Buffer) Next(ctx context.Context, since uint64) (Frame, error) {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for b.latest.Generation <= since {
		if b.closed {
			return Frame{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		b.cond.Wait()
	}
	return b.latest, nil
}

// Latest returns the most recently published frame, if any.
func (b *Buffer) Latest() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.latest.Generation > 0
}

// Generation returns the generation of the latest published frame.
func (b *Buffer) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest.Generation
}

// Close wakes every waiting reader with ErrClosed. A frame under assembly is
// dropped. Close is idempotent.
func (b *Buffer) Close() {
	b.done.Store(true)
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Stats returns the current counters.
func (b *Buffer) Stats() Stats {
	return Stats{
		Generation:      b.Generation(),
		FramesPublished: b.published.Load(),
		ChunksDiscarded: b.discarded.Load(),
		Overflows:       b.overflows.Load(),
		PendingBytes:    int(b.pendingLen.Load()),
	}
}
