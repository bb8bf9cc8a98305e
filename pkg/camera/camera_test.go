package camera

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wachiwi/rpi-webstream/pkg/framebuffer"
)

// recordingSink keeps every chunk and counts flushes.
type recordingSink struct {
	mu      sync.Mutex
	chunks  [][]byte
	flushes int
}

func (s *recordingSink) Ingest(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, bytes.Clone(chunk))
}

func (s *recordingSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
}

func jpegLike(payload string) []byte {
	frame := []byte{0xFF, 0xD8}
	frame = append(frame, payload...)
	return append(frame, 0xFF, 0xD9)
}

// publishedFrames collects every frame the buffer publishes.
func publishedFrames(t *testing.T) (*framebuffer.Buffer, func() [][]byte) {
	t.Helper()
	var (
		mu     sync.Mutex
		frames [][]byte
	)
	buf := framebuffer.New(framebuffer.WithPublishHook(func(f framebuffer.Frame) {
		mu.Lock()
		defer mu.Unlock()
		frames = append(frames, f.Data)
	}))
	return buf, func() [][]byte {
		mu.Lock()
		defer mu.Unlock()
		return append([][]byte(nil), frames...)
	}
}

func TestPumpSplitsOnStartMarkers(t *testing.T) {
	frames := [][]byte{
		jpegLike("first\xff\x00escaped"),
		jpegLike("second"),
		jpegLike(string(bytes.Repeat([]byte{0xFF}, 9000))),
	}
	var stream []byte
	stream = append(stream, "noise"...)
	for _, f := range frames {
		stream = append(stream, f...)
	}

	readers := map[string]func() io.Reader{
		"whole read": func() io.Reader { return bytes.NewReader(stream) },
		"one byte":   func() io.Reader { return iotest.OneByteReader(bytes.NewReader(stream)) },
		"half reads": func() io.Reader { return iotest.HalfReader(bytes.NewReader(stream)) },
	}
	for name, open := range readers {
		t.Run(name, func(t *testing.T) {
			buf, published := publishedFrames(t)
			require.NoError(t, Pump(open(), buf))

			assert.Equal(t, frames, published())
			assert.NotZero(t, buf.Stats().ChunksDiscarded, "leading noise is dropped")
		})
	}
}

func TestScanChunksNeverSplitsAMarker(t *testing.T) {
	stream := append(jpegLike("a"), jpegLike("b")...)
	sink := &recordingSink{}
	require.NoError(t, Pump(iotest.HalfReader(bytes.NewReader(stream)), sink))

	require.NotEmpty(t, sink.chunks)
	starts := 0
	for _, chunk := range sink.chunks {
		if framebuffer.IsFrameStart(chunk) {
			starts++
		}
		assert.False(t, bytes.Contains(chunk[1:], []byte{0xFF, 0xD8}), "marker inside chunk %q", chunk)
	}
	assert.Equal(t, 2, starts)
	assert.Equal(t, 1, sink.flushes)
	assert.Equal(t, stream, bytes.Join(sink.chunks, nil))
}

func TestScanChunksWaitsForMoreData(t *testing.T) {
	advance, token, err := ScanChunks([]byte{'x', 0xFF}, false)
	require.NoError(t, err)
	assert.Zero(t, advance)
	assert.Nil(t, token)

	advance, token, err = ScanChunks([]byte{'x', 'y', 0xFF}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, advance, "a trailing 0xFF is held back")
	assert.Equal(t, []byte("xy"), token)

	advance, token, err = ScanChunks([]byte{'x', 0xFF}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, advance)
	assert.Equal(t, []byte{'x', 0xFF}, token)
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandFeedPublishesProcessOutput(t *testing.T) {
	requireShell(t)
	buf, published := publishedFrames(t)

	feed := &CommandFeed{Commands: [][]string{
		{"sh", "-c", `printf '\377\330one\377\330two'`},
		{"cat"},
	}}
	err := feed.Run(context.Background(), buf)

	require.ErrorIs(t, err, ErrFeedEnded)
	assert.Equal(t, [][]byte{[]byte("\xff\xd8one"), []byte("\xff\xd8two")}, published())
}

func TestCommandFeedReportsFailure(t *testing.T) {
	requireShell(t)
	feed := &CommandFeed{Commands: [][]string{{"sh", "-c", "echo no camera >&2; exit 3"}}}

	err := feed.Run(context.Background(), framebuffer.New())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFeedEnded)
	assert.Contains(t, err.Error(), "no camera")
}

func TestCommandFeedStopsOnCancel(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithCancel(context.Background())
	feed := &CommandFeed{Commands: [][]string{{"sh", "-c", "exec sleep 30"}}}

	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx, framebuffer.New()) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop")
	}
}

func TestCommandFeedMissingBinary(t *testing.T) {
	feed := &CommandFeed{Commands: [][]string{{"definitely-not-a-camera-binary"}}}
	err := feed.Run(context.Background(), framebuffer.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start")
}

func TestPatternFeedPublishesDecodableFrames(t *testing.T) {
	buf := framebuffer.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := &PatternFeed{Config: Config{Width: 64, Height: 48, FPS: 60}}
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx, buf) }()

	first, err := buf.Next(ctx, 0)
	require.NoError(t, err)
	second, err := buf.Next(ctx, first.Generation)
	require.NoError(t, err)
	assert.NotEqual(t, first.Data, second.Data, "the bar moves between frames")

	img, err := jpeg.Decode(bytes.NewReader(second.Data))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())

	cancel()
	require.NoError(t, <-done)
}

func TestPatternFeedRotatesPortrait(t *testing.T) {
	buf := framebuffer.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := &PatternFeed{Config: Config{Width: 64, Height: 48, FPS: 30, Rotation: 90}}
	go func() { _ = feed.Run(ctx, buf) }()

	f, err := buf.Next(ctx, 0)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(f.Data))
	require.NoError(t, err)
	assert.Equal(t, 48, img.Bounds().Dx())
	assert.Equal(t, 64, img.Bounds().Dy())
}

func TestURLFeedRelaysParts(t *testing.T) {
	parts := [][]byte{jpegLike("up-1"), jpegLike("up-2"), jpegLike("up-3")}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=FRAME")
		for _, p := range parts {
			fmt.Fprintf(w, "--FRAME\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(p))
			_, _ = w.Write(p)
			_, _ = w.Write([]byte("\r\n"))
		}
		_, _ = w.Write([]byte("--FRAME--\r\n"))
	}))
	defer upstream.Close()

	buf, published := publishedFrames(t)
	err := (&URLFeed{URL: upstream.URL}).Run(context.Background(), buf)

	require.ErrorIs(t, err, ErrFeedEnded)
	assert.Equal(t, parts, published())
}

func TestURLFeedRejectsBadStatus(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	err := (&URLFeed{URL: upstream.URL}).Run(context.Background(), framebuffer.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestDirFeedPublishesNewJPEGFiles(t *testing.T) {
	dir := t.TempDir()
	buf := framebuffer.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := &DirFeed{Dir: dir, Interval: 10 * time.Millisecond}
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx, buf) }()

	snapshot := jpegLike("snapshot")
	i := 0
	require.Eventually(t, func() bool {
		i++
		_ = os.WriteFile(filepath.Join(dir, fmt.Sprintf("notes-%d.txt", i)), []byte("not a frame"), 0o644)
		_ = os.WriteFile(filepath.Join(dir, fmt.Sprintf("snap-%d.jpg", i)), snapshot, 0o644)
		return buf.Generation() > 0
	}, 5*time.Second, 50*time.Millisecond)

	f, ok := buf.Latest()
	require.True(t, ok)
	assert.Equal(t, snapshot, f.Data)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dir feed did not stop")
	}
}

func TestDirFeedMissingDirectory(t *testing.T) {
	feed := &DirFeed{Dir: filepath.Join(t.TempDir(), "missing")}
	err := feed.Run(context.Background(), framebuffer.New())
	require.Error(t, err)
}

func TestIsJPEG(t *testing.T) {
	assert.True(t, isJPEG("/tmp/a.jpg"))
	assert.True(t, isJPEG("/tmp/a.JPEG"))
	assert.False(t, isJPEG("/tmp/a.png"))
	assert.False(t, isJPEG("/tmp/jpg"))
}
