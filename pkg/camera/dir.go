package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/radovskyb/watcher"
)

// DirFeed publishes every JPEG file created or rewritten in Dir, for example
// snapshots dropped by another capture tool. Files already present when Run
// starts are ignored.
type DirFeed struct {
	Dir      string
	Interval time.Duration // polling interval, 100ms when zero
}

func isJPEG(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}

func (f *DirFeed) Run(ctx context.Context, sink Sink) error {
	interval := f.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	w := watcher.New()
	w.FilterOps(watcher.Create, watcher.Write)
	if err := w.Add(f.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", f.Dir, err)
	}

	go func() {
		if err := w.Start(interval); err != nil {
			slog.Error("Frame directory watcher failed", "dir", f.Dir, "error", err)
		}
	}()
	w.Wait()
	defer stopWatcher(w)

	slog.Info("Watching directory for frames", "dir", f.Dir, "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.Closed:
			return nil
		case err := <-w.Error:
			if errors.Is(err, watcher.ErrWatchedFileDeleted) {
				return fmt.Errorf("%w: %s was removed", ErrFeedEnded, f.Dir)
			}
			slog.Warn("Frame directory watch error", "dir", f.Dir, "error", err)
		case ev := <-w.Event:
			if ev.IsDir() || !isJPEG(ev.Path) {
				continue
			}
			data, err := os.ReadFile(ev.Path)
			if err != nil {
				slog.Warn("Failed to read frame file", "path", ev.Path, "error", err)
				continue
			}
			sink.Ingest(data)
			sink.Flush()
		}
	}
}

// stopWatcher closes w while draining its channels, since the polling loop
// blocks on sends that nobody else will receive.
func stopWatcher(w *watcher.Watcher) {
	go w.Close()
	for {
		select {
		case <-w.Event:
		case <-w.Error:
		case <-w.Closed:
			return
		}
	}
}
