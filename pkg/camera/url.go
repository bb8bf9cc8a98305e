package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mattn/go-mjpeg"
)

// URLFeed relays an upstream multipart MJPEG stream, such as another camera's
// /stream.mjpg. Every part is published as one frame.
type URLFeed struct {
	URL    string
	Client *http.Client
}

func (f *URLFeed) Run(ctx context.Context, sink Sink) error {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", f.URL, err)
	}
	res, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connect to %s: %w", f.URL, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream %s returned %s", f.URL, res.Status)
	}

	dec, err := mjpeg.NewDecoderFromResponse(res)
	if err != nil {
		return fmt.Errorf("upstream %s is not an MJPEG stream: %w", f.URL, err)
	}

	for {
		raw, err := dec.DecodeRaw()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: upstream %s closed the stream", ErrFeedEnded, f.URL)
			}
			return fmt.Errorf("read frame from %s: %w", f.URL, err)
		}
		sink.Ingest(raw)
		sink.Flush()
	}
}
