package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"time"
)

// PatternFeed renders a moving test picture at the configured frame rate. Each
// frame is handed over in pipe-sized chunks followed by a Flush, the same way
// a capture process delivers it.
type PatternFeed struct {
	Config Config
}

func (f *PatternFeed) Run(ctx context.Context, sink Sink) error {
	cfg := f.Config.withDefaults()
	width, height := cfg.Width, cfg.Height
	if cfg.Rotation == 90 || cfg.Rotation == 270 {
		width, height = height, width
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	ticker := time.NewTicker(time.Second / time.Duration(cfg.FPS))
	defer ticker.Stop()

	var buf bytes.Buffer
	for n := 0; ; n++ {
		buf.Reset()
		if err := renderPattern(&buf, img, n); err != nil {
			return err
		}
		frame := buf.Bytes()
		for len(frame) > 0 {
			size := min(readChunkSize, len(frame))
			sink.Ingest(frame[:size])
			frame = frame[size:]
		}
		sink.Flush()

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// renderPattern draws a gradient with a vertical bar that advances every frame.
func renderPattern(buf *bytes.Buffer, img *image.RGBA, n int) error {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	bar := (n * 8) % width
	shade := byte(n % 256)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			offset := y*img.Stride + x*4
			if x >= bar && x < bar+16 {
				img.Pix[offset] = 255
				img.Pix[offset+1] = 255
				img.Pix[offset+2] = 255
			} else {
				img.Pix[offset] = shade
				img.Pix[offset+1] = byte((x * 255) / width)
				img.Pix[offset+2] = byte((y * 255) / height)
			}
			img.Pix[offset+3] = 255
		}
	}

	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return nil
}
