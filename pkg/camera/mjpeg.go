package camera

import (
	"bufio"
	"bytes"
	"io"
)

const readChunkSize = 4096

var soi = []byte{0xFF, 0xD8}

// ScanChunks is a bufio.SplitFunc for raw MJPEG output. Every token either
// starts with a JPEG start marker or continues the frame before it, so a frame
// boundary never falls inside a token. A trailing 0xFF is held back until the
// next read shows whether it opens a marker.
func ScanChunks(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.Index(data[1:], soi); i >= 0 {
		return i + 1, data[:i+1], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	if len(data) < 3 {
		return 0, nil, nil
	}
	return len(data) - 1, data[:len(data)-1], nil
}

// Pump copies r into sink one marker-aligned chunk at a time. When r ends, the
// frame under assembly is complete and gets flushed.
func Pump(r io.Reader, sink Sink) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, readChunkSize), 4*readChunkSize)
	scanner.Split(ScanChunks)

	for scanner.Scan() {
		sink.Ingest(scanner.Bytes())
	}
	sink.Flush()
	return scanner.Err()
}
