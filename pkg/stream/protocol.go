package stream

import (
	"fmt"
	"io"
	"net/http"
)

const (
	// Boundary separates the parts of the multipart stream.
	Boundary = "FRAME"

	RootPath   = "/"
	IndexPath  = "/index.html"
	StreamPath = "/stream.mjpg"

	streamContentType = "multipart/x-mixed-replace; boundary=" + Boundary
	segmentHeader     = "--" + Boundary + "\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n"
)

// setStreamHeaders writes the headers that open a long-lived multipart response.
func setStreamHeaders(h http.Header) {
	h.Set("Age", "0")
	h.Set("Cache-Control", "no-cache, private")
	h.Set("Pragma", "no-cache")
	h.Set("Content-Type", streamContentType)
}

// WriteSegment writes one multipart part carrying frame:
//
//	--FRAME\r\n
//	Content-Type: image/jpeg\r\n
//	Content-Length: <n>\r\n
//	\r\n
//	<n bytes>\r\n
func WriteSegment(w io.Writer, frame []byte) error {
	if _, err := fmt.Fprintf(w, segmentHeader, len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
