package server

import (
	"fmt"
	"image/color"
	"net/http"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
)

const streamInterval = 66 * time.Millisecond // ~15 FPS

var cropColor = color.RGBA{G: 255, A: 255}

// StreamHandler serves MJPEG frames from the camera with the region the
// classifier sees outlined.
type StreamHandler struct {
	camera   capture.Camera
	interval time.Duration
}

// NewStreamHandler creates a new StreamHandler with the given camera.
func NewStreamHandler(camera capture.Camera) *StreamHandler {
	return &StreamHandler{camera: camera, interval: streamInterval}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		buf, err := h.encode()
		if err != nil {
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(buf))
		if _, err := w.Write(buf); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

// encode reads one frame and returns it as JPEG bytes.
func (h *StreamHandler) encode() ([]byte, error) {
	frame, err := h.camera.ReadFrame()
	if err != nil {
		return nil, err
	}
	defer frame.Close()

	gocv.Rectangle(frame, capture.CropRect(frame.Cols(), frame.Rows()), cropColor, 2)

	nb, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, err
	}
	defer nb.Close()

	// The native buffer is freed on Close.
	return append([]byte(nil), nb.GetBytes()...), nil
}
