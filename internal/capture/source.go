package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"
)

var (
	// ErrDeviceUnavailable is returned by Setup when no camera can be opened.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrNotReady is returned by Capture before Setup has completed.
	ErrNotReady = errors.New("frame source not ready")
)

// displayBase is the pinned side, in pixels, of the presentation size.
const displayBase = 224

// firstFramePoll is how often Setup retries while waiting for the first frame.
const firstFramePoll = 10 * time.Millisecond

// Source owns a camera and serves normalized frames from it.
type Source struct {
	camera Camera

	once     sync.Once
	finished chan struct{}
	result   error

	mu      sync.RWMutex
	ready   bool
	width   int
	height  int
	display image.Point
}

// NewSource creates a Source over camera. Setup must complete before Capture.
func NewSource(camera Camera) *Source {
	return &Source{
		camera:   camera,
		finished: make(chan struct{}),
	}
}

// Setup opens the camera and waits for its first readable frame.
//
// The returned channel delivers exactly one value (nil on success) and is
// then closed. Setup runs at most once; later calls replay the first result.
func (s *Source) Setup(ctx context.Context) <-chan error {
	s.once.Do(func() {
		go func() {
			s.result = s.setup(ctx)
			close(s.finished)
		}()
	})

	out := make(chan error, 1)
	go func() {
		<-s.finished
		out <- s.result
		close(out)
	}()
	return out
}

func (s *Source) setup(ctx context.Context) error {
	if err := s.camera.Open(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	ticker := time.NewTicker(firstFramePoll)
	defer ticker.Stop()

	for {
		mat, err := s.camera.ReadFrame()
		if err == nil {
			width, height := mat.Cols(), mat.Rows()
			mat.Close()

			s.mu.Lock()
			s.width, s.height = width, height
			s.display = DisplaySize(width, height, displayBase)
			s.ready = true
			s.mu.Unlock()
			return nil
		}

		select {
		case <-ctx.Done():
			s.camera.Close()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Ready reports whether Setup completed successfully.
func (s *Source) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Resolution returns the raw stream size observed during Setup.
func (s *Source) Resolution() (width, height int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

// Display returns the aspect-preserving presentation size.
func (s *Source) Display() image.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.display
}

// Capture grabs the current camera frame as a normalized Frame.
func (s *Source) Capture() (Frame, error) {
	if !s.Ready() {
		return Frame{}, ErrNotReady
	}

	mat, err := s.camera.ReadFrame()
	if err != nil {
		return Frame{}, err
	}
	defer mat.Close()

	return FromMat(*mat)
}

// Camera returns the underlying camera, for raw streaming.
func (s *Source) Camera() Camera {
	return s.camera
}

// Close releases the camera.
func (s *Source) Close() error {
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()
	return s.camera.Close()
}
