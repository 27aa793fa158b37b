package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/dataset"
	"github.com/ayusman/mudra/internal/events"
)

// SetExampleHandler returns the per-capture callback for label: each call
// captures one frame, embeds it and appends it to the examples.
func (s *Session) SetExampleHandler(label int) (func() error, error) {
	if label < 0 || label >= s.cfg.NumClasses {
		return nil, fmt.Errorf("%w: %d", dataset.ErrInvalidLabel, label)
	}
	if !s.Ready() {
		return nil, ErrNotReady
	}

	return func() error {
		frame, err := s.source.Capture()
		if err != nil {
			return err
		}

		emb, err := s.embedder.Embed(frame)
		if err != nil {
			return err
		}

		if err := s.examples.AddExample(emb, label); err != nil {
			return err
		}

		thumb := capture.Thumbnail(frame)
		s.mu.Lock()
		s.thumbs[label] = thumb
		s.mu.Unlock()

		counts := s.examples.Counts()
		s.bus.Emit(events.ExampleAdded, events.CaptureData{Label: label, Count: counts[label], Total: s.examples.Len()})
		return nil
	}, nil
}

// CaptureExamples runs a fixed burst of captures for label, one every
// CaptureInterval. Only one burst runs at a time. It returns the number
// of examples added.
func (s *Session) CaptureExamples(ctx context.Context, label int) (int, error) {
	handler, err := s.SetExampleHandler(label)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.capturing {
		s.mu.Unlock()
		return 0, ErrCaptureInProgress
	}
	s.capturing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.capturing = false
		s.mu.Unlock()
	}()

	s.bus.Emit(events.CaptureStarted, events.CaptureData{Label: label, Total: s.examples.Len()})

	ticker := time.NewTicker(s.cfg.CaptureInterval)
	defer ticker.Stop()

	added := 0
	for added < s.cfg.CaptureBurst {
		select {
		case <-ctx.Done():
			s.bus.Emit(events.CaptureFinished, events.CaptureData{Label: label, Count: added, Total: s.examples.Len()})
			return added, ctx.Err()
		case <-ticker.C:
		}

		if err := handler(); err != nil {
			s.bus.Emit(events.CaptureFinished, events.CaptureData{Label: label, Count: added, Total: s.examples.Len()})
			return added, err
		}
		added++
	}

	s.bus.Emit(events.CaptureFinished, events.CaptureData{Label: label, Count: added, Total: s.examples.Len()})
	return added, nil
}

// Examples returns the number of stored examples per label.
func (s *Session) Examples() []int {
	return s.examples.Counts()
}
