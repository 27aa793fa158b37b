// Package inference runs the frozen extractor and a trained head against
// live frames.
package inference

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/extractor"
	"github.com/ayusman/mudra/internal/model"
)

// ErrModelNotTrained is returned when no successfully trained head exists.
var ErrModelNotTrained = errors.New("model not trained")

// DefaultRetryDelay is the pause after a failed frame, about one frame at 30fps.
const DefaultRetryDelay = 33 * time.Millisecond

// FrameSource supplies preprocessed frames.
type FrameSource interface {
	Capture() (capture.Frame, error)
}

// Prediction is the classification of one frame.
type Prediction struct {
	Class     int
	Scores    []float64
	Timestamp time.Time
}

// Loop binds a frame source, an embedder and one specific head. A new
// head needs a new Loop.
type Loop struct {
	source   FrameSource
	embedder extractor.Embedder
	head     *model.Head
	retry    time.Duration
}

// NewLoop creates a Loop. It fails with ErrModelNotTrained when head is nil.
func NewLoop(source FrameSource, embedder extractor.Embedder, head *model.Head) (*Loop, error) {
	if head == nil {
		return nil, ErrModelNotTrained
	}
	return &Loop{source: source, embedder: embedder, head: head, retry: DefaultRetryDelay}, nil
}

// SetRetryDelay sets the pause after a failed frame. Zero disables it.
func (l *Loop) SetRetryDelay(d time.Duration) {
	l.retry = d
}

// Head returns the head this loop is bound to.
func (l *Loop) Head() *model.Head {
	return l.head
}

// Predictions classifies frames until ctx is done or the consumer stops
// ranging. Per-frame failures are yielded as errors and the loop goes on
// after the retry delay, so a dead camera does not spin.
// Cancellation ends the sequence without an error and nothing is emitted
// once ctx is done.
func (l *Loop) Predictions(ctx context.Context) iter.Seq2[Prediction, error] {
	return func(yield func(Prediction, error) bool) {
		for {
			if ctx.Err() != nil {
				return
			}

			p, err := l.predict()

			if ctx.Err() != nil {
				return
			}
			if !yield(p, err) {
				return
			}

			if err != nil && l.retry > 0 {
				if !sleep(ctx, l.retry) {
					return
				}
				continue
			}

			// Give other goroutines a turn before the next capture.
			runtime.Gosched()
		}
	}
}

func (l *Loop) predict() (Prediction, error) {
	frame, err := l.source.Capture()
	if err != nil {
		return Prediction{}, fmt.Errorf("capture: %w", err)
	}

	emb, err := l.embedder.Embed(frame)
	if err != nil {
		return Prediction{}, fmt.Errorf("embed: %w", err)
	}

	class, scores, err := l.head.Predict(emb.Vector())
	if err != nil {
		return Prediction{}, err
	}

	return Prediction{
		Class:     class,
		Scores:    scores,
		Timestamp: time.UnixMilli(frame.Timestamp),
	}, nil
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
