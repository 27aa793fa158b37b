package capture

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/testdata"
)

func TestSource_CaptureBeforeSetup(t *testing.T) {
	src := NewSource(NewMockCamera(nil, false))

	if _, err := src.Capture(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Capture() error = %v, want ErrNotReady", err)
	}
}

func TestSource_Setup(t *testing.T) {
	frame := testdata.SolidFrame(0, 0, 0)
	defer frame.Close()

	src := NewSource(NewMockCamera([]*gocv.Mat{frame}, true))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := src.Setup(ctx)
	if err := <-done; err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	// One-shot: the channel is closed after its single value.
	if _, ok := <-done; ok {
		t.Error("Setup channel delivered a second value")
	}

	if !src.Ready() {
		t.Fatal("source should be ready after Setup")
	}

	if w, h := src.Resolution(); w != 640 || h != 480 {
		t.Errorf("Resolution() = %dx%d, want 640x480", w, h)
	}
	if got := src.Display(); got != image.Pt(299, 224) {
		t.Errorf("Display() = %v, want (299,224)", got)
	}

	got, err := src.Capture()
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if got.Data()[0] != -1 {
		t.Errorf("black pixel = %f, want -1", got.Data()[0])
	}

	// A second Setup replays the first result without reopening.
	if err := <-src.Setup(ctx); err != nil {
		t.Errorf("second Setup() error = %v", err)
	}
}

func TestSource_SetupDeviceUnavailable(t *testing.T) {
	cam := NewMockCamera(nil, false)
	cam.SetOpenError(errors.New("permission denied"))
	src := NewSource(cam)

	err := <-src.Setup(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Setup() error = %v, want ErrDeviceUnavailable", err)
	}
	if src.Ready() {
		t.Error("source should not be ready after a failed Setup")
	}

	// No retry: the failure is replayed.
	if err := <-src.Setup(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("second Setup() error = %v, want ErrDeviceUnavailable", err)
	}
}

func TestSource_SetupWaitsForFirstFrame(t *testing.T) {
	// No frames ever arrive: Setup must suspend until the context ends.
	src := NewSource(NewMockCamera(nil, false))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := <-src.Setup(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Setup() error = %v, want deadline exceeded", err)
	}
	if src.Ready() {
		t.Error("source should not be ready without a frame")
	}
}
