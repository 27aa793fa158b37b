// Package testdata builds synthetic camera frames for tests.
package testdata

import (
	"image"

	"gocv.io/x/gocv"
)

// Frame dimensions of the default capture resolution.
const (
	Width  = 640
	Height = 480
)

// SolidFrame returns a Height x Width BGR frame filled with one color.
// The caller must Close the returned Mat.
func SolidFrame(b, g, r float64) *gocv.Mat {
	mat := gocv.NewMatWithSize(Height, Width, gocv.MatTypeCV8UC3)
	mat.SetTo(gocv.NewScalar(b, g, r, 0))
	return &mat
}

// CenteredSquareFrame returns a black frame whose centered Height x Height
// square is filled with the given BGR color.
func CenteredSquareFrame(b, g, r float64) *gocv.Mat {
	mat := gocv.NewMatWithSize(Height, Width, gocv.MatTypeCV8UC3)
	offset := (Width - Height) / 2
	region := mat.Region(image.Rect(offset, 0, offset+Height, Height))
	region.SetTo(gocv.NewScalar(b, g, r, 0))
	region.Close()
	return &mat
}

// GestureFrames returns one solid frame per class so that a pooling
// embedder separates them: black, gray and white.
func GestureFrames() []*gocv.Mat {
	return []*gocv.Mat{
		SolidFrame(0, 0, 0),
		SolidFrame(128, 128, 128),
		SolidFrame(255, 255, 255),
	}
}

// CloseAll releases every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
