package capture

import (
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// FrameSize is the side of the square frame fed to the feature extractor.
const FrameSize = 224

// Channels is the number of color channels in a Frame (RGB).
const Channels = 3

// ErrUnsupportedFrame is returned for raw frames that are not 3-channel BGR.
var ErrUnsupportedFrame = errors.New("unsupported frame format")

// Frame is a captured image normalized for the feature extractor.
// Pixels is a float32 tensor of shape (FrameSize, FrameSize, Channels), RGB
// order, with each value computed as x/127 - 1.
type Frame struct {
	Pixels    *tensor.Dense
	Timestamp int64
}

// Data returns the flat HWC pixel values.
func (f Frame) Data() []float32 {
	if f.Pixels == nil {
		return nil
	}
	return f.Pixels.Data().([]float32)
}

// CropRect returns the largest square centered in a width x height image.
func CropRect(width, height int) image.Rectangle {
	side := min(width, height)
	x := (width - side) / 2
	y := (height - side) / 2
	return image.Rect(x, y, x+side, y+side)
}

// DisplaySize returns the presentation size of a width x height stream that
// keeps its aspect ratio. The shorter side is pinned to base.
func DisplaySize(width, height, base int) image.Point {
	if width <= 0 || height <= 0 {
		return image.Point{}
	}
	aspect := float64(width) / float64(height)
	if width >= height {
		return image.Pt(int(math.Round(aspect*float64(base))), base)
	}
	return image.Pt(base, int(math.Round(float64(base)/aspect)))
}

// FromMat crops, resizes and normalizes a raw BGR frame into a Frame.
// The source Mat is not modified.
func FromMat(raw gocv.Mat) (Frame, error) {
	if raw.Empty() {
		return Frame{}, fmt.Errorf("%w: empty", ErrUnsupportedFrame)
	}
	if raw.Channels() != Channels {
		return Frame{}, fmt.Errorf("%w: %d channels", ErrUnsupportedFrame, raw.Channels())
	}

	square := raw.Region(CropRect(raw.Cols(), raw.Rows()))
	defer square.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(square, &resized, image.Pt(FrameSize, FrameSize), 0, 0, gocv.InterpolationLinear)

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)

	scaled := gocv.NewMat()
	defer scaled.Close()
	rgb.ConvertToWithParams(&scaled, gocv.MatTypeCV32FC3, 1.0/127, -1)

	data, err := scaled.DataPtrFloat32()
	if err != nil {
		return Frame{}, fmt.Errorf("read pixels: %w", err)
	}

	// The Mat memory is released with scaled; keep our own copy.
	pixels := make([]float32, len(data))
	copy(pixels, data)

	return Frame{
		Pixels:    tensor.New(tensor.WithShape(FrameSize, FrameSize, Channels), tensor.WithBacking(pixels)),
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// Thumbnail renders a Frame back to 8-bit RGBA for display.
func Thumbnail(f Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, FrameSize, FrameSize))
	data := f.Data()
	if len(data) < FrameSize*FrameSize*Channels {
		return img
	}

	for i := 0; i < FrameSize*FrameSize; i++ {
		j := i * 4
		img.Pix[j+0] = denormalize(data[i*3+0])
		img.Pix[j+1] = denormalize(data[i*3+1])
		img.Pix[j+2] = denormalize(data[i*3+2])
		img.Pix[j+3] = 255
	}
	return img
}

func denormalize(v float32) uint8 {
	x := math.Round(float64(v+1) * 127)
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return uint8(x)
}
