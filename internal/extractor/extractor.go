// Package extractor maps captured frames to embeddings with a frozen,
// pretrained convolutional network.
package extractor

import (
	"errors"

	"gorgonia.org/tensor"

	"github.com/ayusman/mudra/internal/capture"
)

// The network is cut at the last pointwise convolution of MobileNet v1
// (Keras name conv_pw_13_relu). Everything downstream is never evaluated.
// Embeddings from different truncation versions are not comparable.
const (
	TruncationLayer   = "MobilenetV1/MobilenetV1/Conv2d_13_pointwise/Relu6"
	TruncationVersion = "mobilenet_v1_0.25_224/conv_pw_13_relu"
)

var (
	// ErrModelLoad is returned when the pretrained network cannot be fetched or parsed.
	ErrModelLoad = errors.New("model load failed")
	// ErrInvalidFrame is returned for frames that are not FrameSize x FrameSize RGB.
	ErrInvalidFrame = errors.New("invalid frame")
)

// Embedder is the frozen half of the classifier: it never trains and never
// changes its weights.
type Embedder interface {
	// Embed returns the activation of the truncation layer for frame.
	Embed(frame capture.Frame) (Embedding, error)

	// Close releases any resources held by the embedder.
	Close() error
}

// Embedding is the float32 activation tensor produced for one frame.
type Embedding struct {
	Values *tensor.Dense
}

// Len returns the number of scalar features.
func (e Embedding) Len() int {
	if e.Values == nil {
		return 0
	}
	return e.Values.Shape().TotalSize()
}

// Shape returns the activation shape without the batch axis.
func (e Embedding) Shape() []int {
	if e.Values == nil {
		return nil
	}
	return []int(e.Values.Shape().Clone())
}

// Vector flattens the embedding to float64, the precision the classifier trains in.
func (e Embedding) Vector() []float64 {
	if e.Values == nil {
		return nil
	}
	data := e.Values.Data().([]float32)
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}

func validFrame(frame capture.Frame) bool {
	return len(frame.Data()) == capture.FrameSize*capture.FrameSize*capture.Channels
}
