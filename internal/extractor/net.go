package extractor

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"log"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/ayusman/mudra/internal/capture"
)

// Config locates the pretrained network.
type Config struct {
	// URL is an http(s) URL or a local path to a frozen graph (.pb) or a
	// .tgz archive containing one.
	URL string
	// CacheDir holds downloaded and unpacked models.
	CacheDir string
}

// supportedModels lists the file types gocv.ReadNet can materialize.
var supportedModels = []string{".pb", ".onnx", ".caffemodel", ".t7", ".net"}

// NetExtractor runs a truncated network through the OpenCV dnn module.
type NetExtractor struct {
	net   *gocv.Net
	path  string
	shape []int
	mu    sync.Mutex
}

// Load fetches the network described by cfg and materializes it.
// It blocks until the model is ready or ctx is done.
func Load(ctx context.Context, cfg Config) (*NetExtractor, error) {
	path, err := fetch(ctx, cfg.URL, cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	return Open(path)
}

// Open materializes a network from a local model file.
func Open(path string) (*NetExtractor, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(supportedModels, ext) {
		return nil, fmt.Errorf("%w: unsupported model file %s", ErrModelLoad, filepath.Base(path))
	}

	net := gocv.ReadNet(path, "")
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("%w: cannot parse %s", ErrModelLoad, path)
	}

	if !slices.Contains(net.GetLayerNames(), TruncationLayer) {
		net.Close()
		return nil, fmt.Errorf("%w: layer %q not found in %s", ErrModelLoad, TruncationLayer, filepath.Base(path))
	}

	e := &NetExtractor{net: &net, path: path}

	// Run one blank frame through so the first real Embed does not pay for
	// allocation, and to learn the embedding shape.
	blank := make([]float32, capture.FrameSize*capture.FrameSize*capture.Channels)
	warm, err := e.Embed(capture.Frame{
		Pixels: tensor.New(tensor.WithShape(capture.FrameSize, capture.FrameSize, capture.Channels), tensor.WithBacking(blank)),
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("%w: warm up: %v", ErrModelLoad, err)
	}
	e.shape = warm.Shape()

	log.Printf("Loaded feature extractor %s (%s), embedding shape %v", filepath.Base(path), TruncationVersion, e.shape)
	return e, nil
}

// Embed runs frame through the network up to TruncationLayer.
func (e *NetExtractor) Embed(frame capture.Frame) (Embedding, error) {
	if !validFrame(frame) {
		return Embedding{}, ErrInvalidFrame
	}

	mat, err := gocv.NewMatFromBytes(capture.FrameSize, capture.FrameSize, gocv.MatTypeCV32FC3, float32Bytes(frame.Data()))
	if err != nil {
		return Embedding{}, fmt.Errorf("frame to mat: %w", err)
	}
	defer mat.Close()

	// Pixels are already scaled to [-1, 1]; the blob only reorders to NCHW.
	blob := gocv.BlobFromImage(mat, 1.0, image.Pt(capture.FrameSize, capture.FrameSize), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.net == nil {
		return Embedding{}, fmt.Errorf("%w: extractor closed", ErrModelLoad)
	}

	e.net.SetInput(blob, "")
	out := e.net.Forward(TruncationLayer)
	defer out.Close()

	values, err := out.DataPtrFloat32()
	if err != nil {
		return Embedding{}, fmt.Errorf("read activation: %w", err)
	}

	dims := out.Size()
	if len(dims) > 1 {
		dims = dims[1:] // drop the batch axis
	}

	data := make([]float32, len(values))
	copy(data, values)

	return Embedding{Values: tensor.New(tensor.WithShape(dims...), tensor.WithBacking(data))}, nil
}

// Shape returns the embedding shape learned during warm up.
func (e *NetExtractor) Shape() []int {
	return e.shape
}

// Close releases the network.
func (e *NetExtractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.net == nil {
		return nil
	}
	err := e.net.Close()
	e.net = nil
	return err
}

func float32Bytes(values []float32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.NativeEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
