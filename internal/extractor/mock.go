package extractor

import (
	"sync"

	"gorgonia.org/tensor"

	"github.com/ayusman/mudra/internal/capture"
)

// DefaultMockGrid is the pooling grid used by NewMockExtractor.
const DefaultMockGrid = 4

// MockExtractor is a deterministic stand-in for the pretrained network.
// It average-pools each color channel over a grid x grid layout, so frames
// of different content produce different embeddings.
type MockExtractor struct {
	grid  int
	err   error
	calls int
	mu    sync.Mutex
}

// NewMockExtractor creates a MockExtractor with a DefaultMockGrid pooling grid.
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{grid: DefaultMockGrid}
}

// NewMockExtractorWithGrid creates a MockExtractor that pools over a grid x grid layout.
func NewMockExtractorWithGrid(grid int) *MockExtractor {
	if grid <= 0 || capture.FrameSize%grid != 0 {
		grid = DefaultMockGrid
	}
	return &MockExtractor{grid: grid}
}

// SetError sets the error that will be returned by Embed.
func (m *MockExtractor) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Embed ran.
func (m *MockExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Embed returns per-cell channel means with shape (Channels, grid, grid).
func (m *MockExtractor) Embed(frame capture.Frame) (Embedding, error) {
	m.mu.Lock()
	m.calls++
	err := m.err
	m.mu.Unlock()

	if err != nil {
		return Embedding{}, err
	}
	if !validFrame(frame) {
		return Embedding{}, ErrInvalidFrame
	}

	data := frame.Data()
	cell := capture.FrameSize / m.grid
	out := make([]float32, capture.Channels*m.grid*m.grid)
	norm := float32(cell * cell)

	for y := 0; y < capture.FrameSize; y++ {
		gy := y / cell
		for x := 0; x < capture.FrameSize; x++ {
			gx := x / cell
			base := (y*capture.FrameSize + x) * capture.Channels
			for c := 0; c < capture.Channels; c++ {
				out[(c*m.grid+gy)*m.grid+gx] += data[base+c] / norm
			}
		}
	}

	return Embedding{Values: tensor.New(tensor.WithShape(capture.Channels, m.grid, m.grid), tensor.WithBacking(out))}, nil
}

// Close is a no-op for the mock extractor.
func (m *MockExtractor) Close() error {
	return nil
}
