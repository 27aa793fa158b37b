// Package dataset accumulates labeled embeddings into the matrices the
// classifier head is trained on.
package dataset

import (
	"errors"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/ayusman/mudra/internal/extractor"
)

var (
	// ErrInvalidLabel is returned for labels outside [0, NumClasses).
	ErrInvalidLabel = errors.New("invalid label")
	// ErrShapeMismatch is returned when an embedding's length differs from
	// the embeddings already stored.
	ErrShapeMismatch = errors.New("embedding shape mismatch")
)

// Dataset is a read-only view of the stored examples. X holds one
// embedding per row and Y the matching one-hot label. Both are nil when
// no example has been added.
type Dataset struct {
	X *mat.Dense
	Y *mat.Dense
}

// Rows returns the number of examples.
func (d Dataset) Rows() int {
	if d.X == nil {
		return 0
	}
	r, _ := d.X.Dims()
	return r
}

// Dim returns the embedding width.
func (d Dataset) Dim() int {
	if d.X == nil {
		return 0
	}
	_, c := d.X.Dims()
	return c
}

// Classes returns the width of the one-hot label rows.
func (d Dataset) Classes() int {
	if d.Y == nil {
		return 0
	}
	_, c := d.Y.Dims()
	return c
}

// Counts returns the number of examples per label, summed from Y.
func (d Dataset) Counts() []int {
	if d.Y == nil {
		return nil
	}
	_, c := d.Y.Dims()
	out := make([]int, c)
	for j := range out {
		out[j] = int(mat.Sum(d.Y.ColView(j)))
	}
	return out
}

// Store owns the growing example matrices. Rows are only ever appended.
type Store struct {
	numClasses int
	dim        int
	rows       int
	x          []float64
	y          []float64
	counts     []int
	mu         sync.RWMutex
}

// New creates an empty Store for numClasses labels.
func New(numClasses int) *Store {
	return &Store{
		numClasses: numClasses,
		counts:     make([]int, numClasses),
	}
}

// AddExample appends emb as a new row of X and the one-hot encoding of
// label as the matching row of Y. The first call fixes the embedding width.
func (s *Store) AddExample(emb extractor.Embedding, label int) error {
	if label < 0 || label >= s.numClasses {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidLabel, label, s.numClasses)
	}

	vec := emb.Vector()
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrShapeMismatch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rows == 0 {
		s.dim = len(vec)
	} else if len(vec) != s.dim {
		return fmt.Errorf("%w: got %d features, want %d", ErrShapeMismatch, len(vec), s.dim)
	}

	s.x = append(s.x, vec...)
	oneHot := make([]float64, s.numClasses)
	oneHot[label] = 1
	s.y = append(s.y, oneHot...)
	s.counts[label]++
	s.rows++

	return nil
}

// IsEmpty reports whether no example has been added.
func (s *Store) IsEmpty() bool {
	return s.Len() == 0
}

// Len returns the number of stored examples.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows
}

// Dim returns the embedding width, or 0 before the first example.
func (s *Store) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Counts returns the number of examples per label.
func (s *Store) Counts() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]int, len(s.counts))
	copy(out, s.counts)
	return out
}

// Snapshot returns the examples added so far. Later additions never show
// up in a snapshot already taken.
func (s *Store) Snapshot() Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.rows == 0 {
		return Dataset{}
	}

	nx, ny := s.rows*s.dim, s.rows*s.numClasses
	return Dataset{
		X: mat.NewDense(s.rows, s.dim, s.x[:nx:nx]),
		Y: mat.NewDense(s.rows, s.numClasses, s.y[:ny:ny]),
	}
}

// Release drops every stored example. It is called when the session that
// owns the store is torn down.
func (s *Store) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.x, s.y = nil, nil
	s.rows, s.dim = 0, 0
	for i := range s.counts {
		s.counts[i] = 0
	}
}
