// Package model implements the trainable classifier head that sits on top
// of the frozen feature extractor, together with its optimizer and
// training loop.
package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrInputShape is returned when a vector does not match the head's input width.
var ErrInputShape = errors.New("input shape mismatch")

// probFloor keeps log(p) finite in the cross-entropy.
const probFloor = 1e-7

// Trainable is anything whose parameters an optimizer can update from
// gradients of matching shape.
type Trainable interface {
	Params() []*mat.Dense
	Gradients() []*mat.Dense
}

// Head is flatten -> dense(hidden, ReLU, bias) -> dense(classes, softmax, no bias).
type Head struct {
	inputDim int
	hidden   int
	classes  int

	w1 *mat.Dense // inputDim x hidden
	b1 *mat.Dense // 1 x hidden
	w2 *mat.Dense // hidden x classes

	gw1 *mat.Dense
	gb1 *mat.Dense
	gw2 *mat.Dense
}

// NewHead creates a head with variance-scaled weights drawn from rng and
// zero bias.
func NewHead(inputDim, hidden, classes int, rng *rand.Rand) *Head {
	h := &Head{
		inputDim: inputDim,
		hidden:   hidden,
		classes:  classes,
		w1:       varianceScaling(inputDim, hidden, rng),
		b1:       mat.NewDense(1, hidden, nil),
		w2:       varianceScaling(hidden, classes, rng),
		gw1:      mat.NewDense(inputDim, hidden, nil),
		gb1:      mat.NewDense(1, hidden, nil),
		gw2:      mat.NewDense(hidden, classes, nil),
	}
	return h
}

// varianceScaling draws from a normal distribution with stddev
// sqrt(1/fanIn), redrawing samples beyond two standard deviations.
func varianceScaling(fanIn, fanOut int, rng *rand.Rand) *mat.Dense {
	std := math.Sqrt(1 / float64(fanIn))
	data := make([]float64, fanIn*fanOut)
	for i := range data {
		v := rng.NormFloat64()
		for math.Abs(v) > 2 {
			v = rng.NormFloat64()
		}
		data[i] = v * std
	}
	return mat.NewDense(fanIn, fanOut, data)
}

// InputDim returns the embedding width the head accepts.
func (h *Head) InputDim() int { return h.inputDim }

// Classes returns the number of output classes.
func (h *Head) Classes() int { return h.classes }

// Params implements Trainable.
func (h *Head) Params() []*mat.Dense {
	return []*mat.Dense{h.w1, h.b1, h.w2}
}

// Gradients implements Trainable. The values are those of the last
// training step.
func (h *Head) Gradients() []*mat.Dense {
	return []*mat.Dense{h.gw1, h.gb1, h.gw2}
}

// Forward returns class probabilities, one row per row of x.
func (h *Head) Forward(x mat.Matrix) *mat.Dense {
	_, _, p := h.forward(x)
	return p
}

// Predict classifies a single embedding vector. Ties go to the lowest
// class index.
func (h *Head) Predict(vec []float64) (int, []float64, error) {
	if len(vec) != h.inputDim {
		return 0, nil, fmt.Errorf("%w: got %d features, want %d", ErrInputShape, len(vec), h.inputDim)
	}

	p := h.Forward(mat.NewDense(1, h.inputDim, vec))
	scores := mat.Row(nil, 0, p)
	return argmax(scores), scores, nil
}

func argmax(scores []float64) int {
	best := 0
	for i, v := range scores {
		if v > scores[best] {
			best = i
		}
	}
	return best
}

func (h *Head) forward(x mat.Matrix) (z1, a1, p *mat.Dense) {
	rows, _ := x.Dims()

	z1 = mat.NewDense(rows, h.hidden, nil)
	z1.Mul(x, h.w1)
	bias := h.b1.RawRowView(0)
	z1.Apply(func(_, j int, v float64) float64 { return v + bias[j] }, z1)

	a1 = mat.NewDense(rows, h.hidden, nil)
	a1.Apply(func(_, _ int, v float64) float64 { return max(v, 0) }, z1)

	p = mat.NewDense(rows, h.classes, nil)
	p.Mul(a1, h.w2)
	for i := 0; i < rows; i++ {
		softmax(p.RawRowView(i))
	}
	return z1, a1, p
}

func softmax(row []float64) {
	floats.AddConst(-floats.Max(row), row)
	for i, v := range row {
		row[i] = math.Exp(v)
	}
	floats.Scale(1/floats.Sum(row), row)
}

// crossEntropy is the mean categorical cross-entropy of p against one-hot y.
func crossEntropy(p, y *mat.Dense) float64 {
	rows, cols := p.Dims()
	var sum float64
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if t := y.At(i, j); t != 0 {
				sum -= t * math.Log(math.Max(p.At(i, j), probFloor))
			}
		}
	}
	return sum / float64(rows)
}

// step runs a forward and backward pass over one batch, leaving the
// gradients in place, and returns the batch loss.
func (h *Head) step(x, y *mat.Dense) float64 {
	rows, _ := x.Dims()
	z1, a1, p := h.forward(x)
	loss := crossEntropy(p, y)

	// Softmax followed by cross-entropy has gradient (p - y) per row.
	dz2 := mat.NewDense(rows, h.classes, nil)
	dz2.Sub(p, y)
	dz2.Scale(1/float64(rows), dz2)

	h.gw2.Mul(a1.T(), dz2)

	dz1 := mat.NewDense(rows, h.hidden, nil)
	dz1.Mul(dz2, h.w2.T())
	dz1.Apply(func(i, j int, v float64) float64 {
		if z1.At(i, j) > 0 {
			return v
		}
		return 0
	}, dz1)

	h.gw1.Mul(x.T(), dz1)

	col := make([]float64, rows)
	for j := 0; j < h.hidden; j++ {
		h.gb1.Set(0, j, floats.Sum(mat.Col(col, j, dz1)))
	}

	return loss
}
