package model

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// quadratic is f(p) = sum((p - target)^2).
type quadratic struct {
	p, g   *mat.Dense
	target float64
}

func (q *quadratic) Params() []*mat.Dense    { return []*mat.Dense{q.p} }
func (q *quadratic) Gradients() []*mat.Dense { return []*mat.Dense{q.g} }

func (q *quadratic) grad() {
	q.g.Apply(func(i, j int, _ float64) float64 { return 2 * (q.p.At(i, j) - q.target) }, q.p)
}

func TestAdam_Minimizes(t *testing.T) {
	q := &quadratic{
		p:      mat.NewDense(2, 2, []float64{-1, 0, 5, 10}),
		g:      mat.NewDense(2, 2, nil),
		target: 3,
	}
	opt := NewAdam(0.1)

	for i := 0; i < 2000; i++ {
		q.grad()
		opt.Step(q)
	}

	for _, v := range q.p.RawMatrix().Data {
		if math.Abs(v-3) > 1e-2 {
			t.Errorf("param = %v, want about 3", v)
		}
	}
}

func TestAdam_FirstStepSize(t *testing.T) {
	// Bias correction makes the first update about lr in magnitude.
	q := &quadratic{p: mat.NewDense(1, 1, []float64{10}), g: mat.NewDense(1, 1, nil)}
	opt := NewAdam(0.01)

	q.grad()
	opt.Step(q)

	if got := 10 - q.p.At(0, 0); math.Abs(got-0.01) > 1e-6 {
		t.Errorf("first step moved %v, want 0.01", got)
	}
}
