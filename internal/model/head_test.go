package model

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestHead_ForwardProbabilities(t *testing.T) {
	h := NewHead(6, 5, 3, testRand())
	x := mat.NewDense(4, 6, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 6; j++ {
			x.Set(i, j, float64(i*6+j)/10)
		}
	}

	p := h.Forward(x)
	r, c := p.Dims()
	if r != 4 || c != 3 {
		t.Fatalf("Forward() dims = %dx%d, want 4x3", r, c)
	}

	for i := 0; i < r; i++ {
		var sum float64
		for j := 0; j < c; j++ {
			v := p.At(i, j)
			if v < 0 || v > 1 {
				t.Errorf("p[%d][%d] = %v out of [0,1]", i, j, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("row %d sums to %v", i, sum)
		}
	}
}

func TestHead_PredictTieBreaksLow(t *testing.T) {
	h := NewHead(4, 3, 3, testRand())
	h.w2.Zero()

	class, scores, err := h.Predict([]float64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if class != 0 {
		t.Errorf("Predict() class = %d, want 0 on a tie", class)
	}
	for _, s := range scores {
		if math.Abs(s-1.0/3) > 1e-12 {
			t.Errorf("scores = %v, want uniform", scores)
		}
	}
}

func TestHead_PredictShape(t *testing.T) {
	h := NewHead(4, 3, 3, testRand())
	if _, _, err := h.Predict([]float64{1, 2}); !errors.Is(err, ErrInputShape) {
		t.Errorf("Predict() error = %v, want ErrInputShape", err)
	}
}

func TestHead_InitBounds(t *testing.T) {
	h := NewHead(64, 10, 3, testRand())
	limit := 2 * math.Sqrt(1.0/64)

	w1 := h.w1.RawMatrix().Data
	for i, v := range w1 {
		if math.Abs(v) > limit {
			t.Fatalf("w1[%d] = %v beyond truncation %v", i, v, limit)
		}
	}
	if mat.Sum(h.b1) != 0 {
		t.Error("bias should start at zero")
	}
}

func TestHead_GradientCheck(t *testing.T) {
	rng := testRand()
	h := NewHead(4, 5, 3, rng)
	// Nonzero bias so the check covers it too.
	for j := 0; j < 5; j++ {
		h.b1.Set(0, j, 0.1*float64(j))
	}

	x := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			x.Set(i, j, rng.NormFloat64())
		}
	}
	y := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 0, 1,
		0, 1, 0,
	})

	h.step(x, y)

	const eps = 1e-6
	loss := func() float64 {
		_, _, p := h.forward(x)
		return crossEntropy(p, y)
	}

	for k, param := range h.Params() {
		grad := h.Gradients()[k]
		r, c := param.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				orig := param.At(i, j)
				param.Set(i, j, orig+eps)
				plus := loss()
				param.Set(i, j, orig-eps)
				minus := loss()
				param.Set(i, j, orig)

				numeric := (plus - minus) / (2 * eps)
				if diff := math.Abs(numeric - grad.At(i, j)); diff > 1e-5 {
					t.Errorf("param %d [%d,%d]: analytic %v, numeric %v", k, i, j, grad.At(i, j), numeric)
				}
			}
		}
	}
}

func TestCrossEntropy_FloorsZeroProbability(t *testing.T) {
	p := mat.NewDense(1, 3, []float64{0, 0.5, 0.5})
	y := mat.NewDense(1, 3, []float64{1, 0, 0})

	got := crossEntropy(p, y)
	if math.IsInf(got, 0) || math.Abs(got+math.Log(probFloor)) > 1e-9 {
		t.Errorf("crossEntropy() = %v, want %v", got, -math.Log(probFloor))
	}
}
