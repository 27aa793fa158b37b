package model

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adam is the adaptive moment estimation optimizer.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	t int
	m []*mat.Dense
	v []*mat.Dense
}

// NewAdam creates an optimizer with the usual moment decay rates.
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-7,
	}
}

// Step applies one update to model using its current gradients.
func (a *Adam) Step(model Trainable) {
	params, grads := model.Params(), model.Gradients()

	if a.m == nil {
		a.m = make([]*mat.Dense, len(params))
		a.v = make([]*mat.Dense, len(params))
		for i, p := range params {
			r, c := p.Dims()
			a.m[i] = mat.NewDense(r, c, nil)
			a.v[i] = mat.NewDense(r, c, nil)
		}
	}

	a.t++
	corr1 := 1 - math.Pow(a.Beta1, float64(a.t))
	corr2 := 1 - math.Pow(a.Beta2, float64(a.t))

	for i, p := range params {
		r, c := p.Dims()
		for row := 0; row < r; row++ {
			pr := p.RawRowView(row)
			gr := grads[i].RawRowView(row)
			mr := a.m[i].RawRowView(row)
			vr := a.v[i].RawRowView(row)
			for j := 0; j < c; j++ {
				g := gr[j]
				mr[j] = a.Beta1*mr[j] + (1-a.Beta1)*g
				vr[j] = a.Beta2*vr[j] + (1-a.Beta2)*g*g
				pr[j] -= a.LearningRate * (mr[j] / corr1) / (math.Sqrt(vr[j]/corr2) + a.Epsilon)
			}
		}
	}
}
