package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dropout zeroes activations with probability P during training and scales
// the survivors by 1/(1-P), so inference runs the identity with no
// rescaling. Outside training mode Forward and Backward pass values through
// untouched.
type Dropout struct {
	P     float64
	rng   *rand.Rand
	train bool
	scale []float64 // per-element keep mask scaled by 1/(1-P)
}

// NewDropout builds a dropout layer with drop probability p drawing its
// masks from rng.
func NewDropout(p float64, rng *rand.Rand) *Dropout {
	return &Dropout{P: p, rng: rng}
}

// SetTraining switches mask sampling on or off.
func (d *Dropout) SetTraining(train bool) {
	d.train = train
}

// Forward samples a fresh mask in training mode and applies it.
func (d *Dropout) Forward(x *mat.Dense) *mat.Dense {
	if !d.train || d.P <= 0 {
		d.scale = nil
		return x
	}
	rows, cols := x.Dims()
	src := x.RawMatrix().Data
	out := make([]float64, len(src))
	d.scale = make([]float64, len(src))
	keep := 1.0 / (1.0 - d.P)
	for i, v := range src {
		if d.rng.Float64() >= d.P {
			d.scale[i] = keep
			out[i] = v * keep
		}
	}
	return mat.NewDense(rows, cols, out)
}

// Backward applies the mask sampled by the last Forward.
func (d *Dropout) Backward(dy *mat.Dense) *mat.Dense {
	if d.scale == nil {
		return dy
	}
	rows, cols := dy.Dims()
	src := dy.RawMatrix().Data
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = v * d.scale[i]
	}
	return mat.NewDense(rows, cols, out)
}
