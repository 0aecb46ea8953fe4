package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Linear is a fully connected layer computing Y = XW + b for a batch of row
// vectors. W is (in, out), b is (1, out), broadcast over the batch.
type Linear struct {
	W *Param
	B *Param

	x *mat.Dense // input cached by Forward for the backward pass
}

// NewLinear builds a linear layer with Xavier-initialized weights and zero
// bias. name prefixes the parameter names ("<name>.weight", "<name>.bias").
func NewLinear(name string, in, out int, rng *rand.Rand) *Linear {
	l := &Linear{
		W: NewParam(name+".weight", in, out),
		B: NewParam(name+".bias", 1, out),
	}
	l.W.InitXavier(rng, in, out)
	return l
}

// Forward computes XW + b for x of shape (batch, in), caching x for
// Backward. Training path; not safe for concurrent use.
func (l *Linear) Forward(x *mat.Dense) *mat.Dense {
	l.x = x
	return l.Apply(x)
}

// Apply computes XW + b without touching layer state, so concurrent
// inference calls may share the layer.
func (l *Linear) Apply(x *mat.Dense) *mat.Dense {
	batch, _ := x.Dims()
	_, out := l.W.Value.Dims()

	y := mat.NewDense(batch, out, nil)
	y.Mul(x, l.W.Value)
	bias := l.B.Value.RawRowView(0)
	for i := 0; i < batch; i++ {
		row := y.RawRowView(i)
		for j := range row {
			row[j] += bias[j]
		}
	}
	return y
}

// Backward accumulates dW and dB for the gradient dy of the last Forward
// and returns the gradient with respect to the input.
func (l *Linear) Backward(dy *mat.Dense) *mat.Dense {
	var dw mat.Dense
	dw.Mul(l.x.T(), dy)
	l.W.Grad.Add(l.W.Grad, &dw)

	batch, out := dy.Dims()
	dbias := l.B.Grad.RawRowView(0)
	for i := 0; i < batch; i++ {
		row := dy.RawRowView(i)
		for j := 0; j < out; j++ {
			dbias[j] += row[j]
		}
	}

	in, _ := l.W.Value.Dims()
	dx := mat.NewDense(batch, in, nil)
	dx.Mul(dy, l.W.Value.T())
	return dx
}

// Params returns the layer's learnable parameters.
func (l *Linear) Params() []*Param {
	return []*Param{l.W, l.B}
}
