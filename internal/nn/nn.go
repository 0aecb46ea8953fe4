// Package nn implements the small neural-network toolkit behind the sign
// classifier: linear and LSTM layers, attention pooling, dropout, the
// softmax cross-entropy loss, and the Adam optimizer, all with hand-written
// backward passes on gonum dense matrices.
//
// Layers expose two forward paths. Forward caches whatever the backward
// pass needs, so the training call order is always Forward, then Backward
// with the gradient of the loss with respect to the forward output;
// parameter gradients accumulate across calls until the optimizer consumes
// and clears them. Training is single-goroutine. Apply computes the same
// function without touching any layer state, which is what lets a loaded
// model serve concurrent recognition requests over shared weights.
package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Param is one learnable tensor together with its accumulated gradient.
// Names must be unique within a model: the optimizer and the checkpoint
// codec both key their state by param name.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

// NewParam allocates a zero-valued r-by-c parameter.
func NewParam(name string, r, c int) *Param {
	return &Param{
		Name:  name,
		Value: mat.NewDense(r, c, nil),
		Grad:  mat.NewDense(r, c, nil),
	}
}

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() {
	p.Grad.Zero()
}

// InitXavier fills the parameter with U(-limit, limit) where
// limit = sqrt(6 / (fanIn + fanOut)).
func (p *Param) InitXavier(rng *rand.Rand, fanIn, fanOut int) {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	p.InitUniform(rng, limit)
}

// InitUniform fills the parameter with U(-limit, limit).
func (p *Param) InitUniform(rng *rand.Rand, limit float64) {
	data := p.Value.RawMatrix().Data
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
}

// Tensor is a flat, codec-friendly snapshot of a matrix. The gob-based
// checkpoint format stores every weight and optimizer moment as one of
// these; mat.Dense itself has no exported fields to encode.
type Tensor struct {
	Rows, Cols int
	Data       []float64
}

// Snapshot copies a dense matrix into a Tensor.
func Snapshot(d *mat.Dense) Tensor {
	r, c := d.Dims()
	t := Tensor{Rows: r, Cols: c, Data: make([]float64, r*c)}
	copy(t.Data, d.RawMatrix().Data)
	return t
}

// Dense rebuilds the dense matrix a Tensor was snapshotted from.
func (t Tensor) Dense() *mat.Dense {
	data := make([]float64, len(t.Data))
	copy(data, t.Data)
	return mat.NewDense(t.Rows, t.Cols, data)
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
