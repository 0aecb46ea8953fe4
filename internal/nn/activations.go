package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ReLU applies max(0, x) element-wise, keeping the activation mask for the
// backward pass.
type ReLU struct {
	mask []bool
}

// Forward returns max(0, x) element-wise.
func (r *ReLU) Forward(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	src := x.RawMatrix().Data
	out := make([]float64, len(src))
	r.mask = make([]bool, len(src))
	for i, v := range src {
		if v > 0 {
			out[i] = v
			r.mask[i] = true
		}
	}
	return mat.NewDense(rows, cols, out)
}

// Apply returns max(0, x) without recording the mask, leaving the layer
// untouched for concurrent inference.
func (r *ReLU) Apply(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	src := x.RawMatrix().Data
	out := make([]float64, len(src))
	for i, v := range src {
		if v > 0 {
			out[i] = v
		}
	}
	return mat.NewDense(rows, cols, out)
}

// Backward zeroes the gradient wherever the forward input was non-positive.
func (r *ReLU) Backward(dy *mat.Dense) *mat.Dense {
	rows, cols := dy.Dims()
	src := dy.RawMatrix().Data
	out := make([]float64, len(src))
	for i, v := range src {
		if r.mask[i] {
			out[i] = v
		}
	}
	return mat.NewDense(rows, cols, out)
}

// Softmax converts a logit vector into a probability distribution. The
// computation is max-shifted so large logits cannot overflow.
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	m := logits[0]
	for _, v := range logits[1:] {
		if v > m {
			m = v
		}
	}
	var sum float64
	for i, v := range logits {
		e := math.Exp(v - m)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// softmaxRows applies Softmax to every row of x.
func softmaxRows(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		copy(out.RawRowView(i), Softmax(x.RawRowView(i)))
	}
	return out
}

// SoftmaxCrossEntropy computes the mean cross-entropy between a batch of
// logits (batch, classes) and integer class labels, along with the gradient
// of the loss with respect to the logits. Softmax and loss are fused: the
// gradient reduces to (softmax - onehot) / batch, which is exact and stable
// where a separate softmax-then-log pipeline is not.
func SoftmaxCrossEntropy(logits *mat.Dense, labels []int) (float64, *mat.Dense) {
	batch, classes := logits.Dims()
	grad := mat.NewDense(batch, classes, nil)
	var loss float64
	for i := 0; i < batch; i++ {
		row := logits.RawRowView(i)

		m := row[0]
		for _, v := range row[1:] {
			if v > m {
				m = v
			}
		}
		var sum float64
		for _, v := range row {
			sum += math.Exp(v - m)
		}
		logSum := m + math.Log(sum)

		label := labels[i]
		loss += logSum - row[label]

		grow := grad.RawRowView(i)
		for j, v := range row {
			grow[j] = math.Exp(v-logSum) / float64(batch)
		}
		grow[label] -= 1.0 / float64(batch)
	}
	return loss / float64(batch), grad
}
