package nn

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// numGrad estimates d f / d x by central differences, restoring x after.
func numGrad(f func() float64, x *float64) float64 {
	const h = 1e-6
	old := *x
	*x = old + h
	fp := f()
	*x = old - h
	fm := f()
	*x = old
	return (fp - fm) / (2 * h)
}

// checkGrads compares every element of an analytic gradient against the
// numerical derivative of loss. data and grad alias the checked tensor's
// raw storage.
func checkGrads(t *testing.T, name string, data, grad []float64, loss func() float64, tol float64) {
	t.Helper()
	for i := range data {
		want := numGrad(loss, &data[i])
		got := grad[i]
		if math.Abs(got-want) > tol*math.Max(1, math.Abs(want)) {
			t.Errorf("%s grad[%d] = %g, want %g (diff %g)", name, i, got, want, got-want)
			return
		}
	}
}

// coeffs builds a deterministic (rows, cols) coefficient matrix so that a
// weighted-sum loss exercises every output element with a distinct weight.
func coeffs(rng *rand.Rand, rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	return mat.NewDense(rows, cols, data)
}

// weightedSum is the scalar loss Σ c_ij y_ij; its gradient w.r.t. y is c.
func weightedSum(y, c *mat.Dense) float64 {
	yd := y.RawMatrix().Data
	cd := c.RawMatrix().Data
	var s float64
	for i := range yd {
		s += yd[i] * cd[i]
	}
	return s
}

// randInput builds a deterministic (rows, cols) input matrix.
func randInput(rng *rand.Rand, rows, cols int) *mat.Dense {
	return coeffs(rng, rows, cols)
}
