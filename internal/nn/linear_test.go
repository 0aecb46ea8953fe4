package nn

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestLinearForward(t *testing.T) {
	l := &Linear{
		W: NewParam("w", 2, 3),
		B: NewParam("b", 1, 3),
	}
	l.W.Value = mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})
	l.B.Value = mat.NewDense(1, 3, []float64{0.5, -0.5, 1})

	x := mat.NewDense(2, 2, []float64{
		1, 1,
		2, 0,
	})
	y := l.Forward(x)

	want := [][]float64{
		{5.5, 6.5, 10},  // [1,1]·W + b
		{2.5, 3.5, 7},   // [2,0]·W + b
	}
	for i, row := range want {
		for j, w := range row {
			if got := y.At(i, j); math.Abs(got-w) > 1e-12 {
				t.Errorf("y[%d][%d] = %v, want %v", i, j, got, w)
			}
		}
	}
}

func TestLinearGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	l := NewLinear("fc", 4, 3, rng)
	x := randInput(rng, 2, 4)
	c := coeffs(rng, 2, 3)

	loss := func() float64 {
		return weightedSum(l.Forward(x), c)
	}

	l.W.ZeroGrad()
	l.B.ZeroGrad()
	l.Forward(x)
	dx := l.Backward(c)

	checkGrads(t, "weight", l.W.Value.RawMatrix().Data, l.W.Grad.RawMatrix().Data, loss, 1e-5)
	checkGrads(t, "bias", l.B.Value.RawMatrix().Data, l.B.Grad.RawMatrix().Data, loss, 1e-5)
	checkGrads(t, "input", x.RawMatrix().Data, dx.RawMatrix().Data, loss, 1e-5)
}

func TestLinearGradAccumulation(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	l := NewLinear("fc", 3, 2, rng)
	x := randInput(rng, 2, 3)
	dy := coeffs(rng, 2, 2)

	l.Forward(x)
	l.Backward(dy)
	first := append([]float64(nil), l.W.Grad.RawMatrix().Data...)

	l.Forward(x)
	l.Backward(dy)
	for i, v := range l.W.Grad.RawMatrix().Data {
		if math.Abs(v-2*first[i]) > 1e-12 {
			t.Fatalf("grad[%d] = %v after two passes, want %v (gradients must accumulate)", i, v, 2*first[i])
		}
	}

	l.W.ZeroGrad()
	for i, v := range l.W.Grad.RawMatrix().Data {
		if v != 0 {
			t.Fatalf("grad[%d] = %v after ZeroGrad, want 0", i, v)
		}
	}
}

func TestLinearParams(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	l := NewLinear("head", 4, 2, rng)
	params := l.Params()
	if len(params) != 2 {
		t.Fatalf("len(Params()) = %d, want 2", len(params))
	}
	if params[0].Name != "head.weight" || params[1].Name != "head.bias" {
		t.Errorf("param names = %q, %q; want head.weight, head.bias", params[0].Name, params[1].Name)
	}
}
