package nn

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestReLU(t *testing.T) {
	r := &ReLU{}
	x := mat.NewDense(2, 3, []float64{-1, 0, 2, 3, -0.5, 0.1})
	y := r.Forward(x)

	want := []float64{0, 0, 2, 3, 0, 0.1}
	for i, w := range want {
		if got := y.RawMatrix().Data[i]; got != w {
			t.Errorf("forward[%d] = %v, want %v", i, got, w)
		}
	}

	dy := mat.NewDense(2, 3, []float64{10, 10, 10, 10, 10, 10})
	dx := r.Backward(dy)
	wantGrad := []float64{0, 0, 10, 10, 0, 10}
	for i, w := range wantGrad {
		if got := dx.RawMatrix().Data[i]; got != w {
			t.Errorf("backward[%d] = %v, want %v", i, got, w)
		}
	}
}

func TestSoftmax(t *testing.T) {
	probs := Softmax([]float64{1, 2, 3})
	var sum float64
	for _, p := range probs {
		if p <= 0 || p >= 1 {
			t.Errorf("probability %v outside (0, 1)", p)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("probabilities sum to %v, want 1", sum)
	}
	if !(probs[2] > probs[1] && probs[1] > probs[0]) {
		t.Errorf("softmax not monotone in logits: %v", probs)
	}
}

func TestSoftmaxLargeLogits(t *testing.T) {
	// Max-shifting keeps exp() in range for logits that would overflow.
	probs := Softmax([]float64{1000, 1001, 999})
	var sum float64
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			t.Fatalf("probs[%d] = %v", i, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("probabilities sum to %v, want 1", sum)
	}
}

func TestSoftmaxUniform(t *testing.T) {
	probs := Softmax([]float64{5, 5, 5, 5})
	for i, p := range probs {
		if math.Abs(p-0.25) > 1e-12 {
			t.Errorf("probs[%d] = %v, want 0.25", i, p)
		}
	}
}

func TestSoftmaxCrossEntropyKnownValue(t *testing.T) {
	// Uniform logits over 4 classes: loss = ln(4) regardless of label.
	logits := mat.NewDense(1, 4, []float64{2, 2, 2, 2})
	loss, grad := SoftmaxCrossEntropy(logits, []int{1})
	if math.Abs(loss-math.Log(4)) > 1e-12 {
		t.Errorf("loss = %v, want ln(4) = %v", loss, math.Log(4))
	}

	// Gradient: p - onehot = 0.25 everywhere except label (0.25 - 1).
	for j := 0; j < 4; j++ {
		want := 0.25
		if j == 1 {
			want = -0.75
		}
		if got := grad.At(0, j); math.Abs(got-want) > 1e-12 {
			t.Errorf("grad[0][%d] = %v, want %v", j, got, want)
		}
	}
}

func TestSoftmaxCrossEntropyGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	logits := randInput(rng, 3, 5)
	labels := []int{4, 0, 2}

	loss := func() float64 {
		l, _ := SoftmaxCrossEntropy(logits, labels)
		return l
	}
	_, grad := SoftmaxCrossEntropy(logits, labels)
	checkGrads(t, "logits", logits.RawMatrix().Data, grad.RawMatrix().Data, loss, 1e-5)
}

func TestSoftmaxCrossEntropyBatchMean(t *testing.T) {
	// Two identical rows must give the same loss as one.
	one := mat.NewDense(1, 3, []float64{0.5, 1.5, -1})
	two := mat.NewDense(2, 3, []float64{0.5, 1.5, -1, 0.5, 1.5, -1})

	lossOne, _ := SoftmaxCrossEntropy(one, []int{1})
	lossTwo, _ := SoftmaxCrossEntropy(two, []int{1, 1})
	if math.Abs(lossOne-lossTwo) > 1e-12 {
		t.Errorf("mean loss changed with batch duplication: %v vs %v", lossOne, lossTwo)
	}
}
