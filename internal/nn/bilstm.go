package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// BiLSTM stacks bidirectional LSTM layers. Every layer runs one LSTM
// forward in time and one backward, concatenating the two hidden states, so
// the output at each step is (batch, 2*Hidden). Between stacked layers a
// per-timestep dropout applies during training, matching the usual deep
// bidirectional recipe.
type BiLSTM struct {
	Hidden int

	layers []*biLayer
	drops  []*seqDropout
}

type biLayer struct {
	fwd *LSTM
	bwd *LSTM
}

// NewBiLSTM builds numLayers bidirectional layers. The first consumes in
// features per step, the rest consume the 2*hidden output of the previous
// layer.
func NewBiLSTM(name string, in, hidden, numLayers int, dropout float64, rng *rand.Rand) *BiLSTM {
	b := &BiLSTM{Hidden: hidden}
	width := in
	for li := 0; li < numLayers; li++ {
		b.layers = append(b.layers, &biLayer{
			fwd: NewLSTM(fmt.Sprintf("%s.l%d.fwd", name, li), width, hidden, rng),
			bwd: NewLSTM(fmt.Sprintf("%s.l%d.bwd", name, li), width, hidden, rng),
		})
		if li < numLayers-1 {
			b.drops = append(b.drops, &seqDropout{p: dropout, rng: rng})
		}
		width = 2 * hidden
	}
	return b
}

// SetTraining toggles the inter-layer dropout.
func (b *BiLSTM) SetTraining(train bool) {
	for _, d := range b.drops {
		d.train = train
	}
}

// Forward encodes the sequence and returns the per-step (batch, 2*Hidden)
// encodings of the final layer, recording activations for Backward.
// Training path; not safe for concurrent use.
func (b *BiLSTM) Forward(xs []*mat.Dense) []*mat.Dense {
	cur := xs
	for li, layer := range b.layers {
		fwdOut := layer.fwd.Forward(cur)
		bwdOut := reverseSeq(layer.bwd.Forward(reverseSeq(cur)))

		merged := make([]*mat.Dense, len(cur))
		for t := range cur {
			merged[t] = concatCols(fwdOut[t], bwdOut[t])
		}
		if li < len(b.layers)-1 {
			merged = b.drops[li].forward(merged)
		}
		cur = merged
	}
	return cur
}

// Apply encodes the sequence without recording activations or applying
// inter-layer dropout. It never mutates the module, so concurrent inference
// calls may share it.
func (b *BiLSTM) Apply(xs []*mat.Dense) []*mat.Dense {
	cur := xs
	for _, layer := range b.layers {
		fwdOut := layer.fwd.Apply(cur)
		bwdOut := reverseSeq(layer.bwd.Apply(reverseSeq(cur)))

		merged := make([]*mat.Dense, len(cur))
		for t := range cur {
			merged[t] = concatCols(fwdOut[t], bwdOut[t])
		}
		cur = merged
	}
	return cur
}

// Backward propagates per-step gradients of the final encodings back
// through every layer and returns the gradients with respect to the input
// sequence.
func (b *BiLSTM) Backward(dhs []*mat.Dense) []*mat.Dense {
	cur := dhs
	for li := len(b.layers) - 1; li >= 0; li-- {
		if li < len(b.layers)-1 {
			cur = b.drops[li].backward(cur)
		}

		dfwd := make([]*mat.Dense, len(cur))
		dbwd := make([]*mat.Dense, len(cur))
		for t, d := range cur {
			dfwd[t], dbwd[t] = splitCols(d, b.Hidden)
		}

		layer := b.layers[li]
		dxFwd := layer.fwd.Backward(dfwd)
		dxBwd := reverseSeq(layer.bwd.Backward(reverseSeq(dbwd)))

		next := make([]*mat.Dense, len(cur))
		for t := range next {
			sum := mat.NewDense(dxFwd[t].RawMatrix().Rows, dxFwd[t].RawMatrix().Cols, nil)
			sum.Add(dxFwd[t], dxBwd[t])
			next[t] = sum
		}
		cur = next
	}
	return cur
}

// Params returns all layers' parameters, forward then backward direction
// per layer.
func (b *BiLSTM) Params() []*Param {
	var out []*Param
	for _, layer := range b.layers {
		out = append(out, layer.fwd.Params()...)
		out = append(out, layer.bwd.Params()...)
	}
	return out
}

// reverseSeq returns the sequence in reverse step order. The matrices
// themselves are shared, not copied.
func reverseSeq(xs []*mat.Dense) []*mat.Dense {
	out := make([]*mat.Dense, len(xs))
	for i, x := range xs {
		out[len(xs)-1-i] = x
	}
	return out
}

// concatCols joins two (batch, n) matrices into one (batch, 2n) matrix.
func concatCols(a, b *mat.Dense) *mat.Dense {
	rows, an := a.Dims()
	_, bn := b.Dims()
	out := mat.NewDense(rows, an+bn, nil)
	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		copy(row[:an], a.RawRowView(i))
		copy(row[an:], b.RawRowView(i))
	}
	return out
}

// splitCols splits a (batch, 2n) matrix into its left and right halves.
func splitCols(x *mat.Dense, n int) (*mat.Dense, *mat.Dense) {
	rows, cols := x.Dims()
	left := mat.NewDense(rows, n, nil)
	right := mat.NewDense(rows, cols-n, nil)
	for i := 0; i < rows; i++ {
		row := x.RawRowView(i)
		copy(left.RawRowView(i), row[:n])
		copy(right.RawRowView(i), row[n:])
	}
	return left, right
}

// seqDropout applies an independent dropout mask at every timestep of a
// sequence. Unlike Dropout it keeps one mask per step so the backward pass
// can replay all of them.
type seqDropout struct {
	p      float64
	rng    *rand.Rand
	train  bool
	scales [][]float64
}

func (d *seqDropout) forward(xs []*mat.Dense) []*mat.Dense {
	if !d.train || d.p <= 0 {
		d.scales = nil
		return xs
	}
	keep := 1.0 / (1.0 - d.p)
	out := make([]*mat.Dense, len(xs))
	d.scales = make([][]float64, len(xs))
	for t, x := range xs {
		rows, cols := x.Dims()
		src := x.RawMatrix().Data
		dst := make([]float64, len(src))
		scale := make([]float64, len(src))
		for i, v := range src {
			if d.rng.Float64() >= d.p {
				scale[i] = keep
				dst[i] = v * keep
			}
		}
		d.scales[t] = scale
		out[t] = mat.NewDense(rows, cols, dst)
	}
	return out
}

func (d *seqDropout) backward(dys []*mat.Dense) []*mat.Dense {
	if d.scales == nil {
		return dys
	}
	out := make([]*mat.Dense, len(dys))
	for t, dy := range dys {
		rows, cols := dy.Dims()
		src := dy.RawMatrix().Data
		dst := make([]float64, len(src))
		for i, v := range src {
			dst[i] = v * d.scales[t][i]
		}
		out[t] = mat.NewDense(rows, cols, dst)
	}
	return out
}
