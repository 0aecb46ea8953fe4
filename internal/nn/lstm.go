package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// LSTM is a single-direction LSTM unrolled over a fixed-length sequence.
// Weights follow the fused layout: Wih (in, 4H) and Whh (H, 4H) hold the
// input, forget, cell and output gate blocks side by side, in that order.
type LSTM struct {
	In     int
	Hidden int

	Wih *Param
	Whh *Param
	B   *Param

	steps []*lstmStep
}

// lstmStep caches one timestep's forward activations for BPTT.
type lstmStep struct {
	x     *mat.Dense
	hPrev *mat.Dense
	cPrev *mat.Dense
	i     *mat.Dense
	f     *mat.Dense
	g     *mat.Dense
	o     *mat.Dense
	tanhC *mat.Dense
}

// NewLSTM builds an LSTM whose weights are drawn from
// U(-1/sqrt(hidden), 1/sqrt(hidden)).
func NewLSTM(name string, in, hidden int, rng *rand.Rand) *LSTM {
	l := &LSTM{
		In:     in,
		Hidden: hidden,
		Wih:    NewParam(name+".wih", in, 4*hidden),
		Whh:    NewParam(name+".whh", hidden, 4*hidden),
		B:      NewParam(name+".bias", 1, 4*hidden),
	}
	limit := 1.0 / math.Sqrt(float64(hidden))
	l.Wih.InitUniform(rng, limit)
	l.Whh.InitUniform(rng, limit)
	l.B.InitUniform(rng, limit)
	return l
}

// Forward runs the sequence xs, each step a (batch, in) matrix, and returns
// the hidden state at every step, recording activations for Backward.
// Initial hidden and cell states are zero. Training path; not safe for
// concurrent use.
func (l *LSTM) Forward(xs []*mat.Dense) []*mat.Dense {
	return l.run(xs, true)
}

// Apply runs the forward pass without recording anything, leaving the layer
// untouched so concurrent inference calls may share it.
func (l *LSTM) Apply(xs []*mat.Dense) []*mat.Dense {
	return l.run(xs, false)
}

func (l *LSTM) run(xs []*mat.Dense, record bool) []*mat.Dense {
	batch, _ := xs[0].Dims()
	H := l.Hidden

	hPrev := mat.NewDense(batch, H, nil)
	cPrev := mat.NewDense(batch, H, nil)
	steps := make([]*lstmStep, len(xs))
	hs := make([]*mat.Dense, len(xs))

	var z, zh mat.Dense
	bias := l.B.Value.RawRowView(0)
	for t, x := range xs {
		z.Mul(x, l.Wih.Value)
		zh.Mul(hPrev, l.Whh.Value)
		z.Add(&z, &zh)

		step := &lstmStep{
			x:     x,
			hPrev: hPrev,
			cPrev: cPrev,
			i:     mat.NewDense(batch, H, nil),
			f:     mat.NewDense(batch, H, nil),
			g:     mat.NewDense(batch, H, nil),
			o:     mat.NewDense(batch, H, nil),
			tanhC: mat.NewDense(batch, H, nil),
		}
		h := mat.NewDense(batch, H, nil)
		c := mat.NewDense(batch, H, nil)

		for bi := 0; bi < batch; bi++ {
			zr := z.RawRowView(bi)
			ir := step.i.RawRowView(bi)
			fr := step.f.RawRowView(bi)
			gr := step.g.RawRowView(bi)
			or := step.o.RawRowView(bi)
			cPrevR := cPrev.RawRowView(bi)
			cr := c.RawRowView(bi)
			tr := step.tanhC.RawRowView(bi)
			hr := h.RawRowView(bi)
			for j := 0; j < H; j++ {
				ir[j] = sigmoid(zr[j] + bias[j])
				fr[j] = sigmoid(zr[H+j] + bias[H+j])
				gr[j] = math.Tanh(zr[2*H+j] + bias[2*H+j])
				or[j] = sigmoid(zr[3*H+j] + bias[3*H+j])
				cr[j] = fr[j]*cPrevR[j] + ir[j]*gr[j]
				tr[j] = math.Tanh(cr[j])
				hr[j] = or[j] * tr[j]
			}
		}

		steps[t] = step
		hs[t] = h
		hPrev = h
		cPrev = c
	}
	if record {
		l.steps = steps
	}
	return hs
}

// Backward runs BPTT for per-step hidden-state gradients dhs, accumulates
// the weight gradients, and returns the per-step input gradients.
func (l *LSTM) Backward(dhs []*mat.Dense) []*mat.Dense {
	batch, _ := dhs[0].Dims()
	H := l.Hidden

	dxs := make([]*mat.Dense, len(dhs))
	dhNext := mat.NewDense(batch, H, nil)
	dcNext := mat.NewDense(batch, H, nil)
	dz := mat.NewDense(batch, 4*H, nil)
	dbias := l.B.Grad.RawRowView(0)

	var dw mat.Dense
	for t := len(dhs) - 1; t >= 0; t-- {
		step := l.steps[t]
		dcCur := mat.NewDense(batch, H, nil)

		for bi := 0; bi < batch; bi++ {
			dhr := dhs[t].RawRowView(bi)
			dhNextR := dhNext.RawRowView(bi)
			dcNextR := dcNext.RawRowView(bi)
			ir := step.i.RawRowView(bi)
			fr := step.f.RawRowView(bi)
			gr := step.g.RawRowView(bi)
			or := step.o.RawRowView(bi)
			tr := step.tanhC.RawRowView(bi)
			cPrevR := step.cPrev.RawRowView(bi)
			dzr := dz.RawRowView(bi)
			dcCurR := dcCur.RawRowView(bi)
			for j := 0; j < H; j++ {
				dh := dhr[j] + dhNextR[j]
				do := dh * tr[j]
				dc := dcNextR[j] + dh*or[j]*(1-tr[j]*tr[j])
				di := dc * gr[j]
				df := dc * cPrevR[j]
				dg := dc * ir[j]

				dzr[j] = di * ir[j] * (1 - ir[j])
				dzr[H+j] = df * fr[j] * (1 - fr[j])
				dzr[2*H+j] = dg * (1 - gr[j]*gr[j])
				dzr[3*H+j] = do * or[j] * (1 - or[j])

				dcCurR[j] = dc * fr[j]
			}
			for j := 0; j < 4*H; j++ {
				dbias[j] += dzr[j]
			}
		}

		dw.Mul(step.x.T(), dz)
		l.Wih.Grad.Add(l.Wih.Grad, &dw)
		dw.Reset()
		dw.Mul(step.hPrev.T(), dz)
		l.Whh.Grad.Add(l.Whh.Grad, &dw)
		dw.Reset()

		dx := mat.NewDense(batch, l.In, nil)
		dx.Mul(dz, l.Wih.Value.T())
		dxs[t] = dx

		dhNext.Mul(dz, l.Whh.Value.T())
		dcNext = dcCur
	}
	return dxs
}

// Params returns the layer's learnable parameters.
func (l *LSTM) Params() []*Param {
	return []*Param{l.Wih, l.Whh, l.B}
}
