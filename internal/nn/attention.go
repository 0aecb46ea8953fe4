package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// AttentionPool collapses a sequence of per-step encodings into one context
// vector per batch row using learned additive attention: each step is
// scored by w2·tanh(W1·h + b1) + b2, the scores are softmaxed over time,
// and the context is the attention-weighted sum of the encodings.
type AttentionPool struct {
	W1 *Param // (dim, att)
	B1 *Param // (1, att)
	W2 *Param // (att, 1)
	B2 *Param // (1, 1)

	hs      []*mat.Dense
	u       []*mat.Dense
	weights *mat.Dense
}

// NewAttentionPool builds an attention module scoring dim-wide encodings
// through an att-wide hidden projection.
func NewAttentionPool(name string, dim, att int, rng *rand.Rand) *AttentionPool {
	a := &AttentionPool{
		W1: NewParam(name+".w1", dim, att),
		B1: NewParam(name+".b1", 1, att),
		W2: NewParam(name+".w2", att, 1),
		B2: NewParam(name+".b2", 1, 1),
	}
	a.W1.InitXavier(rng, dim, att)
	a.W2.InitXavier(rng, att, 1)
	return a
}

// Forward pools the sequence hs (each step (batch, dim)) into a
// (batch, dim) context matrix, recording activations for Backward.
// Training path; not safe for concurrent use.
func (a *AttentionPool) Forward(hs []*mat.Dense) *mat.Dense {
	ctx, u, weights := a.run(hs)
	a.hs = hs
	a.u = u
	a.weights = weights
	return ctx
}

// Apply pools the sequence and returns the context together with the
// attention weights (batch, steps). It never mutates the module, so
// concurrent inference calls may share it.
func (a *AttentionPool) Apply(hs []*mat.Dense) (*mat.Dense, *mat.Dense) {
	ctx, _, weights := a.run(hs)
	return ctx, weights
}

func (a *AttentionPool) run(hs []*mat.Dense) (*mat.Dense, []*mat.Dense, *mat.Dense) {
	T := len(hs)
	batch, dim := hs[0].Dims()
	_, att := a.W1.Value.Dims()

	us := make([]*mat.Dense, T)
	scores := mat.NewDense(batch, T, nil)

	b1 := a.B1.Value.RawRowView(0)
	b2 := a.B2.Value.At(0, 0)
	w2 := a.W2.Value
	var z mat.Dense
	for t, h := range hs {
		z.Mul(h, a.W1.Value)
		u := mat.NewDense(batch, att, nil)
		for bi := 0; bi < batch; bi++ {
			zr := z.RawRowView(bi)
			ur := u.RawRowView(bi)
			var s float64
			for j := 0; j < att; j++ {
				ur[j] = math.Tanh(zr[j] + b1[j])
				s += ur[j] * w2.At(j, 0)
			}
			scores.Set(bi, t, s+b2)
		}
		us[t] = u
	}

	weights := softmaxRows(scores)

	ctx := mat.NewDense(batch, dim, nil)
	for t, h := range hs {
		for bi := 0; bi < batch; bi++ {
			w := weights.At(bi, t)
			cr := ctx.RawRowView(bi)
			hr := h.RawRowView(bi)
			for j := 0; j < dim; j++ {
				cr[j] += w * hr[j]
			}
		}
	}
	return ctx, us, weights
}

// Weights returns a copy of the attention weights (batch, steps) from the
// last Forward, or nil before any call. Diagnostic surface for the training
// monitor.
func (a *AttentionPool) Weights() *mat.Dense {
	if a.weights == nil {
		return nil
	}
	out := mat.NewDense(a.weights.RawMatrix().Rows, a.weights.RawMatrix().Cols, nil)
	out.Copy(a.weights)
	return out
}

// Backward propagates the context gradient (batch, dim) to per-step
// encoding gradients, accumulating the attention parameter gradients.
func (a *AttentionPool) Backward(dctx *mat.Dense) []*mat.Dense {
	T := len(a.hs)
	batch, dim := dctx.Dims()
	_, att := a.W1.Value.Dims()

	// Gradient w.r.t. each attention weight: da[b][t] = dctx[b] · hs[t][b].
	da := mat.NewDense(batch, T, nil)
	for t, h := range a.hs {
		for bi := 0; bi < batch; bi++ {
			dr := dctx.RawRowView(bi)
			hr := h.RawRowView(bi)
			var s float64
			for j := 0; j < dim; j++ {
				s += dr[j] * hr[j]
			}
			da.Set(bi, t, s)
		}
	}

	// Softmax backward over the time axis.
	ds := mat.NewDense(batch, T, nil)
	for bi := 0; bi < batch; bi++ {
		wr := a.weights.RawRowView(bi)
		dar := da.RawRowView(bi)
		var dot float64
		for t := 0; t < T; t++ {
			dot += wr[t] * dar[t]
		}
		dsr := ds.RawRowView(bi)
		for t := 0; t < T; t++ {
			dsr[t] = wr[t] * (dar[t] - dot)
		}
	}

	dhs := make([]*mat.Dense, T)
	db1 := a.B1.Grad.RawRowView(0)
	w2 := a.W2.Value
	var dw mat.Dense
	for t := 0; t < T; t++ {
		h := a.hs[t]
		u := a.u[t]

		// Direct path: context = Σ w_t · h_t.
		dh := mat.NewDense(batch, dim, nil)
		for bi := 0; bi < batch; bi++ {
			w := a.weights.At(bi, t)
			dr := dctx.RawRowView(bi)
			dhr := dh.RawRowView(bi)
			for j := 0; j < dim; j++ {
				dhr[j] = w * dr[j]
			}
		}

		// Score path: s_t = w2·u_t + b2, u_t = tanh(W1·h_t + b1).
		dz := mat.NewDense(batch, att, nil)
		for bi := 0; bi < batch; bi++ {
			dscore := ds.At(bi, t)
			a.B2.Grad.Set(0, 0, a.B2.Grad.At(0, 0)+dscore)
			ur := u.RawRowView(bi)
			dzr := dz.RawRowView(bi)
			for j := 0; j < att; j++ {
				a.W2.Grad.Set(j, 0, a.W2.Grad.At(j, 0)+dscore*ur[j])
				du := dscore * w2.At(j, 0)
				dzr[j] = du * (1 - ur[j]*ur[j])
				db1[j] += dzr[j]
			}
		}

		dw.Mul(h.T(), dz)
		a.W1.Grad.Add(a.W1.Grad, &dw)
		dw.Reset()

		var dhScore mat.Dense
		dhScore.Mul(dz, a.W1.Value.T())
		dh.Add(dh, &dhScore)
		dhs[t] = dh
	}
	return dhs
}

// Params returns the module's learnable parameters.
func (a *AttentionPool) Params() []*Param {
	return []*Param{a.W1, a.B1, a.W2, a.B2}
}
