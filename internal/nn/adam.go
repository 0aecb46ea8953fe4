package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adam implements the Adam update rule with bias-corrected first and second
// moment estimates, keyed by parameter name so optimizer state survives a
// checkpoint round-trip. LR may be changed between steps; the plateau
// scheduler does exactly that.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	step int
	m    map[string]*mat.Dense
	v    map[string]*mat.Dense
}

// NewAdam builds an optimizer with the conventional defaults
// (beta1 0.9, beta2 0.999, eps 1e-8).
func NewAdam(lr float64) *Adam {
	return &Adam{
		LR:    lr,
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-8,
		m:     make(map[string]*mat.Dense),
		v:     make(map[string]*mat.Dense),
	}
}

// Step applies one update to every parameter from its accumulated gradient,
// then leaves the gradients untouched; call ZeroGrad before the next
// backward pass.
func (a *Adam) Step(params []*Param) {
	a.step++
	c1 := 1 - math.Pow(a.Beta1, float64(a.step))
	c2 := 1 - math.Pow(a.Beta2, float64(a.step))

	for _, p := range params {
		r, c := p.Value.Dims()
		m, ok := a.m[p.Name]
		if !ok {
			m = mat.NewDense(r, c, nil)
			a.m[p.Name] = m
		}
		v, ok := a.v[p.Name]
		if !ok {
			v = mat.NewDense(r, c, nil)
			a.v[p.Name] = v
		}

		val := p.Value.RawMatrix().Data
		grad := p.Grad.RawMatrix().Data
		md := m.RawMatrix().Data
		vd := v.RawMatrix().Data
		for i := range val {
			g := grad[i]
			md[i] = a.Beta1*md[i] + (1-a.Beta1)*g
			vd[i] = a.Beta2*vd[i] + (1-a.Beta2)*g*g
			mhat := md[i] / c1
			vhat := vd[i] / c2
			val[i] -= a.LR * mhat / (math.Sqrt(vhat) + a.Eps)
		}
	}
}

// ZeroGrad clears the gradients of all params.
func (a *Adam) ZeroGrad(params []*Param) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// AdamState is the serializable snapshot of an optimizer: step count,
// learning rate, and both moment maps.
type AdamState struct {
	Step int
	LR   float64
	M    map[string]Tensor
	V    map[string]Tensor
}

// State snapshots the optimizer for checkpointing.
func (a *Adam) State() AdamState {
	s := AdamState{
		Step: a.step,
		LR:   a.LR,
		M:    make(map[string]Tensor, len(a.m)),
		V:    make(map[string]Tensor, len(a.v)),
	}
	for name, m := range a.m {
		s.M[name] = Snapshot(m)
	}
	for name, v := range a.v {
		s.V[name] = Snapshot(v)
	}
	return s
}

// Restore replaces the optimizer state with a snapshot, resuming exactly
// where the snapshotted run left off.
func (a *Adam) Restore(s AdamState) {
	a.step = s.Step
	if s.LR > 0 {
		a.LR = s.LR
	}
	a.m = make(map[string]*mat.Dense, len(s.M))
	for name, t := range s.M {
		a.m[name] = t.Dense()
	}
	a.v = make(map[string]*mat.Dense, len(s.V))
	for name, t := range s.V {
		a.v[name] = t.Dense()
	}
}
