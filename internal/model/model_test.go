package model

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/sunosaathi/sanket/internal/keypoints"
	"github.com/sunosaathi/sanket/internal/nn"
)

// tinyConfig keeps tests fast; the architecture is the production one at
// toy dimensions.
func tinyConfig() Config {
	return Config{InputDim: 5, Hidden: 3, Layers: 1, Classes: 3, Dropout: 0, Window: 4}
}

func seqRows(seed int64, steps, dim int) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]float64, steps)
	for t := range rows {
		rows[t] = make([]float64, dim)
		for j := range rows[t] {
			rows[t][j] = rng.Float64()*2 - 1
		}
	}
	return rows
}

func batchOf(rows [][]float64) []*mat.Dense {
	xs := make([]*mat.Dense, len(rows))
	for t, row := range rows {
		xs[t] = mat.NewDense(1, len(row), row)
	}
	return xs
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(*Config)
		expectErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero_input", func(c *Config) { c.InputDim = 0 }, true},
		{"zero_hidden", func(c *Config) { c.Hidden = 0 }, true},
		{"zero_layers", func(c *Config) { c.Layers = 0 }, true},
		{"zero_classes", func(c *Config) { c.Classes = 0 }, true},
		{"negative_dropout", func(c *Config) { c.Dropout = -0.1 }, true},
		{"dropout_one", func(c *Config) { c.Dropout = 1 }, true},
		{"zero_window", func(c *Config) { c.Window = 0 }, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tinyConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.expectErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(42)
	if cfg.InputDim != keypoints.FeatureDim {
		t.Errorf("InputDim = %d, want %d", cfg.InputDim, keypoints.FeatureDim)
	}
	if cfg.Hidden != 256 || cfg.Layers != 2 || cfg.Classes != 42 {
		t.Errorf("unexpected dims: %+v", cfg)
	}
	if cfg.Dropout != 0.3 || cfg.Window != keypoints.DefaultWindow {
		t.Errorf("unexpected regularization/window: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config fails validation: %v", err)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := tinyConfig()
	cfg.Classes = 0
	if _, err := New(cfg, 1); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestSeedDeterminism(t *testing.T) {
	rows := seqRows(10, 4, 5)

	a, err := New(tinyConfig(), 7)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	b, err := New(tinyConfig(), 7)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	c, err := New(tinyConfig(), 8)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	la, _ := a.Infer(rows)
	lb, _ := b.Infer(rows)
	lc, _ := c.Infer(rows)

	for i := range la {
		if la[i] != lb[i] {
			t.Fatalf("logit %d differs across identically seeded models", i)
		}
	}
	var differs bool
	for i := range la {
		if la[i] != lc[i] {
			differs = true
		}
	}
	if !differs {
		t.Error("different seeds produced identical weights")
	}
}

func TestForwardShapes(t *testing.T) {
	m, err := New(tinyConfig(), 1)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	rng := rand.New(rand.NewSource(2))
	xs := make([]*mat.Dense, 4)
	for t2 := range xs {
		data := make([]float64, 2*5)
		for i := range data {
			data[i] = rng.Float64()
		}
		xs[t2] = mat.NewDense(2, 5, data)
	}

	logits := m.Forward(xs)
	r, c := logits.Dims()
	if r != 2 || c != 3 {
		t.Errorf("logits dims = (%d, %d), want (2, 3)", r, c)
	}
}

func TestInferDeterministic(t *testing.T) {
	m, err := New(tinyConfig(), 3)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	rows := seqRows(11, 4, 5)

	first, err := m.Infer(rows)
	if err != nil {
		t.Fatalf("Infer returned error: %v", err)
	}
	second, err := m.Infer(rows)
	if err != nil {
		t.Fatalf("Infer returned error: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("logit %d changed between identical Infer calls", i)
		}
	}
}

func TestInferErrors(t *testing.T) {
	m, err := New(tinyConfig(), 4)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if _, err := m.Infer(nil); !errors.Is(err, keypoints.ErrEmptySequence) {
		t.Errorf("Infer(nil) error = %v, want ErrEmptySequence", err)
	}

	bad := [][]float64{{1, 2, 3}} // width 3, model wants 5
	if _, err := m.Infer(bad); err == nil {
		t.Error("expected width error, got nil")
	}
}

func TestInferMatchesEvalForward(t *testing.T) {
	m, err := New(tinyConfig(), 5)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	m.SetTraining(false)

	rows := seqRows(12, 4, 5)
	logits := m.Forward(batchOf(rows))
	inferred, err := m.Infer(rows)
	if err != nil {
		t.Fatalf("Infer returned error: %v", err)
	}
	for i := range inferred {
		if got, want := inferred[i], logits.At(0, i); got != want {
			t.Errorf("logit %d: Infer %v, eval Forward %v", i, got, want)
		}
	}
}

func TestDropoutOnlyInTraining(t *testing.T) {
	cfg := Config{InputDim: 5, Hidden: 8, Layers: 1, Classes: 3, Dropout: 0.5, Window: 4}
	m, err := New(cfg, 6)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	rows := seqRows(13, 4, 5)

	base, _ := m.Infer(rows)

	m.SetTraining(true)
	var differs bool
	for draw := 0; draw < 20 && !differs; draw++ {
		trainLogits := m.Forward(batchOf(rows))
		for i := range base {
			if trainLogits.At(0, i) != base[i] {
				differs = true
			}
		}
	}
	if !differs {
		t.Error("training forward matches inference; dropout never fired")
	}

	m.SetTraining(false)
	after, _ := m.Infer(rows)
	for i := range base {
		if after[i] != base[i] {
			t.Fatal("inference changed after a training pass; training must not mutate weights")
		}
	}
}

func TestEndToEndGradients(t *testing.T) {
	m, err := New(tinyConfig(), 9)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	m.SetTraining(true) // dropout 0 in tinyConfig, so still deterministic

	rng := rand.New(rand.NewSource(14))
	const T, batch = 3, 2
	xs := make([]*mat.Dense, T)
	for t2 := range xs {
		data := make([]float64, batch*5)
		for i := range data {
			data[i] = rng.Float64()*2 - 1
		}
		xs[t2] = mat.NewDense(batch, 5, data)
	}
	labels := []int{2, 0}

	loss := func() float64 {
		l, _ := nn.SoftmaxCrossEntropy(m.Forward(xs), labels)
		return l
	}

	for _, p := range m.Params() {
		p.ZeroGrad()
	}
	_, dlogits := nn.SoftmaxCrossEntropy(m.Forward(xs), labels)
	m.Backward(dlogits)

	for _, p := range m.Params() {
		data := p.Value.RawMatrix().Data
		grad := p.Grad.RawMatrix().Data
		for i := range data {
			old := data[i]
			data[i] = old + 1e-6
			fp := loss()
			data[i] = old - 1e-6
			fm := loss()
			data[i] = old
			want := (fp - fm) / 2e-6
			if math.Abs(grad[i]-want) > 1e-4*math.Max(1, math.Abs(want)) {
				t.Fatalf("%s grad[%d] = %g, want %g", p.Name, i, grad[i], want)
			}
		}
	}
}

func TestTrainingReducesLoss(t *testing.T) {
	cfg := Config{InputDim: 4, Hidden: 6, Layers: 1, Classes: 2, Dropout: 0, Window: 5}
	m, err := New(cfg, 21)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	m.SetTraining(true)

	// Two cleanly separable motion prototypes.
	rng := rand.New(rand.NewSource(22))
	const T, batch = 5, 8
	xs := make([]*mat.Dense, T)
	labels := make([]int, batch)
	for b := 0; b < batch; b++ {
		labels[b] = b % 2
	}
	for t2 := range xs {
		data := make([]float64, batch*4)
		for b := 0; b < batch; b++ {
			center := 0.5
			if labels[b] == 1 {
				center = -0.5
			}
			for j := 0; j < 4; j++ {
				data[b*4+j] = center + rng.NormFloat64()*0.05
			}
		}
		xs[t2] = mat.NewDense(batch, 4, data)
	}

	opt := nn.NewAdam(0.02)
	var initial, final float64
	for step := 0; step < 60; step++ {
		loss, dlogits := nn.SoftmaxCrossEntropy(m.Forward(xs), labels)
		if step == 0 {
			initial = loss
		}
		final = loss
		m.Backward(dlogits)
		opt.Step(m.Params())
		opt.ZeroGrad(m.Params())
	}

	if final >= initial*0.8 {
		t.Errorf("loss went %v -> %v over 60 steps; expected a clear decrease", initial, final)
	}
}
