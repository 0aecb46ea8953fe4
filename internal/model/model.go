// Package model assembles the sign classifier: a bidirectional LSTM encoder
// over flattened keypoint frames, attention pooling across the window, and
// a two-layer classification head producing per-sign logits. It also owns
// the checkpoint format that binds trained weights to their vocabulary.
package model

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/sunosaathi/sanket/internal/keypoints"
	"github.com/sunosaathi/sanket/internal/nn"
)

// Config holds the classifier dimensions. Classes must equal the size of
// the vocabulary the model is trained against; everything else has
// serving defaults.
type Config struct {
	InputDim int     `json:"input_dim"`
	Hidden   int     `json:"hidden"`
	Layers   int     `json:"layers"`
	Classes  int     `json:"classes"`
	Dropout  float64 `json:"dropout"`
	Window   int     `json:"window"`
}

// DefaultConfig returns the standard architecture for a vocabulary of the
// given size.
func DefaultConfig(classes int) Config {
	return Config{
		InputDim: keypoints.FeatureDim,
		Hidden:   256,
		Layers:   2,
		Classes:  classes,
		Dropout:  0.3,
		Window:   keypoints.DefaultWindow,
	}
}

// Validate rejects configs the constructor cannot build.
func (c Config) Validate() error {
	if c.InputDim <= 0 {
		return fmt.Errorf("model: input_dim %d, want > 0", c.InputDim)
	}
	if c.Hidden <= 0 {
		return fmt.Errorf("model: hidden %d, want > 0", c.Hidden)
	}
	if c.Layers <= 0 {
		return fmt.Errorf("model: layers %d, want > 0", c.Layers)
	}
	if c.Classes <= 0 {
		return fmt.Errorf("model: classes %d, want > 0", c.Classes)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("model: dropout %v, want [0, 1)", c.Dropout)
	}
	if c.Window <= 0 {
		return fmt.Errorf("model: window %d, want > 0", c.Window)
	}
	return nil
}

// SignClassifier is the recognition model. Training drives Forward and
// Backward from a single goroutine; Infer never mutates the model and is
// safe for concurrent use once the weights are final.
type SignClassifier struct {
	cfg Config

	encoder   *nn.BiLSTM
	attention *nn.AttentionPool
	fc1       *nn.Linear
	relu      *nn.ReLU
	drop      *nn.Dropout
	fc2       *nn.Linear

	params []*nn.Param
}

// New builds a classifier with freshly initialized weights drawn from the
// seed. The same config and seed always produce identical weights.
func New(cfg Config, seed int64) (*SignClassifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))

	m := &SignClassifier{cfg: cfg}
	m.encoder = nn.NewBiLSTM("encoder", cfg.InputDim, cfg.Hidden, cfg.Layers, cfg.Dropout, rng)
	m.attention = nn.NewAttentionPool("attention", 2*cfg.Hidden, cfg.Hidden, rng)
	m.fc1 = nn.NewLinear("head.fc1", 2*cfg.Hidden, cfg.Hidden, rng)
	m.relu = &nn.ReLU{}
	m.drop = nn.NewDropout(cfg.Dropout, rng)
	m.fc2 = nn.NewLinear("head.fc2", cfg.Hidden, cfg.Classes, rng)

	m.params = append(m.params, m.encoder.Params()...)
	m.params = append(m.params, m.attention.Params()...)
	m.params = append(m.params, m.fc1.Params()...)
	m.params = append(m.params, m.fc2.Params()...)
	return m, nil
}

// Config returns the model dimensions.
func (m *SignClassifier) Config() Config {
	return m.cfg
}

// Params returns every learnable parameter in a stable order.
func (m *SignClassifier) Params() []*nn.Param {
	return m.params
}

// SetTraining toggles dropout throughout the model.
func (m *SignClassifier) SetTraining(train bool) {
	m.encoder.SetTraining(train)
	m.drop.SetTraining(train)
}

// Forward computes logits (batch, classes) for a batch given as per-step
// (batch, input_dim) matrices. Training path.
func (m *SignClassifier) Forward(xs []*mat.Dense) *mat.Dense {
	hs := m.encoder.Forward(xs)
	ctx := m.attention.Forward(hs)
	h := m.fc1.Forward(ctx)
	h = m.relu.Forward(h)
	h = m.drop.Forward(h)
	return m.fc2.Forward(h)
}

// Backward propagates the logit gradient from the last Forward through the
// whole model, accumulating parameter gradients.
func (m *SignClassifier) Backward(dlogits *mat.Dense) {
	d := m.fc2.Backward(dlogits)
	d = m.drop.Backward(d)
	d = m.relu.Backward(d)
	d = m.fc1.Backward(d)
	dhs := m.attention.Backward(d)
	m.encoder.Backward(dhs)
}

// AttentionWeights returns the attention distribution from the most recent
// training Forward, or nil. Diagnostic surface; inference does not populate
// it.
func (m *SignClassifier) AttentionWeights() *mat.Dense {
	return m.attention.Weights()
}

// Infer runs one flattened, windowed sequence through the model and
// returns its logits. Dropout is skipped and no state is touched, so any
// number of goroutines may call Infer on a shared model.
func (m *SignClassifier) Infer(rows [][]float64) ([]float64, error) {
	if len(rows) == 0 {
		return nil, keypoints.ErrEmptySequence
	}
	for t, row := range rows {
		if len(row) != m.cfg.InputDim {
			return nil, fmt.Errorf("model: step %d has width %d, want %d", t, len(row), m.cfg.InputDim)
		}
	}
	xs := make([]*mat.Dense, len(rows))
	for t, row := range rows {
		xs[t] = mat.NewDense(1, m.cfg.InputDim, row)
	}

	hs := m.encoder.Apply(xs)
	ctx, _ := m.attention.Apply(hs)
	h := m.fc1.Apply(ctx)
	h = m.relu.Apply(h)
	logits := m.fc2.Apply(h)

	out := make([]float64, m.cfg.Classes)
	copy(out, logits.RawRowView(0))
	return out, nil
}
