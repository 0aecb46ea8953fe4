package model

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/sunosaathi/sanket/internal/nn"
	"github.com/sunosaathi/sanket/internal/vocab"
)

// checkpointSchema identifies the bundle layout. Readers refuse other
// versions rather than guess at field meanings.
const checkpointSchema = 1

// Checkpoint is the serialized training artifact: the model weights bound
// to the vocabulary they were trained on, optional optimizer state for
// resuming, and the metrics of the epoch that produced it. Encoded as
// gob inside gzip.
type Checkpoint struct {
	Schema    int
	Config    Config
	Weights   map[string]nn.Tensor
	Optimizer *nn.AdamState
	Vocab     []string
	Epoch     int
	ValLoss   float64
	ValAcc    float64
	SavedAt   time.Time
}

// Snapshot bundles a model's current weights with its vocabulary and run
// metadata. opt may be nil for inference-only exports.
func Snapshot(m *SignClassifier, v *vocab.Vocabulary, opt *nn.Adam, epoch int, valLoss, valAcc float64) (*Checkpoint, error) {
	if v.Len() != m.cfg.Classes {
		return nil, &VocabMismatchError{ModelClasses: m.cfg.Classes, VocabSize: v.Len()}
	}
	c := &Checkpoint{
		Schema:  checkpointSchema,
		Config:  m.cfg,
		Weights: make(map[string]nn.Tensor, len(m.params)),
		Vocab:   v.Labels(),
		Epoch:   epoch,
		ValLoss: valLoss,
		ValAcc:  valAcc,
		SavedAt: time.Now().UTC(),
	}
	for _, p := range m.params {
		c.Weights[p.Name] = nn.Snapshot(p.Value)
	}
	if opt != nil {
		state := opt.State()
		c.Optimizer = &state
	}
	return c, nil
}

// Write serializes the checkpoint to path. The bundle is written to a
// temporary file first and renamed into place so a crash mid-write never
// leaves a torn checkpoint behind.
func (c *Checkpoint) Write(path string) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(c); err != nil {
		gz.Close()
		return &CheckpointError{Path: path, Err: fmt.Errorf("failed to encode checkpoint: %w", err)}
	}
	if err := gz.Close(); err != nil {
		return &CheckpointError{Path: path, Err: fmt.Errorf("failed to compress checkpoint: %w", err)}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return &CheckpointError{Path: path, Err: fmt.Errorf("failed to write checkpoint: %w", err)}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &CheckpointError{Path: path, Err: fmt.Errorf("failed to finalize checkpoint: %w", err)}
	}
	return nil
}

// Read loads and validates a checkpoint bundle. Every failure (missing
// file, bad compression, wrong schema, non-finite weights) comes back as
// a *CheckpointError wrapping the cause.
func Read(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CheckpointError{Path: path, Err: err}
	}
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &CheckpointError{Path: path, Err: fmt.Errorf("failed to open gzip stream: %w", err)}
	}
	defer gz.Close()

	var c Checkpoint
	if err := gob.NewDecoder(gz).Decode(&c); err != nil {
		return nil, &CheckpointError{Path: path, Err: fmt.Errorf("failed to decode checkpoint: %w", err)}
	}
	if c.Schema != checkpointSchema {
		return nil, &CheckpointError{Path: path, Err: fmt.Errorf("unsupported checkpoint schema %d, want %d", c.Schema, checkpointSchema)}
	}
	if len(c.Vocab) == 0 {
		return nil, &CheckpointError{Path: path, Err: fmt.Errorf("checkpoint carries no vocabulary")}
	}
	for name, tensor := range c.Weights {
		for _, v := range tensor.Data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &CheckpointError{Path: path, Err: fmt.Errorf("tensor %s contains non-finite values", name)}
			}
		}
	}
	return &c, nil
}

// Restore copies the checkpoint weights into m, verifying that every model
// parameter has a tensor of the right shape, and returns the vocabulary the
// weights are bound to. The model's class count must match the checkpoint
// vocabulary exactly.
func (c *Checkpoint) Restore(m *SignClassifier) (*vocab.Vocabulary, error) {
	if len(c.Vocab) != m.cfg.Classes {
		return nil, &VocabMismatchError{ModelClasses: m.cfg.Classes, VocabSize: len(c.Vocab)}
	}
	for _, p := range m.params {
		tensor, ok := c.Weights[p.Name]
		if !ok {
			return nil, &CheckpointError{Err: fmt.Errorf("checkpoint is missing tensor %s", p.Name)}
		}
		r, cols := p.Value.Dims()
		if tensor.Rows != r || tensor.Cols != cols {
			return nil, &CheckpointError{Err: fmt.Errorf("tensor %s is (%d, %d), model wants (%d, %d)",
				p.Name, tensor.Rows, tensor.Cols, r, cols)}
		}
		copy(p.Value.RawMatrix().Data, tensor.Data)
	}
	v, err := vocab.New(c.Vocab)
	if err != nil {
		return nil, &CheckpointError{Err: fmt.Errorf("invalid checkpoint vocabulary: %w", err)}
	}
	return v, nil
}

// RestoreOptimizer rebuilds the optimizer state saved in the checkpoint,
// if any, so training resumes mid-schedule instead of restarting moments
// from zero.
func (c *Checkpoint) RestoreOptimizer(opt *nn.Adam) bool {
	if c.Optimizer == nil {
		return false
	}
	opt.Restore(*c.Optimizer)
	return true
}
