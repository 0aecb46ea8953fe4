// Package recognizer owns the serving-side model lifecycle: loading a
// trained checkpoint (or falling back to fresh weights), binding the
// vocabulary, and turning keypoint sequences into ranked sign predictions
// and confidence-gated text.
package recognizer

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sunosaathi/sanket/internal/keypoints"
	"github.com/sunosaathi/sanket/internal/model"
	"github.com/sunosaathi/sanket/internal/nn"
	"github.com/sunosaathi/sanket/internal/vocab"
)

// ErrModelNotLoaded is returned by recognition calls made before a
// successful EnsureLoaded. Callers may retry after triggering a load.
var ErrModelNotLoaded = errors.New("recognizer: model not loaded")

const (
	// DefaultTopK is how many ranked predictions a recognize call returns
	// when the caller does not ask for a specific count.
	DefaultTopK = 3
	// DefaultAcceptThreshold gates text emission. The top prediction's
	// confidence must strictly exceed it; exactly the threshold is
	// rejected.
	DefaultAcceptThreshold = 0.5
)

// Prediction is one ranked recognition result.
type Prediction struct {
	Sign       string  `json:"sign"`
	Confidence float64 `json:"confidence"`
}

// Options configures a Recognizer. Zero values select serving defaults.
type Options struct {
	// CheckpointPath is the trained model bundle. Empty means no
	// checkpoint is expected and the recognizer starts with fresh
	// weights (demo mode).
	CheckpointPath string

	// VocabSources is the ordered fallback chain consulted when the
	// checkpoint cannot supply a vocabulary. The first source that
	// loads wins.
	VocabSources []vocab.Source

	// StrictLoad makes checkpoint problems fatal instead of degrading
	// to fresh weights.
	StrictLoad bool

	// Window overrides the padding window for fresh-weight models.
	// A loaded checkpoint always keeps the window it was trained with.
	Window int

	// TopK is the default prediction count (0 means DefaultTopK).
	TopK int

	// AcceptThreshold overrides the text-emission gate
	// (0 means DefaultAcceptThreshold).
	AcceptThreshold float64

	// Seed drives fresh-weight initialization.
	Seed int64
}

// Info describes the loaded model for the service's metadata endpoint.
type Info struct {
	Loaded      bool    `json:"loaded"`
	Source      string  `json:"source"`
	Checkpoint  string  `json:"checkpoint,omitempty"`
	VocabSource string  `json:"vocab_source,omitempty"`
	Classes     int     `json:"classes"`
	Window      int     `json:"window"`
	Hidden      int     `json:"hidden"`
	Layers      int     `json:"layers"`
	Epoch       int     `json:"epoch,omitempty"`
	ValLoss     float64 `json:"val_loss,omitempty"`
	ValAcc      float64 `json:"val_acc,omitempty"`
}

// Recognizer serves recognition requests over a model loaded exactly once.
// After a successful load the model and vocabulary are read-only, so any
// number of goroutines may call the recognition methods concurrently.
type Recognizer struct {
	opts Options

	mu    sync.Mutex // guards the load attempt
	ready atomic.Bool

	model *model.SignClassifier
	vocab *vocab.Vocabulary
	info  Info
}

// New builds an unloaded recognizer. It performs no I/O; call EnsureLoaded
// to bind the model.
func New(opts Options) *Recognizer {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.AcceptThreshold <= 0 {
		opts.AcceptThreshold = DefaultAcceptThreshold
	}
	return &Recognizer{opts: opts}
}

// EnsureLoaded binds the model and vocabulary if that has not happened yet.
// Concurrent callers race to a single load; everyone observes the same
// fully-initialized state. A failed load is retried on the next call.
func (r *Recognizer) EnsureLoaded() error {
	if r.ready.Load() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready.Load() {
		return nil
	}
	if err := r.load(); err != nil {
		return err
	}
	r.ready.Store(true)
	return nil
}

func (r *Recognizer) load() error {
	if r.opts.CheckpointPath != "" {
		err := r.loadCheckpoint()
		if err == nil {
			return nil
		}
		if r.opts.StrictLoad {
			return err
		}
		log.Printf("[Recognizer] Warning: %v; serving with fresh weights", err)
	}
	return r.loadFresh()
}

func (r *Recognizer) loadCheckpoint() error {
	c, err := model.Read(r.opts.CheckpointPath)
	if err != nil {
		return err
	}
	m, err := model.New(c.Config, r.opts.Seed)
	if err != nil {
		return fmt.Errorf("failed to build model from checkpoint config: %w", err)
	}
	v, err := c.Restore(m)
	if err != nil {
		return err
	}

	r.model = m
	r.vocab = v
	r.info = Info{
		Loaded:      true,
		Source:      "checkpoint",
		Checkpoint:  r.opts.CheckpointPath,
		VocabSource: "checkpoint",
		Classes:     c.Config.Classes,
		Window:      c.Config.Window,
		Hidden:      c.Config.Hidden,
		Layers:      c.Config.Layers,
		Epoch:       c.Epoch,
		ValLoss:     c.ValLoss,
		ValAcc:      c.ValAcc,
	}
	log.Printf("[Recognizer] Loaded checkpoint %s: %d signs, epoch %d, val_acc %.4f",
		r.opts.CheckpointPath, c.Config.Classes, c.Epoch, c.ValAcc)
	return nil
}

func (r *Recognizer) loadFresh() error {
	v, source, err := vocab.Resolve(r.opts.VocabSources)
	if err != nil {
		return fmt.Errorf("failed to resolve vocabulary for fresh weights: %w", err)
	}
	cfg := model.DefaultConfig(v.Len())
	if r.opts.Window > 0 {
		cfg.Window = r.opts.Window
	}
	m, err := model.New(cfg, r.opts.Seed)
	if err != nil {
		return err
	}

	r.model = m
	r.vocab = v
	r.info = Info{
		Loaded:      true,
		Source:      "random",
		VocabSource: source,
		Classes:     cfg.Classes,
		Window:      cfg.Window,
		Hidden:      cfg.Hidden,
		Layers:      cfg.Layers,
	}
	log.Printf("[Recognizer] No trained model; fresh weights over %d signs from %s", v.Len(), source)
	return nil
}

func (r *Recognizer) state() (*model.SignClassifier, *vocab.Vocabulary, error) {
	if !r.ready.Load() {
		return nil, nil, ErrModelNotLoaded
	}
	return r.model, r.vocab, nil
}

// Info reports what is currently loaded. Before a successful load only
// Loaded=false is meaningful.
func (r *Recognizer) Info() Info {
	if !r.ready.Load() {
		return Info{}
	}
	return r.info
}

// Vocabulary returns the bound label set, or nil before loading.
func (r *Recognizer) Vocabulary() *vocab.Vocabulary {
	if !r.ready.Load() {
		return nil
	}
	return r.vocab
}

// Recognize ranks the topK most likely signs for one gesture sequence.
// Frames may arrive out of order; they are sorted by frame index, flattened,
// padded or truncated to the model window, and scored in a single forward
// pass. topK <= 0 selects the configured default and any request larger
// than the vocabulary is clamped to it.
func (r *Recognizer) Recognize(frames []keypoints.Frame, topK int) ([]Prediction, error) {
	m, v, err := r.state()
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = r.opts.TopK
	}
	if topK > v.Len() {
		topK = v.Len()
	}

	rows, err := flattenSorted(frames)
	if err != nil {
		return nil, err
	}
	rows, err = keypoints.Window(rows, m.Config().Window)
	if err != nil {
		return nil, err
	}
	logits, err := m.Infer(rows)
	if err != nil {
		return nil, err
	}
	probs := nn.Softmax(logits)

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	// Stable over ascending indices, so equal confidences keep
	// vocabulary order.
	sort.SliceStable(order, func(a, b int) bool {
		return probs[order[a]] > probs[order[b]]
	})

	preds := make([]Prediction, topK)
	for i := 0; i < topK; i++ {
		label, _ := v.Label(order[i])
		preds[i] = Prediction{Sign: label, Confidence: probs[order[i]]}
	}
	return preds, nil
}

// Accepted reports whether a confidence clears the text-emission gate.
// The comparison is strictly greater than the configured threshold.
func (r *Recognizer) Accepted(confidence float64) bool {
	return accepted(confidence, r.opts.AcceptThreshold)
}

// RecognizeText returns the top sign's label when its confidence clears
// the acceptance gate, and the empty string otherwise.
func (r *Recognizer) RecognizeText(frames []keypoints.Frame) (string, error) {
	preds, err := r.Recognize(frames, 1)
	if err != nil {
		return "", err
	}
	top := preds[0]
	if !r.Accepted(top.Confidence) {
		return "", nil
	}
	return top.Sign, nil
}

// RecognizeStream classifies each segment independently and joins the
// accepted labels with single spaces. Segments that fail the confidence
// gate contribute nothing. There is no cross-segment context.
func (r *Recognizer) RecognizeStream(segments [][]keypoints.Frame) (string, error) {
	var words []string
	for i, frames := range segments {
		text, err := r.RecognizeText(frames)
		if err != nil {
			return "", fmt.Errorf("segment %d: %w", i, err)
		}
		if text != "" {
			words = append(words, text)
		}
	}
	return strings.Join(words, " "), nil
}

// accepted is the confidence gate: strictly greater than the threshold,
// so a confidence of exactly the threshold is rejected.
func accepted(confidence, threshold float64) bool {
	return confidence > threshold
}

func flattenSorted(frames []keypoints.Frame) ([][]float64, error) {
	if len(frames) == 0 {
		return nil, keypoints.ErrEmptySequence
	}
	sorted := append([]keypoints.Frame(nil), frames...)
	keypoints.SortByIndex(sorted)
	return keypoints.FlattenAll(sorted)
}
