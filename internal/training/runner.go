package training

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sunosaathi/sanket/internal/model"
	"github.com/sunosaathi/sanket/internal/runstore"
	"github.com/sunosaathi/sanket/internal/vocab"
)

// RunStatus represents the current state of a training run
type RunStatus string

const (
	RunStatusIdle     RunStatus = "idle"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusError    RunStatus = "error"
)

// RunRequest defines the parameters for starting a training run.
type RunRequest struct {
	TrainDir  string `json:"train_dir"`
	ValDir    string `json:"val_dir"`
	OutputDir string `json:"output_dir,omitempty"`

	// VocabPath, when set, names the vocabulary file to load; if the file
	// does not exist the vocabulary is built from the training labels and
	// written there.
	VocabPath string `json:"vocab_path,omitempty"`

	Epochs       int     `json:"epochs,omitempty"`
	BatchSize    int     `json:"batch_size,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty"`
	Seed         int64   `json:"seed,omitempty"`

	// Model architecture overrides; zero values use the model defaults.
	Window  int     `json:"window,omitempty"`
	Hidden  int     `json:"hidden,omitempty"`
	Layers  int     `json:"layers,omitempty"`
	Dropout float64 `json:"dropout,omitempty"`
}

// RunState holds the current state and per-epoch history of a training run.
type RunState struct {
	Status          RunStatus     `json:"status"`
	RunID           string        `json:"run_id,omitempty"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	TotalEpochs     int           `json:"total_epochs"`
	CompletedEpochs int           `json:"completed_epochs"`
	CurrentEpoch    *EpochResult  `json:"current_epoch,omitempty"`
	History         []EpochResult `json:"history"`
	BestValAcc      float64       `json:"best_val_acc"`
	BestEpoch       int           `json:"best_epoch"`
	CheckpointPath  string        `json:"checkpoint_path,omitempty"`
	Error           string        `json:"error,omitempty"`
	Request         *RunRequest   `json:"request,omitempty"`
}

// maxAttentionRows bounds the attention snapshot kept for diagnostics.
const maxAttentionRows = 8

// Runner orchestrates training runs: one at a time, in the background, with
// state readable while the run progresses. A non-nil store receives the run
// row and per-epoch metrics.
type Runner struct {
	store    *runstore.Store
	progress ProgressReporter

	mu     sync.RWMutex
	state  RunState
	attn   [][]float64
	cancel context.CancelFunc
}

// NewRunner creates a training runner. store may be nil to skip persistence.
func NewRunner(store *runstore.Store) *Runner {
	return &Runner{
		store: store,
		state: RunState{Status: RunStatusIdle},
	}
}

// SetProgress installs a progress reporter for subsequent runs.
func (r *Runner) SetProgress(p ProgressReporter) {
	r.progress = p
}

// GetRunState returns a copy of the current run state.
func (r *Runner) GetRunState() RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	// Return a copy to avoid race conditions
	state := r.state
	history := make([]EpochResult, len(r.state.History))
	copy(history, r.state.History)
	state.History = history
	return state
}

// History returns the per-epoch metrics recorded so far.
func (r *Runner) History() []EpochResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	history := make([]EpochResult, len(r.state.History))
	copy(history, r.state.History)
	return history
}

// AttentionSnapshot returns the attention weights from the latest completed
// epoch's final validation batch, one row per sequence, or nil before the
// first epoch finishes.
func (r *Runner) AttentionSnapshot() [][]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.attn == nil {
		return nil
	}
	out := make([][]float64, len(r.attn))
	for i, row := range r.attn {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func (r *Runner) setAttention(rows, cols int, at func(i, j int) float64) {
	if rows > maxAttentionRows {
		rows = maxAttentionRows
	}
	snap := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		snap[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			snap[i][j] = at(i, j)
		}
	}
	r.mu.Lock()
	r.attn = snap
	r.mu.Unlock()
}

// Start begins a training run in the background. It validates the request,
// transitions the state to running, and returns immediately; progress is
// observable through GetRunState.
func (r *Runner) Start(ctx context.Context, req RunRequest) error {
	if req.TrainDir == "" {
		return fmt.Errorf("train_dir is required")
	}
	if req.ValDir == "" {
		return fmt.Errorf("val_dir is required")
	}
	if req.OutputDir == "" {
		req.OutputDir = "trained_models"
	}
	if req.Epochs <= 0 {
		req.Epochs = 50
	}
	if req.BatchSize <= 0 {
		req.BatchSize = 32
	}
	if req.LearningRate <= 0 {
		req.LearningRate = 0.001
	}

	r.mu.Lock()
	if r.state.Status == RunStatusRunning {
		r.mu.Unlock()
		return fmt.Errorf("training already in progress")
	}

	now := time.Now()
	r.state = RunState{
		Status:      RunStatusRunning,
		StartedAt:   &now,
		TotalEpochs: req.Epochs,
		History:     make([]EpochResult, 0, req.Epochs),
		Request:     &req,
	}
	r.attn = nil

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	// Run training in background
	go r.run(runCtx, req)

	return nil
}

// Stop cancels the in-flight run, if any.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Runner) setError(err error) {
	log.Printf("[TrainRunner] Run failed: %v", err)
	r.mu.Lock()
	r.state.Status = RunStatusError
	r.state.Error = err.Error()
	now := time.Now()
	r.state.CompletedAt = &now
	r.mu.Unlock()
}

// run executes the training run in a background goroutine.
func (r *Runner) run(ctx context.Context, req RunRequest) {
	trainSamples, valSamples, v, err := r.loadData(req)
	if err != nil {
		r.setError(err)
		return
	}

	cfg := model.DefaultConfig(v.Len())
	if req.Window > 0 {
		cfg.Window = req.Window
	}
	if req.Hidden > 0 {
		cfg.Hidden = req.Hidden
	}
	if req.Layers > 0 {
		cfg.Layers = req.Layers
	}
	if req.Dropout > 0 {
		cfg.Dropout = req.Dropout
	}

	trainSet, err := NewDataset(trainSamples, v, cfg.Window)
	if err != nil {
		r.setError(fmt.Errorf("training dataset: %w", err))
		return
	}
	valSet, err := NewDataset(valSamples, v, cfg.Window)
	if err != nil {
		r.setError(fmt.Errorf("validation dataset: %w", err))
		return
	}

	m, err := model.New(cfg, req.Seed)
	if err != nil {
		r.setError(fmt.Errorf("failed to build model: %w", err))
		return
	}

	trainer, err := NewTrainer(m, v, TrainConfig{
		Epochs:       req.Epochs,
		BatchSize:    req.BatchSize,
		LearningRate: req.LearningRate,
		Seed:         req.Seed,
		OutputDir:    req.OutputDir,
	})
	if err != nil {
		r.setError(err)
		return
	}
	trainer.Progress = r.progress

	// Record the run row before the first epoch so the monitor can surface
	// it immediately.
	var runID string
	if r.store != nil {
		row := &runstore.TrainingRun{
			Epochs:       req.Epochs,
			BatchSize:    req.BatchSize,
			LearningRate: req.LearningRate,
			VocabSize:    v.Len(),
			TrainSamples: trainSet.Len(),
			ValSamples:   valSet.Len(),
		}
		if err := r.store.CreateTrainingRun(row); err != nil {
			r.setError(fmt.Errorf("failed to record training run: %w", err))
			return
		}
		runID = row.ID
		r.mu.Lock()
		r.state.RunID = runID
		r.mu.Unlock()
	}

	res, err := trainer.Run(ctx, trainSet, valSet, func(er EpochResult) {
		r.mu.Lock()
		r.state.History = append(r.state.History, er)
		r.state.CompletedEpochs = er.Epoch
		r.state.CurrentEpoch = &er
		r.mu.Unlock()

		// The epoch's last forward pass was a validation batch; its
		// attention weights are still on the model.
		if w := m.AttentionWeights(); w != nil {
			rows, cols := w.Dims()
			r.setAttention(rows, cols, w.At)
		}

		if r.store != nil {
			metrics := runstore.EpochMetrics{
				RunID:        runID,
				Epoch:        er.Epoch,
				TrainLoss:    er.TrainLoss,
				TrainAcc:     er.TrainAcc,
				ValLoss:      er.ValLoss,
				ValAcc:       er.ValAcc,
				LearningRate: er.LearningRate,
				DurationMs:   er.DurationMs,
			}
			if err := r.store.RecordEpoch(metrics); err != nil {
				log.Printf("[TrainRunner] Warning: failed to record epoch %d: %v", er.Epoch, err)
			}
		}
	})
	if err != nil {
		if r.store != nil && runID != "" {
			if ferr := r.store.FailTrainingRun(runID, err.Error()); ferr != nil {
				log.Printf("[TrainRunner] Warning: failed to mark run failed: %v", ferr)
			}
		}
		r.setError(err)
		return
	}

	if r.store != nil && runID != "" {
		if err := r.store.CompleteTrainingRun(runID, res.BestValAcc, res.BestValLoss, res.CheckpointPath); err != nil {
			log.Printf("[TrainRunner] Warning: failed to mark run complete: %v", err)
		}
	}

	r.mu.Lock()
	r.state.Status = RunStatusComplete
	r.state.BestValAcc = res.BestValAcc
	r.state.BestEpoch = res.BestEpoch
	r.state.CheckpointPath = res.CheckpointPath
	now := time.Now()
	r.state.CompletedAt = &now
	r.mu.Unlock()
	log.Printf("[TrainRunner] Run complete: %d epochs, best val_acc=%.2f%%", res.Epochs, res.BestValAcc*100)
}

// loadData loads both dataset splits and resolves the vocabulary: from
// VocabPath when the file exists, otherwise built from the training labels
// (and saved to VocabPath when one was named).
func (r *Runner) loadData(req RunRequest) ([]Sample, []Sample, *vocab.Vocabulary, error) {
	trainSamples, err := LoadSamples(req.TrainDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("train data: %w", err)
	}
	valSamples, err := LoadSamples(req.ValDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("val data: %w", err)
	}

	var v *vocab.Vocabulary
	if req.VocabPath != "" {
		if _, err := os.Stat(req.VocabPath); err == nil {
			v, err = vocab.LoadFile(req.VocabPath)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("vocabulary: %w", err)
			}
			log.Printf("[TrainRunner] Loaded vocabulary: %d signs from %s", v.Len(), req.VocabPath)
		}
	}
	if v == nil {
		v, err = BuildVocabulary(trainSamples)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("vocabulary: %w", err)
		}
		log.Printf("[TrainRunner] Built vocabulary: %d signs from training labels", v.Len())

		savePath := req.VocabPath
		if savePath == "" {
			savePath = filepath.Join(req.OutputDir, "vocabulary.json")
			if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
				return nil, nil, nil, fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		if err := v.SaveFile(savePath); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to save vocabulary: %w", err)
		}
	}

	return trainSamples, valSamples, v, nil
}
