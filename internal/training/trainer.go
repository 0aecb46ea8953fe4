package training

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/sunosaathi/sanket/internal/model"
	"github.com/sunosaathi/sanket/internal/nn"
	"github.com/sunosaathi/sanket/internal/vocab"
)

// TrainConfig are the knobs of one training run. Zero values fall back to
// the service defaults.
type TrainConfig struct {
	Epochs          int
	BatchSize       int
	LearningRate    float64
	LRFactor        float64
	LRPatience      int
	CheckpointEvery int
	Seed            int64
	OutputDir       string
}

// EpochResult is the outcome of one train+validate epoch. Accuracies are
// fractions in [0, 1]; the log lines print percentages.
type EpochResult struct {
	Epoch        int     `json:"epoch"`
	TrainLoss    float64 `json:"train_loss"`
	TrainAcc     float64 `json:"train_acc"`
	ValLoss      float64 `json:"val_loss"`
	ValAcc       float64 `json:"val_acc"`
	LearningRate float64 `json:"learning_rate"`
	DurationMs   int64   `json:"duration_ms"`
}

// Result summarizes a finished run. CheckpointPath is empty when no epoch
// ever improved validation accuracy (nothing was worth saving).
type Result struct {
	Epochs         int           `json:"epochs"`
	BestValAcc     float64       `json:"best_val_acc"`
	BestValLoss    float64       `json:"best_val_loss"`
	BestEpoch      int           `json:"best_epoch"`
	CheckpointPath string        `json:"checkpoint_path"`
	History        []EpochResult `json:"history"`
}

// Trainer runs the epoch loop for one model. It is single-use and not safe
// for concurrent calls; training is an exclusive process.
type Trainer struct {
	model *model.SignClassifier
	vocab *vocab.Vocabulary
	opt   *nn.Adam
	sched *PlateauScheduler
	cfg   TrainConfig
	rng   *rand.Rand

	// Progress, when non-nil, renders per-batch progress for each phase.
	Progress ProgressReporter
}

// NewTrainer binds a model to its vocabulary and training configuration.
// The vocabulary size must match the model's output width.
func NewTrainer(m *model.SignClassifier, v *vocab.Vocabulary, cfg TrainConfig) (*Trainer, error) {
	if v.Len() != m.Config().Classes {
		return nil, &model.VocabMismatchError{ModelClasses: m.Config().Classes, VocabSize: v.Len()}
	}

	if cfg.Epochs <= 0 {
		cfg.Epochs = 50
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.001
	}
	if cfg.LRFactor <= 0 || cfg.LRFactor >= 1 {
		cfg.LRFactor = 0.5
	}
	if cfg.LRPatience <= 0 {
		cfg.LRPatience = 5
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 10
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "trained_models"
	}

	opt := nn.NewAdam(cfg.LearningRate)
	return &Trainer{
		model: m,
		vocab: v,
		opt:   opt,
		sched: NewPlateauScheduler(opt, cfg.LRFactor, cfg.LRPatience),
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Run executes every configured epoch: shuffle + mini-batch gradient steps,
// then a no-update validation pass, per epoch. The plateau scheduler only
// adapts the learning rate; it never stops the run early. onEpoch, when
// non-nil, is called after each epoch with its metrics.
//
// On context cancellation the partial Result accumulated so far is returned
// alongside the context error.
func (t *Trainer) Run(ctx context.Context, train, val *Dataset, onEpoch func(EpochResult)) (*Result, error) {
	if train.Len() == 0 {
		return nil, errors.New("training: empty training dataset")
	}
	if val.Len() == 0 {
		return nil, errors.New("training: empty validation dataset")
	}
	window := t.model.Config().Window
	if train.Window != window || val.Window != window {
		return nil, fmt.Errorf("training: dataset windows (%d, %d) do not match model window %d",
			train.Window, val.Window, window)
	}

	if err := os.MkdirAll(t.cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	bestPath := filepath.Join(t.cfg.OutputDir, "best_model.ckpt")

	log.Printf("[Trainer] Starting training: %d train / %d val samples, %d classes, %d epochs, batch size %d",
		train.Len(), val.Len(), t.vocab.Len(), t.cfg.Epochs, t.cfg.BatchSize)

	res := &Result{}
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		start := time.Now()

		trainLoss, trainAcc, err := t.runEpoch(ctx, train, true,
			fmt.Sprintf("epoch %d/%d train", epoch, t.cfg.Epochs))
		if err != nil {
			return res, err
		}
		valLoss, valAcc, err := t.runEpoch(ctx, val, false,
			fmt.Sprintf("epoch %d/%d val", epoch, t.cfg.Epochs))
		if err != nil {
			return res, err
		}

		t.sched.Step(valLoss)

		er := EpochResult{
			Epoch:        epoch,
			TrainLoss:    trainLoss,
			TrainAcc:     trainAcc,
			ValLoss:      valLoss,
			ValAcc:       valAcc,
			LearningRate: t.opt.LR,
			DurationMs:   time.Since(start).Milliseconds(),
		}
		res.History = append(res.History, er)
		res.Epochs = epoch

		log.Printf("[Trainer] Epoch %d/%d: train_loss=%.4f train_acc=%.2f%% val_loss=%.4f val_acc=%.2f%% lr=%.6f",
			epoch, t.cfg.Epochs, trainLoss, trainAcc*100, valLoss, valAcc*100, t.opt.LR)

		// Best checkpoint only on strict improvement; a tie keeps the
		// earlier weights.
		if valAcc > res.BestValAcc {
			res.BestValAcc = valAcc
			res.BestValLoss = valLoss
			res.BestEpoch = epoch

			if err := t.saveCheckpoint(bestPath, epoch, valLoss, valAcc); err != nil {
				return res, err
			}
			res.CheckpointPath = bestPath
			log.Printf("[Trainer] ✓ Saved best model (val_acc %.2f%%)", valAcc*100)
		}

		// Periodic snapshot regardless of quality, for crash recovery.
		if epoch%t.cfg.CheckpointEvery == 0 {
			path := filepath.Join(t.cfg.OutputDir, fmt.Sprintf("checkpoint_epoch_%d.ckpt", epoch))
			if err := t.saveCheckpoint(path, epoch, valLoss, valAcc); err != nil {
				return res, err
			}
		}

		if onEpoch != nil {
			onEpoch(er)
		}
	}

	log.Printf("[Trainer] Training complete: best val_acc=%.2f%% val_loss=%.4f (epoch %d)",
		res.BestValAcc*100, res.BestValLoss, res.BestEpoch)
	return res, nil
}

func (t *Trainer) saveCheckpoint(path string, epoch int, valLoss, valAcc float64) error {
	c, err := model.Snapshot(t.model, t.vocab, t.opt, epoch, valLoss, valAcc)
	if err != nil {
		return fmt.Errorf("failed to snapshot model: %w", err)
	}
	if err := c.Write(path); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// runEpoch runs one pass over ds. With train set it shuffles, updates
// parameters, and keeps dropout active; otherwise the pass is read-only.
// Loss is the mean of batch losses, accuracy the fraction of correctly
// classified samples.
func (t *Trainer) runEpoch(ctx context.Context, ds *Dataset, train bool, desc string) (float64, float64, error) {
	t.model.SetTraining(train)

	order := make([]int, ds.Len())
	for i := range order {
		order[i] = i
	}
	if train {
		t.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	numBatches := (ds.Len() + t.cfg.BatchSize - 1) / t.cfg.BatchSize
	if t.Progress != nil {
		t.Progress.Start(desc, numBatches)
		defer t.Progress.Finish()
	}

	params := t.model.Params()
	lossSum := 0.0
	correct := 0
	batches := 0

	for begin := 0; begin < len(order); begin += t.cfg.BatchSize {
		select {
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		default:
		}

		end := begin + t.cfg.BatchSize
		if end > len(order) {
			end = len(order)
		}
		xs, labels := t.batch(ds, order[begin:end])

		logits := t.model.Forward(xs)
		loss, dlogits := nn.SoftmaxCrossEntropy(logits, labels)

		if train {
			t.opt.ZeroGrad(params)
			t.model.Backward(dlogits)
			t.opt.Step(params)
		}

		lossSum += loss
		correct += countCorrect(logits, labels)
		batches++

		if t.Progress != nil {
			t.Progress.Increment()
		}
	}

	return lossSum / float64(batches), float64(correct) / float64(ds.Len()), nil
}

// batch assembles the per-timestep matrices the model consumes: xs[t] holds
// row b = sample idx[b]'s feature row at step t.
func (t *Trainer) batch(ds *Dataset, idx []int) ([]*mat.Dense, []int) {
	dim := t.model.Config().InputDim
	xs := make([]*mat.Dense, ds.Window)
	for step := 0; step < ds.Window; step++ {
		m := mat.NewDense(len(idx), dim, nil)
		for b, sample := range idx {
			m.SetRow(b, ds.X[sample][step])
		}
		xs[step] = m
	}

	labels := make([]int, len(idx))
	for b, sample := range idx {
		labels[b] = ds.Y[sample]
	}
	return xs, labels
}

func countCorrect(logits *mat.Dense, labels []int) int {
	rows, cols := logits.Dims()
	correct := 0
	for r := 0; r < rows; r++ {
		best := 0
		for c := 1; c < cols; c++ {
			if logits.At(r, c) > logits.At(r, best) {
				best = c
			}
		}
		if best == labels[r] {
			correct++
		}
	}
	return correct
}
