// Package dataset provides the offline dataset tooling: a synthetic sample
// generator for pipeline testing, a structural verifier for processed
// datasets, and a video manifest builder for the capture frontend.
package dataset

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/sunosaathi/sanket/internal/keypoints"
	"github.com/sunosaathi/sanket/internal/training"
	"github.com/sunosaathi/sanket/internal/vocab"
)

// Synthetic sequence length bounds, inclusive.
const (
	minSeqLen = 20
	maxSeqLen = 60
)

// GenerateOptions configures synthetic dataset generation.
type GenerateOptions struct {
	OutputDir      string
	NumSigns       int     // number of distinct sign labels
	SamplesPerSign int     // samples generated per label
	TrainSplit     float64 // fraction of each label's samples routed to train/
	Seed           int64   // 0 seeds from the generator default
}

// GenerateSummary reports what a generation run produced.
type GenerateSummary struct {
	Vocabulary   []string
	TrainSamples int
	ValSamples   int
	TrainDir     string
	ValDir       string
	VocabPath    string
}

func (o *GenerateOptions) withDefaults() GenerateOptions {
	opts := *o
	if opts.NumSigns <= 0 {
		opts.NumSigns = 10
	}
	if opts.SamplesPerSign <= 0 {
		opts.SamplesPerSign = 50
	}
	if opts.TrainSplit <= 0 || opts.TrainSplit > 1 {
		opts.TrainSplit = 0.8
	}
	if opts.Seed == 0 {
		opts.Seed = 1
	}
	return opts
}

// Generate writes a synthetic keypoint dataset under OutputDir: train/ and
// val/ sample files plus vocabulary.json. Sequences are smoothed random
// walks so consecutive frames stay correlated the way real capture does.
func Generate(options GenerateOptions) (*GenerateSummary, error) {
	opts := options.withDefaults()
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}

	trainDir := filepath.Join(opts.OutputDir, "train")
	valDir := filepath.Join(opts.OutputDir, "val")
	for _, dir := range []string{trainDir, valDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output dir: %w", err)
		}
	}

	labels := make([]string, opts.NumSigns)
	for i := range labels {
		labels[i] = fmt.Sprintf("sign_%03d", i)
	}
	v, err := vocab.New(labels)
	if err != nil {
		return nil, err
	}
	vocabPath := filepath.Join(opts.OutputDir, "vocabulary.json")
	if err := v.SaveFile(vocabPath); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	summary := &GenerateSummary{
		Vocabulary: labels,
		TrainDir:   trainDir,
		ValDir:     valDir,
		VocabPath:  vocabPath,
	}

	// The first TrainSplit fraction of each label's samples goes to train/,
	// the remainder to val/, so every label appears in both splits.
	trainPerSign := int(float64(opts.SamplesPerSign) * opts.TrainSplit)
	for _, label := range labels {
		for sampleIdx := 0; sampleIdx < opts.SamplesPerSign; sampleIdx++ {
			sample := training.Sample{
				Label:  label,
				Frames: syntheticSequence(rng),
			}

			dir := valDir
			if sampleIdx < trainPerSign {
				dir = trainDir
				summary.TrainSamples++
			} else {
				summary.ValSamples++
			}

			name := fmt.Sprintf("%s_%03d.json", label, sampleIdx)
			if err := writeSampleFile(filepath.Join(dir, name), sample); err != nil {
				return nil, err
			}
		}
	}

	return summary, nil
}

// syntheticSequence builds one smoothed random-walk keypoint sequence of
// random length. Each frame blends 70% of the previous frame with 30% fresh
// noise.
func syntheticSequence(rng *rand.Rand) []keypoints.Frame {
	seqLen := minSeqLen + rng.Intn(maxSeqLen-minSeqLen+1)
	frames := make([]keypoints.Frame, 0, seqLen)

	var prev [][]float64
	for frameID := 0; frameID < seqLen; frameID++ {
		points := make([][]float64, keypoints.TotalPoints)
		for p := range points {
			coords := make([]float64, keypoints.Coords)
			for c := range coords {
				fresh := rng.Float64()
				if prev != nil {
					coords[c] = 0.7*prev[p][c] + 0.3*fresh
				} else {
					coords[c] = fresh
				}
			}
			points[p] = coords
		}
		prev = points
		frames = append(frames, keypoints.Frame{Index: frameID, Points: points})
	}
	return frames
}

func writeSampleFile(path string, sample training.Sample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to encode sample: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write sample %s: %w", path, err)
	}
	return nil
}
