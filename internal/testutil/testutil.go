// Package testutil provides shared test fixtures for keypoint data.
//
// Building a structurally valid 543-landmark frame takes enough code that
// test packages kept growing their own copies; the builders live here once.
package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sunosaathi/sanket/internal/keypoints"
	"github.com/sunosaathi/sanket/internal/training"
)

// ZeroFrame returns a structurally valid frame with every landmark at the
// origin.
func ZeroFrame(index int) keypoints.Frame {
	return ConstFrame(index, 0, 0, 0)
}

// ConstFrame returns a structurally valid frame with every landmark at
// (x, y, z).
func ConstFrame(index int, x, y, z float64) keypoints.Frame {
	points := make([][]float64, keypoints.TotalPoints)
	for i := range points {
		points[i] = []float64{x, y, z}
	}
	return keypoints.Frame{Index: index, Points: points}
}

// ZeroFrames returns n consecutive zero frames indexed from 0.
func ZeroFrames(n int) []keypoints.Frame {
	frames := make([]keypoints.Frame, n)
	for i := range frames {
		frames[i] = ZeroFrame(i)
	}
	return frames
}

// SampleLabels are the labels WriteSampleDataset alternates between.
var SampleLabels = []string{"hello", "thanks"}

// WriteSampleDataset writes n two-frame samples under dir, alternating
// between SampleLabels, in the JSON layout the training loader reads.
func WriteSampleDataset(t *testing.T, dir string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		s := training.Sample{
			Label:  SampleLabels[i%len(SampleLabels)],
			Frames: ZeroFrames(2),
		}
		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("failed to marshal sample: %v", err)
		}
		name := fmt.Sprintf("sample_%s_%d.json", s.Label, i)
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			t.Fatalf("failed to write sample: %v", err)
		}
	}
}
