// Package training drives model training: dataset loading, the epoch loop
// with plateau LR scheduling and checkpointing, and a background runner that
// exposes run state to the monitor endpoints and records metrics to the run
// store.
package training

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sunosaathi/sanket/internal/keypoints"
	"github.com/sunosaathi/sanket/internal/vocab"
)

// Sample is one labelled keypoint sequence as stored on disk, one JSON file
// per sample.
type Sample struct {
	Label  string            `json:"sign_label"`
	Frames []keypoints.Frame `json:"frames"`
}

// LoadSamples reads every *.json file under dir (recursively) as a Sample.
// File order is normalized by path so loads are deterministic across
// filesystems.
func LoadSamples(dir string) ([]Sample, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("dataset directory: %w", err)
	}

	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, "**/*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to glob dataset: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no sample files found in %s", dir)
	}
	sort.Strings(matches)

	samples := make([]Sample, 0, len(matches))
	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", name, err)
		}

		var s Sample
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("sample %s: %w", name, err)
		}
		if s.Label == "" {
			return nil, fmt.Errorf("sample %s: missing sign_label", name)
		}
		if len(s.Frames) == 0 {
			return nil, fmt.Errorf("sample %s: no frames", name)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// BuildVocabulary derives a vocabulary from the sample labels: unique,
// sorted. The sort makes the label-to-index mapping a pure function of the
// label set, so regenerating from the same data always yields the same
// vocabulary.
func BuildVocabulary(samples []Sample) (*vocab.Vocabulary, error) {
	seen := make(map[string]bool)
	var labels []string
	for _, s := range samples {
		if !seen[s.Label] {
			seen[s.Label] = true
			labels = append(labels, s.Label)
		}
	}
	sort.Strings(labels)
	return vocab.New(labels)
}

// Dataset holds samples prepared for the model: flattened, windowed feature
// rows and resolved label indices.
type Dataset struct {
	X      [][][]float64 // per sample: window × feature rows
	Y      []int         // per sample: vocabulary index
	Window int
}

// NewDataset flattens and windows every sample once up front and resolves
// its label against v. A label absent from v is an error; silently mapping
// strays to index zero would poison the classifier.
func NewDataset(samples []Sample, v *vocab.Vocabulary, window int) (*Dataset, error) {
	ds := &Dataset{
		X:      make([][][]float64, 0, len(samples)),
		Y:      make([]int, 0, len(samples)),
		Window: window,
	}
	for i, s := range samples {
		idx, ok := v.Index(s.Label)
		if !ok {
			return nil, fmt.Errorf("sample %d: label %q not in vocabulary", i, s.Label)
		}

		frames := append([]keypoints.Frame(nil), s.Frames...)
		keypoints.SortByIndex(frames)
		rows, err := keypoints.FlattenAll(frames)
		if err != nil {
			return nil, fmt.Errorf("sample %d (%s): %w", i, s.Label, err)
		}
		windowed, err := keypoints.Window(rows, window)
		if err != nil {
			return nil, fmt.Errorf("sample %d (%s): %w", i, s.Label, err)
		}

		ds.X = append(ds.X, windowed)
		ds.Y = append(ds.Y, idx)
	}
	return ds, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Y)
}
