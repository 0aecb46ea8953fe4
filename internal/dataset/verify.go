package dataset

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sunosaathi/sanket/internal/keypoints"
	"github.com/sunosaathi/sanket/internal/vocab"
)

// VerifyReport itemizes the structural problems found in a processed
// dataset, per split.
type VerifyReport struct {
	VocabularySize int
	TrainFiles     int
	ValFiles       int
	TrainErrors    []string
	ValErrors      []string
	TrainCounts    map[string]int
	ValCounts      map[string]int
}

// OK reports whether the dataset is ready for training.
func (r *VerifyReport) OK() bool {
	return len(r.TrainErrors) == 0 && len(r.ValErrors) == 0
}

// sampleFile mirrors the on-disk sample layout without the training
// loader's fail-fast behavior, so every problem in a split can be reported
// at once. Label is a pointer to tell a missing field from an empty one.
type sampleFile struct {
	Label  *string           `json:"sign_label"`
	Frames []keypoints.Frame `json:"frames"`
}

// Verify checks a processed dataset directory: train/ and val/ splits plus
// vocabulary.json. Every sample must parse, carry a vocabulary label, and
// hold at least one frame with the expected keypoint geometry.
func Verify(dataDir string) (*VerifyReport, error) {
	trainDir := filepath.Join(dataDir, "train")
	valDir := filepath.Join(dataDir, "val")
	vocabPath := filepath.Join(dataDir, "vocabulary.json")

	for _, dir := range []string{trainDir, valDir} {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("split directory: %w", err)
		}
	}
	v, err := vocab.LoadFile(vocabPath)
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{VocabularySize: v.Len()}
	report.TrainFiles, report.TrainCounts, report.TrainErrors, err = verifySplit(trainDir, v)
	if err != nil {
		return nil, err
	}
	report.ValFiles, report.ValCounts, report.ValErrors, err = verifySplit(valDir, v)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// verifySplit checks every sample file in one split directory. The returned
// error covers directory access only; per-file problems land in errs.
func verifySplit(dir string, v *vocab.Vocabulary) (files int, counts map[string]int, errs []string, err error) {
	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, "**/*.json")
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to glob split %s: %w", dir, err)
	}
	sort.Strings(matches)

	counts = make(map[string]int)
	for _, name := range matches {
		files++
		data, readErr := fs.ReadFile(fsys, name)
		if readErr != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, readErr))
			continue
		}

		var s sampleFile
		if jsonErr := json.Unmarshal(data, &s); jsonErr != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, jsonErr))
			continue
		}

		if s.Label == nil || *s.Label == "" {
			errs = append(errs, fmt.Sprintf("%s: missing sign_label", name))
			continue
		}
		if _, ok := v.Index(*s.Label); !ok {
			errs = append(errs, fmt.Sprintf("%s: label %q not in vocabulary", name, *s.Label))
		}
		counts[*s.Label]++

		if len(s.Frames) == 0 {
			errs = append(errs, fmt.Sprintf("%s: no frames", name))
			continue
		}
		// Geometry check on the first frame only; a sample with mixed frame
		// shapes still fails at training time, but one probe per file keeps
		// verification fast on large datasets.
		if _, flatErr := s.Frames[0].Flatten(); flatErr != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, flatErr))
		}
	}
	return files, counts, errs, nil
}

// SortedLabels returns a count map's labels in sorted order for stable
// report output.
func SortedLabels(counts map[string]int) []string {
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
