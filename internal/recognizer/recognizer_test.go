package recognizer

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sunosaathi/sanket/internal/keypoints"
	"github.com/sunosaathi/sanket/internal/model"
	"github.com/sunosaathi/sanket/internal/vocab"
)

var testSigns = []string{"hello", "thanks", "yes", "no", "sorry"}

// writeTestCheckpoint produces a real checkpoint with production input
// width but a narrow encoder, so tests exercise the full serving path
// quickly.
func writeTestCheckpoint(t *testing.T, window int) string {
	t.Helper()
	cfg := model.Config{
		InputDim: keypoints.FeatureDim,
		Hidden:   4,
		Layers:   1,
		Classes:  len(testSigns),
		Dropout:  0,
		Window:   window,
	}
	m, err := model.New(cfg, 17)
	if err != nil {
		t.Fatalf("model.New returned error: %v", err)
	}
	v, err := vocab.New(testSigns)
	if err != nil {
		t.Fatalf("vocab.New returned error: %v", err)
	}
	c, err := model.Snapshot(m, v, nil, 25, 0.42, 0.87)
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.ckpt")
	if err := c.Write(path); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	return path
}

func loadedRecognizer(t *testing.T) *Recognizer {
	t.Helper()
	r := New(Options{CheckpointPath: writeTestCheckpoint(t, keypoints.DefaultWindow), StrictLoad: true})
	if err := r.EnsureLoaded(); err != nil {
		t.Fatalf("EnsureLoaded returned error: %v", err)
	}
	return r
}

func zeroFrames(n int) []keypoints.Frame {
	frames := make([]keypoints.Frame, n)
	for i := range frames {
		points := make([][]float64, keypoints.TotalPoints)
		for p := range points {
			points[p] = []float64{0, 0, 0}
		}
		frames[i] = keypoints.Frame{Index: i, Points: points}
	}
	return frames
}

func TestRecognizeShapeContract(t *testing.T) {
	r := loadedRecognizer(t)
	frames := zeroFrames(20)

	preds, err := r.Recognize(frames, 3)
	if err != nil {
		t.Fatalf("Recognize returned error: %v", err)
	}
	if len(preds) != 3 {
		t.Fatalf("got %d predictions, want 3", len(preds))
	}

	valid := make(map[string]bool)
	for _, s := range testSigns {
		valid[s] = true
	}
	var sum float64
	for i, p := range preds {
		if !valid[p.Sign] {
			t.Errorf("prediction %d has label %q outside the vocabulary", i, p.Sign)
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			t.Errorf("prediction %d confidence %v outside [0, 1]", i, p.Confidence)
		}
		if i > 0 && preds[i-1].Confidence < p.Confidence {
			t.Errorf("confidences not non-increasing at %d: %v then %v", i, preds[i-1].Confidence, p.Confidence)
		}
		sum += p.Confidence
	}
	if sum > 1+1e-9 {
		t.Errorf("confidence sum %v exceeds 1", sum)
	}
}

func TestRecognizeTopKClamping(t *testing.T) {
	r := loadedRecognizer(t)
	frames := zeroFrames(5)

	testCases := []struct {
		name string
		topK int
		want int
	}{
		{"zero_uses_default", 0, DefaultTopK},
		{"negative_uses_default", -2, DefaultTopK},
		{"one", 1, 1},
		{"exactly_vocab", 5, 5},
		{"beyond_vocab_clamped", 50, 5},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			preds, err := r.Recognize(frames, tc.topK)
			if err != nil {
				t.Fatalf("Recognize returned error: %v", err)
			}
			if len(preds) != tc.want {
				t.Errorf("got %d predictions, want %d", len(preds), tc.want)
			}
		})
	}
}

func TestRecognizeDeterministic(t *testing.T) {
	r := loadedRecognizer(t)
	frames := zeroFrames(12)

	first, err := r.Recognize(frames, 5)
	if err != nil {
		t.Fatalf("Recognize returned error: %v", err)
	}
	second, err := r.Recognize(frames, 5)
	if err != nil {
		t.Fatalf("Recognize returned error: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("prediction %d changed between identical calls: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestRecognizeSortsFramesWithoutMutating(t *testing.T) {
	r := loadedRecognizer(t)

	ordered := zeroFrames(6)
	// Make frames distinguishable so order matters.
	for i := range ordered {
		ordered[i].Points[0][0] = float64(i) / 10
	}
	shuffled := []keypoints.Frame{ordered[4], ordered[1], ordered[5], ordered[0], ordered[3], ordered[2]}
	shuffledIndices := []int{4, 1, 5, 0, 3, 2}

	want, err := r.Recognize(ordered, 5)
	if err != nil {
		t.Fatalf("Recognize returned error: %v", err)
	}
	got, err := r.Recognize(shuffled, 5)
	if err != nil {
		t.Fatalf("Recognize returned error: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("prediction %d differs for shuffled input: %+v vs %+v", i, got[i], want[i])
		}
	}
	for i, frame := range shuffled {
		if frame.Index != shuffledIndices[i] {
			t.Fatal("Recognize reordered the caller's frame slice")
		}
	}
}

func TestRecognizeErrors(t *testing.T) {
	r := loadedRecognizer(t)

	if _, err := r.Recognize(nil, 3); !errors.Is(err, keypoints.ErrEmptySequence) {
		t.Errorf("empty sequence error = %v, want ErrEmptySequence", err)
	}

	bad := zeroFrames(2)
	bad[1].Points = bad[1].Points[:500]
	var shape *keypoints.ShapeError
	if _, err := r.Recognize(bad, 3); !errors.As(err, &shape) {
		t.Errorf("short frame error = %v, want ShapeError", err)
	}
}

func TestRecognizeBeforeLoad(t *testing.T) {
	r := New(Options{})

	if _, err := r.Recognize(zeroFrames(3), 3); !errors.Is(err, ErrModelNotLoaded) {
		t.Errorf("Recognize error = %v, want ErrModelNotLoaded", err)
	}
	if _, err := r.RecognizeText(zeroFrames(3)); !errors.Is(err, ErrModelNotLoaded) {
		t.Errorf("RecognizeText error = %v, want ErrModelNotLoaded", err)
	}
	if _, err := r.RecognizeStream([][]keypoints.Frame{zeroFrames(3)}); !errors.Is(err, ErrModelNotLoaded) {
		t.Errorf("RecognizeStream error = %v, want ErrModelNotLoaded", err)
	}
	if r.Info().Loaded {
		t.Error("Info reports loaded before any load")
	}
	if r.Vocabulary() != nil {
		t.Error("Vocabulary non-nil before any load")
	}
}

func TestAccepted(t *testing.T) {
	testCases := []struct {
		name       string
		confidence float64
		want       bool
	}{
		{"well_below", 0.2, false},
		{"just_below", 0.4999999, false},
		{"exactly_threshold", 0.5, false},
		{"just_above", 0.5000001, true},
		{"well_above", 0.93, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := accepted(tc.confidence, 0.5); got != tc.want {
				t.Errorf("accepted(%v, 0.5) = %v, want %v", tc.confidence, got, tc.want)
			}
		})
	}
}

func TestRecognizeTextMatchesGate(t *testing.T) {
	r := loadedRecognizer(t)
	frames := zeroFrames(10)

	preds, err := r.Recognize(frames, 1)
	if err != nil {
		t.Fatalf("Recognize returned error: %v", err)
	}
	text, err := r.RecognizeText(frames)
	if err != nil {
		t.Fatalf("RecognizeText returned error: %v", err)
	}

	if preds[0].Confidence > DefaultAcceptThreshold {
		if text != preds[0].Sign {
			t.Errorf("text = %q, want top sign %q", text, preds[0].Sign)
		}
	} else if text != "" {
		t.Errorf("text = %q for gated confidence %v, want empty", text, preds[0].Confidence)
	}
}

func TestRecognizeStream(t *testing.T) {
	r := loadedRecognizer(t)

	segment := zeroFrames(8)
	perSegment, err := r.RecognizeText(segment)
	if err != nil {
		t.Fatalf("RecognizeText returned error: %v", err)
	}

	got, err := r.RecognizeStream([][]keypoints.Frame{segment, segment, segment})
	if err != nil {
		t.Fatalf("RecognizeStream returned error: %v", err)
	}
	want := ""
	if perSegment != "" {
		want = perSegment + " " + perSegment + " " + perSegment
	}
	if got != want {
		t.Errorf("stream text = %q, want %q", got, want)
	}

	empty, err := r.RecognizeStream(nil)
	if err != nil {
		t.Fatalf("RecognizeStream returned error: %v", err)
	}
	if empty != "" {
		t.Errorf("stream text for no segments = %q, want empty", empty)
	}

	bad := zeroFrames(2)
	bad[0].Points = nil
	if _, err := r.RecognizeStream([][]keypoints.Frame{segment, bad}); err == nil {
		t.Error("expected error for malformed segment, got nil")
	}
}

func TestEnsureLoadedConcurrent(t *testing.T) {
	var loads atomic.Int32
	r := New(Options{
		Window: 4,
		VocabSources: []vocab.Source{{
			Name: "counting",
			Load: func() (*vocab.Vocabulary, error) {
				loads.Add(1)
				return vocab.New(testSigns)
			},
		}},
	})

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.EnsureLoaded()
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("goroutine %d: EnsureLoaded returned error: %v", i, err)
		}
	}
	if got := loads.Load(); got != 1 {
		t.Errorf("vocabulary loaded %d times, want 1", got)
	}
	if !r.Info().Loaded {
		t.Error("recognizer not loaded after concurrent EnsureLoaded")
	}
}

func TestEnsureLoadedRetriesAfterFailure(t *testing.T) {
	var calls int
	r := New(Options{
		Window: 4,
		VocabSources: []vocab.Source{{
			Name: "flaky",
			Load: func() (*vocab.Vocabulary, error) {
				calls++
				if calls == 1 {
					return nil, errors.New("transient")
				}
				return vocab.New(testSigns)
			},
		}},
	})

	if err := r.EnsureLoaded(); err == nil {
		t.Fatal("first EnsureLoaded succeeded, want failure")
	}
	if err := r.EnsureLoaded(); err != nil {
		t.Fatalf("second EnsureLoaded returned error: %v", err)
	}
	if !r.Info().Loaded {
		t.Error("recognizer not loaded after successful retry")
	}
}

func TestStrictLoad(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.ckpt")

	strict := New(Options{CheckpointPath: missing, StrictLoad: true})
	var ce *model.CheckpointError
	if err := strict.EnsureLoaded(); !errors.As(err, &ce) {
		t.Errorf("strict load error = %v, want CheckpointError", err)
	}

	lax := New(Options{
		CheckpointPath: missing,
		Window:         4,
		VocabSources:   []vocab.Source{vocab.BuiltinSource(len(testSigns))},
	})
	if err := lax.EnsureLoaded(); err != nil {
		t.Fatalf("non-strict load returned error: %v", err)
	}
	info := lax.Info()
	if info.Source != "random" {
		t.Errorf("info.Source = %q, want random", info.Source)
	}
	if info.Window != 4 {
		t.Errorf("info.Window = %d, want the override 4", info.Window)
	}
}

func TestLoadFromCheckpoint(t *testing.T) {
	path := writeTestCheckpoint(t, 16)
	r := New(Options{CheckpointPath: path, StrictLoad: true})
	if err := r.EnsureLoaded(); err != nil {
		t.Fatalf("EnsureLoaded returned error: %v", err)
	}

	info := r.Info()
	if info.Source != "checkpoint" || info.Checkpoint != path {
		t.Errorf("info source = %q/%q, want checkpoint/%s", info.Source, info.Checkpoint, path)
	}
	if info.Classes != len(testSigns) || info.Window != 16 || info.Hidden != 4 {
		t.Errorf("info dims = %+v, want the checkpoint architecture", info)
	}
	if info.Epoch != 25 || info.ValAcc != 0.87 {
		t.Errorf("info metrics = %+v, want epoch 25, val_acc 0.87", info)
	}

	v := r.Vocabulary()
	if v == nil || v.Len() != len(testSigns) {
		t.Fatalf("vocabulary = %v, want %d signs", v, len(testSigns))
	}
	for i, want := range testSigns {
		if got, _ := v.Label(i); got != want {
			t.Errorf("label %d = %q, want %q", i, got, want)
		}
	}
}

func TestConcurrentRecognize(t *testing.T) {
	r := loadedRecognizer(t)
	frames := zeroFrames(10)

	want, err := r.Recognize(frames, 5)
	if err != nil {
		t.Fatalf("Recognize returned error: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 3; n++ {
				got, err := r.Recognize(frames, 5)
				if err != nil {
					t.Errorf("concurrent Recognize returned error: %v", err)
					return
				}
				for i := range want {
					if got[i] != want[i] {
						t.Errorf("concurrent prediction %d = %+v, want %+v", i, got[i], want[i])
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}
