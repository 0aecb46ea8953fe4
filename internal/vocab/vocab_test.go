package vocab

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewRejectsEmpty(t *testing.T) {
	for _, labels := range [][]string{nil, {}} {
		if _, err := New(labels); !errors.Is(err, ErrEmpty) {
			t.Errorf("New(%v) error = %v, want ErrEmpty", labels, err)
		}
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New([]string{"hello", "yes", "hello"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var de *DuplicateLabelError
	if !errors.As(err, &de) {
		t.Fatalf("error type = %T, want *DuplicateLabelError", err)
	}
	if de.Label != "hello" {
		t.Errorf("Label = %q, want %q", de.Label, "hello")
	}
}

func TestVocabularyLookups(t *testing.T) {
	v, err := New([]string{"hello", "thanks", "yes"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if v.Len() != 3 {
		t.Errorf("Len() = %d, want 3", v.Len())
	}

	if i, ok := v.Index("thanks"); !ok || i != 1 {
		t.Errorf("Index(thanks) = %d, %v; want 1, true", i, ok)
	}
	if _, ok := v.Index("missing"); ok {
		t.Error("Index(missing) ok = true, want false")
	}

	if l, ok := v.Label(2); !ok || l != "yes" {
		t.Errorf("Label(2) = %q, %v; want %q, true", l, ok, "yes")
	}
	for _, i := range []int{-1, 3} {
		if _, ok := v.Label(i); ok {
			t.Errorf("Label(%d) ok = true, want false", i)
		}
	}
}

func TestLabelsReturnsCopy(t *testing.T) {
	v, err := New([]string{"a", "b"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	labels := v.Labels()
	labels[0] = "mutated"
	if l, _ := v.Label(0); l != "a" {
		t.Errorf("Label(0) = %q after caller mutation, want %q", l, "a")
	}
}

func TestEqual(t *testing.T) {
	a, _ := New([]string{"x", "y"})
	b, _ := New([]string{"x", "y"})
	c, _ := New([]string{"y", "x"})
	d, _ := New([]string{"x"})

	if !a.Equal(b) {
		t.Error("identical vocabularies compare unequal")
	}
	if a.Equal(c) {
		t.Error("reordered vocabulary compares equal; order is significant")
	}
	if a.Equal(d) {
		t.Error("shorter vocabulary compares equal")
	}
	if a.Equal(nil) {
		t.Error("nil comparison = true, want false")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	labels := []string{"hello", "thank you", "see you", "one", "two"}
	v, err := New(labels)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "vocabulary.json")
	if err := v.SaveFile(path); err != nil {
		t.Fatalf("SaveFile returned error: %v", err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}
	if diff := cmp.Diff(labels, loaded.Labels()); diff != "" {
		t.Errorf("round-trip label mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing_file", func(t *testing.T) {
		if _, err := LoadFile(filepath.Join(dir, "nope.json")); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("malformed_json", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFile(path); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("duplicate_labels", func(t *testing.T) {
		path := filepath.Join(dir, "dup.json")
		if err := os.WriteFile(path, []byte(`["a", "b", "a"]`), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := LoadFile(path)
		var de *DuplicateLabelError
		if !errors.As(err, &de) {
			t.Errorf("error = %v, want *DuplicateLabelError", err)
		}
	})

	t.Run("empty_list", func(t *testing.T) {
		path := filepath.Join(dir, "empty.json")
		if err := os.WriteFile(path, []byte(`[]`), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFile(path); !errors.Is(err, ErrEmpty) {
			t.Errorf("error = %v, want ErrEmpty", err)
		}
	})
}

func TestBuiltin(t *testing.T) {
	testCases := []struct {
		name    string
		n       int
		wantLen int
	}{
		{"first_five", 5, 5},
		{"zero_means_all", 0, len(referenceSigns)},
		{"negative_means_all", -1, len(referenceSigns)},
		{"over_list_length", 1000, len(referenceSigns)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := Builtin(tc.n)
			if v.Len() != tc.wantLen {
				t.Errorf("Builtin(%d).Len() = %d, want %d", tc.n, v.Len(), tc.wantLen)
			}
		})
	}

	v := Builtin(3)
	if l, _ := v.Label(0); l != "hello" {
		t.Errorf("Builtin first label = %q, want %q", l, "hello")
	}
}

func TestBuiltinListIsValid(t *testing.T) {
	if len(referenceSigns) > builtinCap {
		t.Errorf("reference list has %d signs, cap is %d", len(referenceSigns), builtinCap)
	}
	seen := make(map[string]bool)
	for _, s := range referenceSigns {
		if seen[s] {
			t.Errorf("duplicate reference sign %q", s)
		}
		seen[s] = true
	}
}
