// Package vocab manages the closed, ordered sign vocabulary a trained model
// predicts over, plus the resolver that locates one at startup.
//
// Label order is load-bearing: position i in the vocabulary is class index i
// in the model's output layer. A vocabulary must therefore never be
// re-sorted, deduplicated, or truncated once a model has been trained
// against it.
package vocab

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrEmpty is returned when constructing or loading a vocabulary with no
// labels.
var ErrEmpty = errors.New("vocab: empty vocabulary")

// DuplicateLabelError reports a label that appears more than once in a
// vocabulary definition.
type DuplicateLabelError struct {
	Label string
}

func (e *DuplicateLabelError) Error() string {
	return fmt.Sprintf("vocab: duplicate label %q", e.Label)
}

// Vocabulary is an immutable ordered set of sign labels.
type Vocabulary struct {
	labels []string
	index  map[string]int
}

// New builds a vocabulary from an ordered label list. The list must be
// non-empty and duplicate-free; the input slice is copied.
func New(labels []string) (*Vocabulary, error) {
	if len(labels) == 0 {
		return nil, ErrEmpty
	}
	v := &Vocabulary{
		labels: make([]string, len(labels)),
		index:  make(map[string]int, len(labels)),
	}
	for i, label := range labels {
		if _, seen := v.index[label]; seen {
			return nil, &DuplicateLabelError{Label: label}
		}
		v.labels[i] = label
		v.index[label] = i
	}
	copy(v.labels, labels)
	return v, nil
}

// Len returns the number of labels.
func (v *Vocabulary) Len() int {
	return len(v.labels)
}

// Label returns the label at class index i.
func (v *Vocabulary) Label(i int) (string, bool) {
	if i < 0 || i >= len(v.labels) {
		return "", false
	}
	return v.labels[i], true
}

// Index returns the class index for a label.
func (v *Vocabulary) Index(label string) (int, bool) {
	i, ok := v.index[label]
	return i, ok
}

// Labels returns a copy of the ordered label list.
func (v *Vocabulary) Labels() []string {
	out := make([]string, len(v.labels))
	copy(out, v.labels)
	return out
}

// Equal reports whether two vocabularies carry the same labels in the same
// order.
func (v *Vocabulary) Equal(o *Vocabulary) bool {
	if v == nil || o == nil {
		return v == o
	}
	if len(v.labels) != len(o.labels) {
		return false
	}
	for i := range v.labels {
		if v.labels[i] != o.labels[i] {
			return false
		}
	}
	return true
}

// LoadFile reads a vocabulary from a JSON file holding an ordered array of
// label strings.
func LoadFile(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary file: %w", err)
	}
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary file %s: %w", path, err)
	}
	v, err := New(labels)
	if err != nil {
		return nil, fmt.Errorf("invalid vocabulary in %s: %w", path, err)
	}
	return v, nil
}

// SaveFile writes the vocabulary as an indented JSON array, the same format
// LoadFile reads and the dataset tooling emits.
func (v *Vocabulary) SaveFile(path string) error {
	data, err := json.MarshalIndent(v.labels, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode vocabulary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write vocabulary file: %w", err)
	}
	return nil
}
