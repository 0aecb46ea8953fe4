package model

import "fmt"

// VocabMismatchError reports a vocabulary whose size does not match the
// model's output layer. Truncating or padding either side would silently
// relabel predictions, so binding fails instead.
type VocabMismatchError struct {
	ModelClasses int
	VocabSize    int
}

func (e *VocabMismatchError) Error() string {
	return fmt.Sprintf("model expects %d classes but vocabulary has %d labels", e.ModelClasses, e.VocabSize)
}

// CheckpointError wraps a failure to read, decode, or validate a checkpoint
// file. Callers decide whether to fail hard or fall back to fresh weights.
type CheckpointError struct {
	Path string
	Err  error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s: %v", e.Path, e.Err)
}

func (e *CheckpointError) Unwrap() error {
	return e.Err
}
