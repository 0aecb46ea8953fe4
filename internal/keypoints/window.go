package keypoints

// Window forces a flattened sequence to exactly size rows. Longer sequences
// keep their first size rows (the earliest motion carries the sign), shorter
// ones are right-padded with zero rows, and a sequence already at size is
// returned as-is. Returns ErrEmptySequence for zero rows: a window of pure
// padding must never reach the model.
func Window(rows [][]float64, size int) ([][]float64, error) {
	if len(rows) == 0 {
		return nil, ErrEmptySequence
	}
	if len(rows) >= size {
		return rows[:size], nil
	}
	width := len(rows[0])
	out := make([][]float64, size)
	copy(out, rows)
	for i := len(rows); i < size; i++ {
		out[i] = make([]float64, width)
	}
	return out, nil
}
