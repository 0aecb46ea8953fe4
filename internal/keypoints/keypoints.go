// Package keypoints defines the skeletal keypoint frame model shared by the
// recognition and training pipelines: frame geometry constants, validation,
// flattening into model feature vectors, and fixed-length windowing.
package keypoints

import (
	"errors"
	"fmt"
	"sort"
)

// Landmark layout produced by the upstream extractor. Every frame carries
// all four body parts; parts that were not detected arrive as all-zero
// points, never as missing entries.
const (
	// PosePoints is the number of body pose landmarks per frame.
	PosePoints = 33
	// HandPoints is the number of landmarks per hand.
	HandPoints = 21
	// FacePoints is the number of face mesh landmarks per frame.
	FacePoints = 468
	// TotalPoints is the full landmark count per frame.
	TotalPoints = PosePoints + 2*HandPoints + FacePoints
	// Coords is the number of coordinates per landmark (x, y, z).
	Coords = 3
	// FeatureDim is the width of one flattened frame vector.
	FeatureDim = TotalPoints * Coords
	// DefaultWindow is the fixed sequence length the model consumes.
	DefaultWindow = 64
)

// Frame is a single captured keypoint frame. Points holds one [x, y, z]
// triple per landmark in pose, left hand, right hand, face order.
// Coordinates are consumed exactly as the extractor produced them; no
// re-centering or rescaling happens anywhere downstream.
//
// Points is deliberately a slice-of-slices rather than fixed-size arrays:
// encoding/json silently truncates or zero-fills fixed arrays, which would
// mask malformed input instead of surfacing a ShapeError.
type Frame struct {
	Index  int         `json:"frame_id"`
	Points [][]float64 `json:"keypoints"`
}

// ShapeError reports a frame whose keypoint geometry does not match the
// 543-point, 3-coordinate layout the model expects.
type ShapeError struct {
	FrameIndex int // frame_id of the offending frame
	Points     int // observed landmark count
	Coords     int // observed coordinate count of the first bad landmark; 0 when the landmark count itself is wrong
}

func (e *ShapeError) Error() string {
	if e.Points != TotalPoints {
		return fmt.Sprintf("frame %d: got %d keypoints, want %d", e.FrameIndex, e.Points, TotalPoints)
	}
	return fmt.Sprintf("frame %d: got %d coordinates per keypoint, want %d", e.FrameIndex, e.Coords, Coords)
}

// ErrEmptySequence is returned when an operation that needs at least one
// frame receives none. An all-padding window would classify as noise, so
// empty input is rejected before it reaches the model.
var ErrEmptySequence = errors.New("keypoints: empty sequence")

// SortByIndex orders frames by ascending frame index, in place. The sort is
// stable: frames sharing an index (duplicated video frames upstream) keep
// their arrival order.
func SortByIndex(frames []Frame) {
	sort.SliceStable(frames, func(i, j int) bool {
		return frames[i].Index < frames[j].Index
	})
}

// Flatten converts a frame to its row-major feature vector:
// [x0, y0, z0, x1, y1, z1, ...] over all 543 landmarks. Returns a
// *ShapeError if the frame does not carry exactly 543 landmarks of 3
// coordinates each.
func (f Frame) Flatten() ([]float64, error) {
	if len(f.Points) != TotalPoints {
		return nil, &ShapeError{FrameIndex: f.Index, Points: len(f.Points)}
	}
	out := make([]float64, 0, FeatureDim)
	for _, p := range f.Points {
		if len(p) != Coords {
			return nil, &ShapeError{FrameIndex: f.Index, Points: TotalPoints, Coords: len(p)}
		}
		out = append(out, p[0], p[1], p[2])
	}
	return out, nil
}

// FlattenAll flattens every frame in order. The first malformed frame
// aborts the whole sequence; partial output is never returned.
func FlattenAll(frames []Frame) ([][]float64, error) {
	rows := make([][]float64, 0, len(frames))
	for _, f := range frames {
		row, err := f.Flatten()
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
