package track

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary condenses a tracking result into the figures worth reporting:
// how many frames produced a valid position and the spread of the raw
// scores. D never contains NaN, so the score statistics cover all frames.
type Summary struct {
	Frames    int
	Matched   int
	MinScore  float64
	MeanScore float64
	MaxScore  float64
}

// Matched reports whether frame k has a valid position in the final output.
func (r *Result) Matched(k int) bool {
	return !math.IsNaN(r.X[k]) && !math.IsNaN(r.Y[k])
}

// Summary computes summary statistics over the result.
func (r *Result) Summary() Summary {
	s := Summary{Frames: len(r.D)}
	if s.Frames == 0 {
		return s
	}
	for k := range r.X {
		if r.Matched(k) {
			s.Matched++
		}
	}
	s.MinScore = floats.Min(r.D)
	s.MaxScore = floats.Max(r.D)
	s.MeanScore = stat.Mean(r.D, nil)
	return s
}
