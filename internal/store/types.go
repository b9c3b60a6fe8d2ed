package store

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// JobConfig holds the configuration of a tracking job (persisted copy).
// Kept here to avoid import cycles with the server package.
type JobConfig struct {
	FramesPath   string  `json:"framesPath"`
	TemplatePath string  `json:"templatePath"`
	MaskPath     string  `json:"maskPath,omitempty"`
	Radius       int     `json:"radius"`
	Threshold    float64 `json:"threshold"`
	Rate         float64 `json:"rate"`
}

// CoordSeq is a coordinate sequence that survives JSON round-trips with
// rejected frames intact: NaN entries are encoded as null, since JSON has
// no NaN literal.
type CoordSeq []float64

// MarshalJSON encodes NaN entries as null.
func (s CoordSeq) MarshalJSON() ([]byte, error) {
	vals := make([]*float64, len(s))
	for i := range s {
		if !math.IsNaN(s[i]) {
			vals[i] = &s[i]
		}
	}
	return json.Marshal(vals)
}

// UnmarshalJSON decodes null entries back to NaN.
func (s *CoordSeq) UnmarshalJSON(data []byte) error {
	var vals []*float64
	if err := json.Unmarshal(data, &vals); err != nil {
		return err
	}
	out := make(CoordSeq, len(vals))
	for i, p := range vals {
		if p == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *p
		}
	}
	*s = out
	return nil
}

// Result is the persisted output of a completed tracking job: the three
// per-frame sequences plus the configuration that produced them.
type Result struct {
	JobID     string    `json:"jobId"`
	X         CoordSeq  `json:"x"`
	Y         CoordSeq  `json:"y"`
	D         []float64 `json:"d"`
	Frames    int       `json:"frames"`
	Timestamp time.Time `json:"timestamp"`
	Config    JobConfig `json:"config"`
}

// ResultInfo contains metadata about a stored result without the
// per-frame sequences. Used for listing results cheaply.
type ResultInfo struct {
	JobID      string    `json:"jobId"`
	Frames     int       `json:"frames"`
	Matched    int       `json:"matched"`
	FramesPath string    `json:"framesPath"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewResult creates a persistable result from tracker output.
func NewResult(jobID string, x, y, d []float64, config JobConfig) *Result {
	return &Result{
		JobID:     jobID,
		X:         CoordSeq(x),
		Y:         CoordSeq(y),
		D:         d,
		Frames:    len(d),
		Timestamp: time.Now(),
		Config:    config,
	}
}

// Matched counts frames with a valid (non-NaN) position.
func (r *Result) Matched() int {
	n := 0
	for i := range r.X {
		if !math.IsNaN(float64(r.X[i])) {
			n++
		}
	}
	return n
}

// ToInfo converts a full Result to ResultInfo (metadata only).
func (r *Result) ToInfo() ResultInfo {
	return ResultInfo{
		JobID:      r.JobID,
		Frames:     r.Frames,
		Matched:    r.Matched(),
		FramesPath: r.Config.FramesPath,
		Timestamp:  r.Timestamp,
	}
}

// Validate checks the result for internal consistency.
func (r *Result) Validate() error {
	if r.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if r.Frames <= 0 {
		return &ValidationError{Field: "Frames", Reason: "must be positive"}
	}
	if len(r.X) != r.Frames || len(r.Y) != r.Frames || len(r.D) != r.Frames {
		return &ValidationError{
			Field: "X/Y/D",
			Reason: fmt.Sprintf("sequence lengths %d/%d/%d do not match frame count %d",
				len(r.X), len(r.Y), len(r.D), r.Frames),
		}
	}
	for i, d := range r.D {
		if math.IsNaN(d) {
			return &ValidationError{Field: "D", Reason: fmt.Sprintf("score %d is NaN", i)}
		}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Config.FramesPath == "" {
		return &ValidationError{Field: "Config.FramesPath", Reason: "cannot be empty"}
	}
	if r.Config.TemplatePath == "" {
		return &ValidationError{Field: "Config.TemplatePath", Reason: "cannot be empty"}
	}
	return nil
}

// ValidationError represents a result validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
