package track

import (
	"fmt"
	"image"

	"github.com/cwbudde/templatetrack/internal/match"
)

// Disabled is the sentinel for the radius and threshold options.
const Disabled = -1

// Mode selects the per-frame step behavior. It is resolved once from the
// radius/threshold combination before the loop starts, never per frame.
type Mode int

const (
	// ModeFullFrame matches every frame against its entire extent.
	ModeFullFrame Mode = iota
	// ModeWindowedFixed searches a fixed-radius window around the previous
	// match. No growth, no rejection.
	ModeWindowedFixed
	// ModeWindowedAdaptive adds the rejection policy: the window grows on
	// poor matches and rejected frames are reported as NaN.
	ModeWindowedAdaptive
)

func (m Mode) String() string {
	switch m {
	case ModeFullFrame:
		return "full-frame"
	case ModeWindowedFixed:
		return "windowed"
	case ModeWindowedAdaptive:
		return "windowed-adaptive"
	default:
		return "unknown"
	}
}

// Matcher is the single-frame primitive consumed by the tracker: given a
// search image, a template and an optional mask, it returns the top-left
// corner of the best placement in the search image's own coordinate space
// and a dissimilarity score (lower = better) on the threshold's scale.
type Matcher func(img, tmpl *image.NRGBA, mask *match.Mask) (image.Point, float64, error)

// FrameUpdate describes one processed frame. X and Y are full-frame
// coordinates as used mid-run, i.e. the held previous position for a
// rejected frame, before the final NaN substitution.
type FrameUpdate struct {
	Frame    int
	X, Y     int
	Score    float64
	Radius   int
	Accepted bool
}

// Config holds the tracking parameters. The zero value is not valid;
// start from DefaultConfig.
type Config struct {
	// Radius is the search half-width around the previous match.
	// Disabled (-1) selects full-frame mode. A radius of 0 is legal but
	// degenerate: the window never outgrows the template footprint,
	// because round(0*rate) stays 0.
	Radius int

	// Threshold is the rejection cutoff on the matcher's score scale.
	// Disabled (-1) turns off rejection entirely.
	Threshold float64

	// Rate is the multiplicative window growth factor applied on each
	// rejection. Only meaningful in windowed-adaptive mode.
	Rate float64

	// Mask optionally restricts which template pixels participate in
	// matching. Must have template dimensions.
	Mask *match.Mask

	// Matcher is the single-frame primitive. Defaults to match.BestMatch.
	Matcher Matcher

	// Observer, when set, is invoked once per processed frame.
	Observer func(FrameUpdate)
}

// DefaultConfig returns the canonical defaults: full-frame mode, no
// rejection, growth rate 1.1.
func DefaultConfig() Config {
	return Config{
		Radius:    Disabled,
		Threshold: Disabled,
		Rate:      1.1,
	}
}

// Mode resolves the operating mode from the flag combination.
func (c Config) Mode() Mode {
	switch {
	case c.Radius < 0:
		return ModeFullFrame
	case c.Threshold < 0:
		return ModeWindowedFixed
	default:
		return ModeWindowedAdaptive
	}
}

// validate checks the sequence, template and configuration before the loop
// starts. The core loop itself has no recoverable error paths.
func (c Config) validate(frames []*image.NRGBA, tmpl *image.NRGBA) error {
	if len(frames) == 0 {
		return fmt.Errorf("empty frame sequence")
	}
	if tmpl == nil {
		return fmt.Errorf("nil template")
	}
	tw, th := tmpl.Bounds().Dx(), tmpl.Bounds().Dy()
	if tw <= 0 || th <= 0 {
		return fmt.Errorf("empty template (%dx%d)", tw, th)
	}

	fw, fh := frames[0].Bounds().Dx(), frames[0].Bounds().Dy()
	for k, f := range frames {
		if f == nil {
			return fmt.Errorf("frame %d is nil", k)
		}
		if f.Bounds().Dx() != fw || f.Bounds().Dy() != fh {
			return fmt.Errorf("frame %d is %dx%d, want %dx%d",
				k, f.Bounds().Dx(), f.Bounds().Dy(), fw, fh)
		}
	}
	if tw > fw || th > fh {
		return fmt.Errorf("template %dx%d larger than frames %dx%d", tw, th, fw, fh)
	}

	if c.Mask != nil {
		if err := c.Mask.Validate(tw, th); err != nil {
			return err
		}
	}
	if c.Mode() == ModeWindowedAdaptive && c.Rate <= 0 {
		return fmt.Errorf("growth rate must be positive, got %g", c.Rate)
	}
	return nil
}
