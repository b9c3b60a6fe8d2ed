// Package track implements sequential template tracking: it chains a
// single-frame matcher across an ordered frame sequence, managing an
// adaptive search window around the previous match and deciding which
// frames' results to report as valid.
package track

import (
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/cwbudde/templatetrack/internal/match"
)

// Result holds the per-frame tracking output. X, Y and D always have one
// entry per frame. X and Y are full-frame top-left coordinates, NaN where
// the frame's match was rejected. D is the matcher's raw score for every
// frame and is never overwritten by the rejection policy.
type Result struct {
	X []float64
	Y []float64
	D []float64
}

// stepState is the loop-carried tracking state: the most recent accepted
// (or held) position and the current search radius.
type stepState struct {
	x, y   int
	radius int
}

// Track locates tmpl in every frame of the sequence. Frame 0 is always
// matched against the full frame; subsequent frames follow the mode
// resolved from cfg. State lives only for the duration of the call.
func Track(frames []*image.NRGBA, tmpl *image.NRGBA, cfg Config) (*Result, error) {
	if err := cfg.validate(frames, tmpl); err != nil {
		return nil, err
	}
	matcher := cfg.Matcher
	if matcher == nil {
		matcher = match.BestMatch
	}

	mode := cfg.Mode()
	n := len(frames)
	res := &Result{
		X: make([]float64, n),
		Y: make([]float64, n),
		D: make([]float64, n),
	}

	slog.Debug("tracking sequence",
		"frames", n,
		"mode", mode.String(),
		"radius", cfg.Radius,
		"threshold", cfg.Threshold,
		"rate", cfg.Rate,
	)

	// Frame 0 establishes the initial position from a full-frame match,
	// regardless of mode.
	pt, d, err := matcher(frames[0], tmpl, cfg.Mask)
	if err != nil {
		return nil, fmt.Errorf("frame 0: %w", err)
	}
	st := stepState{x: pt.X, y: pt.Y, radius: cfg.Radius}
	record(res, cfg, 0, st, d)

	for k := 1; k < n; k++ {
		switch mode {
		case ModeFullFrame:
			pt, d, err = matcher(frames[k], tmpl, cfg.Mask)
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", k, err)
			}
			st.x, st.y = pt.X, pt.Y

		case ModeWindowedFixed:
			x, y, score, err := matchWindow(matcher, frames[k], tmpl, cfg.Mask, st)
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", k, err)
			}
			st.x, st.y, d = x, y, score

		case ModeWindowedAdaptive:
			x, y, score, err := matchWindow(matcher, frames[k], tmpl, cfg.Mask, st)
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", k, err)
			}
			d = score
			if d > cfg.Threshold {
				// Miss: hold the previous position so the next window
				// stays centered somewhere sane, and widen the search.
				st.radius = int(math.Round(float64(st.radius) * cfg.Rate))
			} else {
				st.x, st.y = x, y
				st.radius = cfg.Radius
			}
		}
		record(res, cfg, k, st, d)
	}

	// Final rejection pass: held positions kept the windows centered
	// mid-run, but the output must still mark those frames as misses.
	if cfg.Threshold >= 0 {
		for k := range res.D {
			if res.D[k] > cfg.Threshold {
				res.X[k] = math.NaN()
				res.Y[k] = math.NaN()
			}
		}
	}

	return res, nil
}

// matchWindow runs the matcher inside the clipped search window around the
// previous position and translates the window-local result back to
// full-frame coordinates.
func matchWindow(matcher Matcher, frame, tmpl *image.NRGBA, mask *match.Mask, st stepState) (x, y int, d float64, err error) {
	win := searchWindow(frame, tmpl, st)
	sub := frame.SubImage(win).(*image.NRGBA)

	pt, d, err := matcher(sub, tmpl, mask)
	if err != nil {
		return 0, 0, 0, err
	}

	fb := frame.Bounds()
	return win.Min.X - fb.Min.X + pt.X, win.Min.Y - fb.Min.Y + pt.Y, d, nil
}

// searchWindow computes the search rectangle for the next frame: the
// template footprint at the previous position, padded by the current
// radius on every side and clipped to the frame. The window height and
// width derive from the template's two dimensions independently, so
// non-square templates get correctly shaped windows. Clipping can never
// produce a window smaller than the template as long as the template fits
// the frame.
func searchWindow(frame, tmpl *image.NRGBA, st stepState) image.Rectangle {
	fb := frame.Bounds()
	tw, th := tmpl.Bounds().Dx(), tmpl.Bounds().Dy()

	left := max(st.x-st.radius, 0)
	top := max(st.y-st.radius, 0)
	right := min(st.x+tw+st.radius, fb.Dx())
	bottom := min(st.y+th+st.radius, fb.Dy())

	return image.Rect(fb.Min.X+left, fb.Min.Y+top, fb.Min.X+right, fb.Min.Y+bottom)
}

// record stores the mid-run values for frame k and notifies the observer.
func record(res *Result, cfg Config, k int, st stepState, d float64) {
	res.X[k] = float64(st.x)
	res.Y[k] = float64(st.y)
	res.D[k] = d

	if cfg.Observer != nil {
		cfg.Observer(FrameUpdate{
			Frame:    k,
			X:        st.x,
			Y:        st.y,
			Score:    d,
			Radius:   st.radius,
			Accepted: cfg.Threshold < 0 || d <= cfg.Threshold,
		})
	}
}
