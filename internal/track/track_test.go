package track

import (
	"image"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/cwbudde/templatetrack/internal/match"
)

// step scripts one matcher invocation: the full-frame position the matcher
// should report and the score it should return.
type step struct {
	pt    image.Point
	score float64
}

// scriptMatcher returns a Matcher that replays the given steps in order,
// translating each scripted full-frame position into the coordinate space
// of whatever image it is handed. When windows is non-nil, every searched
// image's bounds are appended to it.
func scriptMatcher(t *testing.T, steps []step, windows *[]image.Rectangle) Matcher {
	t.Helper()
	i := 0
	return func(img, tmpl *image.NRGBA, mask *match.Mask) (image.Point, float64, error) {
		if i >= len(steps) {
			t.Fatalf("matcher called %d times, scripted for %d", i+1, len(steps))
		}
		s := steps[i]
		i++
		b := img.Bounds()
		if windows != nil {
			*windows = append(*windows, b)
		}
		return image.Point{X: s.pt.X - b.Min.X, Y: s.pt.Y - b.Min.Y}, s.score, nil
	}
}

func blankFrames(n, w, h int) []*image.NRGBA {
	frames := make([]*image.NRGBA, n)
	for i := range frames {
		frames[i] = image.NewNRGBA(image.Rect(0, 0, w, h))
	}
	return frames
}

func blankTemplate(w, h int) *image.NRGBA {
	return image.NewNRGBA(image.Rect(0, 0, w, h))
}

var nanEq = cmpopts.EquateNaNs()

func TestTrack_FullFrame(t *testing.T) {
	frames := blankFrames(3, 32, 24)
	tmpl := blankTemplate(4, 4)

	var windows []image.Rectangle
	cfg := DefaultConfig()
	cfg.Matcher = scriptMatcher(t, []step{
		{image.Pt(1, 2), 0.10},
		{image.Pt(5, 6), 0.30},
		{image.Pt(9, 3), 0.05},
	}, &windows)

	res, err := Track(frames, tmpl, cfg)
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	want := &Result{
		X: []float64{1, 5, 9},
		Y: []float64{2, 6, 3},
		D: []float64{0.10, 0.30, 0.05},
	}
	if diff := cmp.Diff(want, res, nanEq); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	// Full-frame mode searches the entire frame every time.
	full := image.Rect(0, 0, 32, 24)
	for k, win := range windows {
		if win != full {
			t.Errorf("frame %d searched %v, want %v", k, win, full)
		}
	}
}

func TestTrack_WindowedFixed(t *testing.T) {
	frames := blankFrames(3, 32, 24)
	tmpl := blankTemplate(4, 4)

	var windows []image.Rectangle
	cfg := DefaultConfig()
	cfg.Radius = 3
	cfg.Matcher = scriptMatcher(t, []step{
		{image.Pt(10, 8), 0.1},
		{image.Pt(12, 9), 0.9}, // poor score, but fixed mode never rejects
		{image.Pt(13, 10), 0.2},
	}, &windows)

	res, err := Track(frames, tmpl, cfg)
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	want := &Result{
		X: []float64{10, 12, 13},
		Y: []float64{8, 9, 10},
		D: []float64{0.1, 0.9, 0.2},
	}
	if diff := cmp.Diff(want, res, nanEq); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	wantWindows := []image.Rectangle{
		image.Rect(0, 0, 32, 24),  // frame 0 is always full-frame
		image.Rect(7, 5, 17, 15),  // around (10,8), radius 3, 4x4 template
		image.Rect(9, 6, 19, 16),  // around (12,9): windows follow every match
	}
	if diff := cmp.Diff(wantWindows, windows); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}
}

func TestTrack_WindowClipping(t *testing.T) {
	frames := blankFrames(3, 32, 24)
	tmpl := blankTemplate(4, 4)

	var windows []image.Rectangle
	cfg := DefaultConfig()
	cfg.Radius = 100 // far larger than the frame
	cfg.Matcher = scriptMatcher(t, []step{
		{image.Pt(0, 0), 0.1},   // top-left corner
		{image.Pt(28, 20), 0.1}, // bottom-right corner
		{image.Pt(28, 20), 0.1},
	}, &windows)

	if _, err := Track(frames, tmpl, cfg); err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	full := image.Rect(0, 0, 32, 24)
	for k := 1; k < len(windows); k++ {
		if windows[k] != full {
			t.Errorf("frame %d window %v, want clipped to %v", k, windows[k], full)
		}
	}
}

func TestTrack_WindowShapeFollowsTemplate(t *testing.T) {
	// A non-square template must produce a window padded equally on all
	// sides, so the window aspect follows the template aspect.
	frames := blankFrames(2, 64, 64)
	tmpl := blankTemplate(12, 4)

	var windows []image.Rectangle
	cfg := DefaultConfig()
	cfg.Radius = 5
	cfg.Matcher = scriptMatcher(t, []step{
		{image.Pt(20, 30), 0.1},
		{image.Pt(20, 30), 0.1},
	}, &windows)

	if _, err := Track(frames, tmpl, cfg); err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	want := image.Rect(15, 25, 37, 39) // 12+2*5 wide, 4+2*5 tall
	if windows[1] != want {
		t.Errorf("window = %v, want %v", windows[1], want)
	}
}

func TestTrack_AdaptiveGrowthAndReset(t *testing.T) {
	frames := blankFrames(6, 64, 48)
	tmpl := blankTemplate(4, 4)

	var windows []image.Rectangle
	var updates []FrameUpdate
	cfg := DefaultConfig()
	cfg.Radius = 2
	cfg.Threshold = 0.2
	cfg.Rate = 2.0
	cfg.Matcher = scriptMatcher(t, []step{
		{image.Pt(10, 10), 0.05}, // accepted
		{image.Pt(11, 11), 0.50}, // rejected, radius 2 -> 4
		{image.Pt(11, 11), 0.50}, // rejected, radius 4 -> 8
		{image.Pt(11, 11), 0.50}, // rejected, radius 8 -> 16
		{image.Pt(12, 13), 0.10}, // accepted, radius resets to 2
		{image.Pt(13, 14), 0.05}, // accepted
	}, &windows)
	cfg.Observer = func(u FrameUpdate) { updates = append(updates, u) }

	res, err := Track(frames, tmpl, cfg)
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	nan := math.NaN()
	want := &Result{
		X: []float64{10, nan, nan, nan, 12, 13},
		Y: []float64{10, nan, nan, nan, 13, 14},
		D: []float64{0.05, 0.50, 0.50, 0.50, 0.10, 0.05},
	}
	if diff := cmp.Diff(want, res, nanEq); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	// Rejected frames hold the previous position, so every window stays
	// centered on (10,10) while the radius doubles.
	wantWindows := []image.Rectangle{
		image.Rect(0, 0, 64, 48),   // frame 0, full-frame
		image.Rect(8, 8, 16, 16),   // radius 2
		image.Rect(6, 6, 18, 18),   // radius 4
		image.Rect(2, 2, 22, 22),   // radius 8
		image.Rect(0, 0, 30, 30),   // radius 16, clipped at top-left
		image.Rect(10, 11, 18, 19), // reset to radius 2 at (12,13)
	}
	if diff := cmp.Diff(wantWindows, windows); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}

	wantRadii := []int{2, 4, 8, 16, 2, 2}
	wantAccepted := []bool{true, false, false, false, true, true}
	for k, u := range updates {
		if u.Frame != k {
			t.Errorf("update %d has frame %d", k, u.Frame)
		}
		if u.Radius != wantRadii[k] {
			t.Errorf("frame %d radius %d, want %d", k, u.Radius, wantRadii[k])
		}
		if u.Accepted != wantAccepted[k] {
			t.Errorf("frame %d accepted %v, want %v", k, u.Accepted, wantAccepted[k])
		}
	}
	// Mid-run updates for rejected frames carry the held position.
	for k := 1; k <= 3; k++ {
		if updates[k].X != 10 || updates[k].Y != 10 {
			t.Errorf("frame %d held position (%d,%d), want (10,10)",
				k, updates[k].X, updates[k].Y)
		}
	}
}

func TestTrack_RadiusZeroStaysZero(t *testing.T) {
	// Radius 0 is degenerate: the window is exactly the template footprint
	// and rejections cannot widen it, since round(0*rate) is still 0.
	frames := blankFrames(5, 32, 24)
	tmpl := blankTemplate(4, 4)

	var windows []image.Rectangle
	var updates []FrameUpdate
	cfg := DefaultConfig()
	cfg.Radius = 0
	cfg.Threshold = 0.2
	cfg.Rate = 2.0
	cfg.Matcher = scriptMatcher(t, []step{
		{image.Pt(5, 5), 0.00},
		{image.Pt(5, 5), 0.50}, // rejected
		{image.Pt(5, 5), 0.10}, // accepted
		{image.Pt(5, 5), 0.15}, // accepted
		{image.Pt(5, 5), 0.50}, // rejected
	}, &windows)
	cfg.Observer = func(u FrameUpdate) { updates = append(updates, u) }

	res, err := Track(frames, tmpl, cfg)
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	nan := math.NaN()
	want := &Result{
		X: []float64{5, nan, 5, 5, nan},
		Y: []float64{5, nan, 5, 5, nan},
		D: []float64{0.00, 0.50, 0.10, 0.15, 0.50},
	}
	if diff := cmp.Diff(want, res, nanEq); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	footprint := image.Rect(5, 5, 9, 9)
	for k := 1; k < len(windows); k++ {
		if windows[k] != footprint {
			t.Errorf("frame %d window %v, want %v", k, windows[k], footprint)
		}
	}
	for k, u := range updates {
		if u.Radius != 0 {
			t.Errorf("frame %d radius %d, want 0", k, u.Radius)
		}
	}
}

func TestTrack_AllRejected(t *testing.T) {
	frames := blankFrames(4, 32, 24)
	tmpl := blankTemplate(4, 4)

	cfg := DefaultConfig()
	cfg.Radius = 2
	cfg.Threshold = 0.2
	cfg.Matcher = scriptMatcher(t, []step{
		{image.Pt(5, 5), 0.9},
		{image.Pt(5, 5), 0.9},
		{image.Pt(5, 5), 0.9},
		{image.Pt(5, 5), 0.9},
	}, nil)

	res, err := Track(frames, tmpl, cfg)
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	for k := range res.X {
		if !math.IsNaN(res.X[k]) || !math.IsNaN(res.Y[k]) {
			t.Errorf("frame %d position (%g,%g), want NaN", k, res.X[k], res.Y[k])
		}
		if res.D[k] != 0.9 {
			t.Errorf("frame %d score %g, want 0.9 preserved", k, res.D[k])
		}
	}
}

func TestTrack_ThresholdDisabledNeverRejects(t *testing.T) {
	frames := blankFrames(3, 32, 24)
	tmpl := blankTemplate(4, 4)

	cfg := DefaultConfig()
	cfg.Matcher = scriptMatcher(t, []step{
		{image.Pt(1, 1), 0.99},
		{image.Pt(2, 2), 0.99},
		{image.Pt(3, 3), 0.99},
	}, nil)

	res, err := Track(frames, tmpl, cfg)
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	for k := range res.X {
		if math.IsNaN(res.X[k]) || math.IsNaN(res.Y[k]) {
			t.Errorf("frame %d rejected with rejection disabled", k)
		}
	}
}

func TestTrack_SingleFrame(t *testing.T) {
	frames := blankFrames(1, 32, 24)
	tmpl := blankTemplate(4, 4)

	cfg := DefaultConfig()
	cfg.Radius = 3
	cfg.Threshold = 0.2
	cfg.Matcher = scriptMatcher(t, []step{{image.Pt(7, 5), 0.1}}, nil)

	res, err := Track(frames, tmpl, cfg)
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	want := &Result{X: []float64{7}, Y: []float64{5}, D: []float64{0.1}}
	if diff := cmp.Diff(want, res, nanEq); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestTrack_FirstFrameRejected(t *testing.T) {
	// The first frame establishes the position even when its score fails
	// the threshold; only the final output marks it NaN.
	frames := blankFrames(2, 32, 24)
	tmpl := blankTemplate(4, 4)

	var windows []image.Rectangle
	cfg := DefaultConfig()
	cfg.Radius = 2
	cfg.Threshold = 0.2
	cfg.Matcher = scriptMatcher(t, []step{
		{image.Pt(10, 10), 0.9},
		{image.Pt(10, 10), 0.1},
	}, &windows)

	res, err := Track(frames, tmpl, cfg)
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	if !math.IsNaN(res.X[0]) {
		t.Errorf("frame 0 X = %g, want NaN", res.X[0])
	}
	if res.X[1] != 10 || res.Y[1] != 10 {
		t.Errorf("frame 1 position (%g,%g), want (10,10)", res.X[1], res.Y[1])
	}
	// The second window is still centered on frame 0's best match.
	want := image.Rect(8, 8, 16, 16)
	if windows[1] != want {
		t.Errorf("frame 1 window %v, want %v", windows[1], want)
	}
}

func TestTrack_ValidationErrors(t *testing.T) {
	good := blankFrames(2, 32, 24)
	tmpl := blankTemplate(4, 4)

	short := blankFrames(2, 32, 24)
	short[1] = image.NewNRGBA(image.Rect(0, 0, 32, 20))

	badMask, err := match.NewMask(3, 3, make([]bool, 9))
	if err != nil {
		t.Fatalf("NewMask failed: %v", err)
	}

	cases := []struct {
		name   string
		frames []*image.NRGBA
		tmpl   *image.NRGBA
		mut    func(*Config)
	}{
		{"empty sequence", nil, tmpl, nil},
		{"nil template", good, nil, nil},
		{"nil frame", []*image.NRGBA{good[0], nil}, tmpl, nil},
		{"dimension mismatch", short, tmpl, nil},
		{"template too large", good, blankTemplate(40, 4), nil},
		{"mask mismatch", good, tmpl, func(c *Config) { c.Mask = badMask }},
		{"nonpositive rate", good, tmpl, func(c *Config) {
			c.Radius = 2
			c.Threshold = 0.2
			c.Rate = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Matcher = func(img, tpl *image.NRGBA, mask *match.Mask) (image.Point, float64, error) {
				return image.Point{}, 0, nil
			}
			if tc.mut != nil {
				tc.mut(&cfg)
			}
			if _, err := Track(tc.frames, tc.tmpl, cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfig_Mode(t *testing.T) {
	cases := []struct {
		name      string
		radius    int
		threshold float64
		want      Mode
	}{
		{"both disabled", Disabled, Disabled, ModeFullFrame},
		{"threshold only", Disabled, 0.2, ModeFullFrame},
		{"radius only", 5, Disabled, ModeWindowedFixed},
		{"both set", 5, 0.2, ModeWindowedAdaptive},
		{"zero radius", 0, 0.2, ModeWindowedAdaptive},
		{"zero threshold", 5, 0, ModeWindowedAdaptive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Radius = tc.radius
			cfg.Threshold = tc.threshold
			if got := cfg.Mode(); got != tc.want {
				t.Errorf("Mode() = %v, want %v", got, tc.want)
			}
		})
	}
}

// stampedSequence builds frames with a deterministic noise patch placed at
// the given positions, plus the patch itself as the template.
func stampedSequence(positions []image.Point, frameW, frameH, tmplW, tmplH int) ([]*image.NRGBA, *image.NRGBA) {
	rng := rand.New(rand.NewSource(321))
	tmpl := image.NewNRGBA(image.Rect(0, 0, tmplW, tmplH))
	for i := 0; i < len(tmpl.Pix); i += 4 {
		tmpl.Pix[i+0] = uint8(rng.Intn(256))
		tmpl.Pix[i+1] = uint8(rng.Intn(256))
		tmpl.Pix[i+2] = uint8(rng.Intn(256))
		tmpl.Pix[i+3] = 255
	}

	frames := make([]*image.NRGBA, len(positions))
	for k, pos := range positions {
		f := image.NewNRGBA(image.Rect(0, 0, frameW, frameH))
		for y := 0; y < tmplH; y++ {
			for x := 0; x < tmplW; x++ {
				si := tmpl.PixOffset(x, y)
				di := f.PixOffset(pos.X+x, pos.Y+y)
				copy(f.Pix[di:di+4], tmpl.Pix[si:si+4])
			}
		}
		frames[k] = f
	}
	return frames, tmpl
}

func TestTrack_RealMatcher(t *testing.T) {
	positions := []image.Point{
		image.Pt(5, 7), image.Pt(8, 9), image.Pt(11, 11), image.Pt(14, 13),
	}
	frames, tmpl := stampedSequence(positions, 64, 48, 8, 8)

	modes := []struct {
		name string
		mut  func(*Config)
	}{
		{"full-frame", func(c *Config) {}},
		{"windowed", func(c *Config) { c.Radius = 5 }},
		{"adaptive", func(c *Config) { c.Radius = 5; c.Threshold = 0.1 }},
	}

	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			cfg := DefaultConfig()
			m.mut(&cfg)
			res, err := Track(frames, tmpl, cfg)
			if err != nil {
				t.Fatalf("Track failed: %v", err)
			}
			for k, pos := range positions {
				if res.X[k] != float64(pos.X) || res.Y[k] != float64(pos.Y) {
					t.Errorf("frame %d at (%g,%g), want (%d,%d)",
						k, res.X[k], res.Y[k], pos.X, pos.Y)
				}
				if res.D[k] != 0 {
					t.Errorf("frame %d score %g, want 0 for exact stamp", k, res.D[k])
				}
			}
		})
	}
}

func TestResult_Summary(t *testing.T) {
	nan := math.NaN()
	res := &Result{
		X: []float64{3, nan, 5, 7},
		Y: []float64{2, nan, 4, 6},
		D: []float64{0.1, 0.8, 0.2, 0.3},
	}

	s := res.Summary()
	if s.Frames != 4 {
		t.Errorf("Frames = %d, want 4", s.Frames)
	}
	if s.Matched != 3 {
		t.Errorf("Matched = %d, want 3", s.Matched)
	}
	if s.MinScore != 0.1 || s.MaxScore != 0.8 {
		t.Errorf("score range [%g,%g], want [0.1,0.8]", s.MinScore, s.MaxScore)
	}
	if math.Abs(s.MeanScore-0.35) > 1e-12 {
		t.Errorf("MeanScore = %g, want 0.35", s.MeanScore)
	}

	empty := &Result{}
	if s := empty.Summary(); s.Frames != 0 || s.Matched != 0 {
		t.Errorf("empty summary = %+v", s)
	}
}
