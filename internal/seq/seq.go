// Package seq loads and validates frame sequences for tracking. Frames are
// decoded from image files, converted to NRGBA, and checked for uniform
// dimensions before the tracker ever sees them.
package seq

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	// Frame files come from whatever produced the capture; register the
	// common formats plus the x/image extras.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// LoadImage decodes a single image file and converts it to NRGBA.
func LoadImage(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Bounds().Min == (image.Point{}) {
		return nrgba, nil
	}

	bounds := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			out.Set(x-bounds.Min.X, y-bounds.Min.Y, img.At(x, y))
		}
	}
	return out, nil
}

// Load expands the glob pattern, sorts the matches lexically (frame files
// are conventionally zero-padded) and decodes every frame. All frames must
// share the same dimensions.
func Load(pattern string) ([]*image.NRGBA, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad frame pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no frames match %q", pattern)
	}
	sort.Strings(paths)

	frames := make([]*image.NRGBA, len(paths))
	for i, path := range paths {
		frame, err := LoadImage(path)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if i > 0 {
			w0, h0 := frames[0].Bounds().Dx(), frames[0].Bounds().Dy()
			if frame.Bounds().Dx() != w0 || frame.Bounds().Dy() != h0 {
				return nil, fmt.Errorf("frame %d (%s) is %dx%d, want %dx%d",
					i, path, frame.Bounds().Dx(), frame.Bounds().Dy(), w0, h0)
			}
		}
		frames[i] = frame
	}

	slog.Debug("loaded frame sequence",
		"frames", len(frames),
		"width", frames[0].Bounds().Dx(),
		"height", frames[0].Bounds().Dy(),
	)
	return frames, nil
}
