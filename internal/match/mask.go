package match

import (
	"fmt"
	"image"
)

// Mask restricts which template pixels participate in matching.
// A true bit means the pixel is included. A nil *Mask includes everything.
type Mask struct {
	width  int
	height int
	bits   []bool
}

// NewMask creates a mask from a row-major bit slice.
func NewMask(width, height int, bits []bool) (*Mask, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid mask dimensions %dx%d", width, height)
	}
	if len(bits) != width*height {
		return nil, fmt.Errorf("mask bits length %d does not match %dx%d", len(bits), width, height)
	}
	return &Mask{width: width, height: height, bits: bits}, nil
}

// MaskFromImage builds a mask from a grayscale mask image: pixels with
// luminance >= 128 are included. The usual convention for mask files is
// white = tracked, black = ignored.
func MaskFromImage(img *image.NRGBA) *Mask {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	bits := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			r, g, bl := img.Pix[i+0], img.Pix[i+1], img.Pix[i+2]
			// integer luma approximation, same weights as image/color
			luma := (299*int(r) + 587*int(g) + 114*int(bl)) / 1000
			bits[y*w+x] = luma >= 128
		}
	}
	return &Mask{width: w, height: h, bits: bits}
}

// MaskFromAlpha builds a mask from a template's own alpha channel:
// opaque pixels (alpha >= 128) are included. Useful for templates cut out
// with transparency.
func MaskFromAlpha(tmpl *image.NRGBA) *Mask {
	b := tmpl.Bounds()
	w, h := b.Dx(), b.Dy()
	bits := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := tmpl.PixOffset(b.Min.X+x, b.Min.Y+y)
			bits[y*w+x] = tmpl.Pix[i+3] >= 128
		}
	}
	return &Mask{width: w, height: h, bits: bits}
}

// Dims returns the mask width and height.
func (m *Mask) Dims() (int, int) {
	return m.width, m.height
}

// At reports whether the pixel at (x, y) is included. Coordinates are
// relative to the template's top-left corner.
func (m *Mask) At(x, y int) bool {
	return m.bits[y*m.width+x]
}

// Count returns the number of included pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// Validate checks the mask against template dimensions.
// A mask that excludes every pixel cannot produce a meaningful score.
func (m *Mask) Validate(tmplWidth, tmplHeight int) error {
	if m.width != tmplWidth || m.height != tmplHeight {
		return fmt.Errorf("mask dimensions %dx%d do not match template %dx%d",
			m.width, m.height, tmplWidth, tmplHeight)
	}
	if m.Count() == 0 {
		return fmt.Errorf("mask excludes all %dx%d template pixels", m.width, m.height)
	}
	return nil
}
