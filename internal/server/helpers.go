package server

import (
	"image"
	"image/color"
	"math"
)

var pathColor = color.NRGBA{R: 255, G: 48, B: 48, A: 255}

// renderPath draws the tracked trajectory onto a copy of the frame: a
// cross at every valid match center and line segments connecting
// consecutive valid centers. Rejected (NaN) frames leave gaps.
func renderPath(frame *image.NRGBA, xs, ys []float64, tmplWidth, tmplHeight int) *image.NRGBA {
	b := frame.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	copy(out.Pix, frame.Pix)

	prevX, prevY := -1, -1
	for k := range xs {
		if math.IsNaN(xs[k]) || math.IsNaN(ys[k]) {
			prevX, prevY = -1, -1
			continue
		}
		// Center of the template footprint, not its top-left corner.
		cx := int(xs[k]) + tmplWidth/2
		cy := int(ys[k]) + tmplHeight/2

		if prevX >= 0 {
			drawSegment(out, prevX, prevY, cx, cy)
		}
		drawCross(out, cx, cy)
		prevX, prevY = cx, cy
	}
	return out
}

// drawCross draws a small plus marker centered at (x, y).
func drawCross(img *image.NRGBA, x, y int) {
	for d := -3; d <= 3; d++ {
		setPixel(img, x+d, y)
		setPixel(img, x, y+d)
	}
}

// drawSegment draws a line from (x0, y0) to (x1, y1) by uniform stepping.
func drawSegment(img *image.NRGBA, x0, y0, x1, y1 int) {
	dx, dy := x1-x0, y1-y0
	steps := max(abs(dx), abs(dy))
	if steps == 0 {
		setPixel(img, x0, y0)
		return
	}
	for i := 0; i <= steps; i++ {
		x := x0 + dx*i/steps
		y := y0 + dy*i/steps
		setPixel(img, x, y)
	}
}

func setPixel(img *image.NRGBA, x, y int) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetNRGBA(x, y, pathColor)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
