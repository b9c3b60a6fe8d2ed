// Package match implements the single-frame template matcher: an exhaustive
// masked sum-of-squared-differences scan that locates the placement of a
// fixed template inside a search image.
//
// Scores are normalized dissimilarities in [0, 1]: 0 means every included
// pixel is identical, 1 means maximal disagreement on every channel. Lower
// is better, and the scale is stable across image and template sizes so
// caller-supplied thresholds stay meaningful.
package match

import (
	"fmt"
	"image"
)

// BestMatch scans every placement of tmpl inside img and returns the
// top-left corner of the best (lowest-score) placement together with its
// score. Coordinates are relative to img's bounds origin, so a sub-image
// search yields window-local coordinates.
//
// A nil mask includes every template pixel. The template must fit inside
// the search image; a mask, when present, must have template dimensions.
func BestMatch(img, tmpl *image.NRGBA, mask *Mask) (image.Point, float64, error) {
	ib, tb := img.Bounds(), tmpl.Bounds()
	iw, ih := ib.Dx(), ib.Dy()
	tw, th := tb.Dx(), tb.Dy()

	if tw <= 0 || th <= 0 {
		return image.Point{}, 0, fmt.Errorf("empty template (%dx%d)", tw, th)
	}
	if tw > iw || th > ih {
		return image.Point{}, 0, fmt.Errorf("template %dx%d larger than search image %dx%d", tw, th, iw, ih)
	}

	included := tw * th
	if mask != nil {
		if err := mask.Validate(tw, th); err != nil {
			return image.Point{}, 0, err
		}
		included = mask.Count()
	}
	// 3 channels, each difference at most 255
	norm := float64(included) * 3 * 255 * 255

	var best image.Point
	bestSum := -1.0
	for oy := 0; oy+th <= ih; oy++ {
		for ox := 0; ox+tw <= iw; ox++ {
			sum := ssdAt(img, tmpl, mask, ox, oy)
			if bestSum < 0 || sum < bestSum {
				bestSum = sum
				best = image.Point{X: ox, Y: oy}
			}
		}
	}

	return best, bestSum / norm, nil
}
