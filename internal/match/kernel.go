package match

import (
	"image"
	"log/slog"

	"golang.org/x/sys/cpu"
)

// Kernel identifies which SSD kernel variant is active.
type Kernel int

const (
	KernelNaive     Kernel = iota // Reference implementation, no unrolling
	KernelUnrolled4               // 4-way unrolled inner loop
	KernelUnrolled8               // 8-way unrolled inner loop
)

func (k Kernel) String() string {
	switch k {
	case KernelNaive:
		return "naive"
	case KernelUnrolled4:
		return "unrolled4"
	case KernelUnrolled8:
		return "unrolled8"
	default:
		return "unknown"
	}
}

// kernelFunc computes the sum of squared RGB differences between tmpl and
// the region of img whose top-left is at offset (ox, oy) from img's bounds
// origin. Masked-out template pixels contribute nothing.
type kernelFunc func(img, tmpl *image.NRGBA, mask *Mask, ox, oy int) float64

var (
	activeKernel Kernel
	ssdAt        kernelFunc
)

func init() {
	// CPU feature detection is used as a proxy for how much independent
	// work per iteration the core can retire: chips with wide vector units
	// also tend to benefit from deeper unrolling.
	if cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD {
		activeKernel = KernelUnrolled8
		ssdAt = ssdUnrolled8
	} else {
		activeKernel = KernelUnrolled4
		ssdAt = ssdUnrolled4
	}
	slog.Debug("SSD kernel initialized", "kernel", activeKernel.String())
}

// ActiveKernel reports which kernel variant is currently selected.
func ActiveKernel() Kernel {
	return activeKernel
}

// SetKernel overrides the kernel variant. Used by tests to validate the
// unrolled variants against the reference implementation.
func SetKernel(k Kernel) {
	activeKernel = k
	switch k {
	case KernelUnrolled4:
		ssdAt = ssdUnrolled4
	case KernelUnrolled8:
		ssdAt = ssdUnrolled8
	default:
		activeKernel = KernelNaive
		ssdAt = ssdNaive
	}
}

// ssdNaive is the reference kernel. All accumulation happens on integers
// well below 2^53, so the float64 sum is exact and the unrolled variants
// must match it bit for bit.
func ssdNaive(img, tmpl *image.NRGBA, mask *Mask, ox, oy int) float64 {
	ib, tb := img.Bounds(), tmpl.Bounds()
	w, h := tb.Dx(), tb.Dy()

	var sum int64
	for y := 0; y < h; y++ {
		ii := img.PixOffset(ib.Min.X+ox, ib.Min.Y+oy+y)
		ti := tmpl.PixOffset(tb.Min.X, tb.Min.Y+y)
		for x := 0; x < w; x++ {
			if mask == nil || mask.At(x, y) {
				dr := int64(img.Pix[ii+0]) - int64(tmpl.Pix[ti+0])
				dg := int64(img.Pix[ii+1]) - int64(tmpl.Pix[ti+1])
				db := int64(img.Pix[ii+2]) - int64(tmpl.Pix[ti+2])
				sum += dr*dr + dg*dg + db*db
			}
			ii += 4
			ti += 4
		}
	}
	return float64(sum)
}

// ssdUnrolled4 processes 4 template pixels per iteration with a scalar tail.
func ssdUnrolled4(img, tmpl *image.NRGBA, mask *Mask, ox, oy int) float64 {
	if mask != nil {
		// Unrolling buys nothing once every pixel needs a mask lookup.
		return ssdNaive(img, tmpl, mask, ox, oy)
	}

	ib, tb := img.Bounds(), tmpl.Bounds()
	w, h := tb.Dx(), tb.Dy()

	var sum int64
	for y := 0; y < h; y++ {
		ii := img.PixOffset(ib.Min.X+ox, ib.Min.Y+oy+y)
		ti := tmpl.PixOffset(tb.Min.X, tb.Min.Y+y)

		x := 0
		for ; x+4 <= w; x += 4 {
			sum += pixelSSD(img.Pix, tmpl.Pix, ii, ti)
			sum += pixelSSD(img.Pix, tmpl.Pix, ii+4, ti+4)
			sum += pixelSSD(img.Pix, tmpl.Pix, ii+8, ti+8)
			sum += pixelSSD(img.Pix, tmpl.Pix, ii+12, ti+12)
			ii += 16
			ti += 16
		}
		for ; x < w; x++ {
			sum += pixelSSD(img.Pix, tmpl.Pix, ii, ti)
			ii += 4
			ti += 4
		}
	}
	return float64(sum)
}

// ssdUnrolled8 processes 8 template pixels per iteration with a scalar tail.
func ssdUnrolled8(img, tmpl *image.NRGBA, mask *Mask, ox, oy int) float64 {
	if mask != nil {
		return ssdNaive(img, tmpl, mask, ox, oy)
	}

	ib, tb := img.Bounds(), tmpl.Bounds()
	w, h := tb.Dx(), tb.Dy()

	var sum int64
	for y := 0; y < h; y++ {
		ii := img.PixOffset(ib.Min.X+ox, ib.Min.Y+oy+y)
		ti := tmpl.PixOffset(tb.Min.X, tb.Min.Y+y)

		x := 0
		for ; x+8 <= w; x += 8 {
			sum += pixelSSD(img.Pix, tmpl.Pix, ii, ti)
			sum += pixelSSD(img.Pix, tmpl.Pix, ii+4, ti+4)
			sum += pixelSSD(img.Pix, tmpl.Pix, ii+8, ti+8)
			sum += pixelSSD(img.Pix, tmpl.Pix, ii+12, ti+12)
			sum += pixelSSD(img.Pix, tmpl.Pix, ii+16, ti+16)
			sum += pixelSSD(img.Pix, tmpl.Pix, ii+20, ti+20)
			sum += pixelSSD(img.Pix, tmpl.Pix, ii+24, ti+24)
			sum += pixelSSD(img.Pix, tmpl.Pix, ii+28, ti+28)
			ii += 32
			ti += 32
		}
		for ; x < w; x++ {
			sum += pixelSSD(img.Pix, tmpl.Pix, ii, ti)
			ii += 4
			ti += 4
		}
	}
	return float64(sum)
}

// pixelSSD computes the squared RGB difference for one NRGBA pixel.
// Alpha is ignored.
func pixelSSD(a, b []uint8, ai, bi int) int64 {
	dr := int64(a[ai+0]) - int64(b[bi+0])
	dg := int64(a[ai+1]) - int64(b[bi+1])
	db := int64(a[ai+2]) - int64(b[bi+2])
	return dr*dr + dg*dg + db*db
}
