package imaging

import (
	"image"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// RGBColor represents an RGB color with 8-bit components.
//
// Each component ranges from 0 to 255, where:
//   - 0 represents no intensity (black for all components)
//   - 255 represents full intensity (white for all components)
type RGBColor struct {
	R uint8 `json:"r"` // Red component (0-255)
	G uint8 `json:"g"` // Green component (0-255)
	B uint8 `json:"b"` // Blue component (0-255)
}

// WhiteFloor is the per-channel value at or above which a pixel counts as blank.
const WhiteFloor = 250

// DefaultTolerance is the Lab distance below which two pixels are equal.
const DefaultTolerance = 0.01

// At reads the pixel at (x, y) as 8-bit RGB, ignoring alpha.
// Out-of-bounds coordinates yield black.
func At(img image.Image, x, y int) RGBColor {
	r, g, b, _ := img.At(x, y).RGBA()
	return RGBColor{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
}

// NearWhite reports whether every channel is at least WhiteFloor.
func (c RGBColor) NearWhite() bool {
	return c.R >= WhiteFloor && c.G >= WhiteFloor && c.B >= WhiteFloor
}

func (c RGBColor) lab() colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}

// SpreadPoints returns n sample positions spread across b: the center first,
// then points on an inset ring.
//
// For n = 3 the points are center, upper-left and lower-right; for n = 5 the
// four inset corners follow the center.
func SpreadPoints(b image.Rectangle, n int) []image.Point {
	if n <= 0 || b.Empty() {
		return nil
	}
	w, h := b.Dx(), b.Dy()
	at := func(fx, fy float64) image.Point {
		return image.Pt(b.Min.X+int(float64(w-1)*fx), b.Min.Y+int(float64(h-1)*fy))
	}
	ring := []image.Point{
		at(0.25, 0.25), at(0.75, 0.75), at(0.75, 0.25), at(0.25, 0.75),
		at(0.5, 0.1), at(0.5, 0.9), at(0.1, 0.5), at(0.9, 0.5),
	}
	pts := []image.Point{at(0.5, 0.5)}
	for i := 0; len(pts) < n; i++ {
		if i < len(ring) {
			pts = append(pts, ring[i])
			continue
		}
		// Beyond the fixed ring, walk the diagonal.
		f := float64(i-len(ring)+1) / float64(n+1)
		pts = append(pts, at(f, f))
	}
	return pts
}

// IsBlank reports whether the capture looks like an unfinished frame: larger
// than minSide in both dimensions and every one of n spread samples near white.
func IsBlank(img image.Image, n, minSide int) bool {
	if img == nil {
		return true
	}
	b := img.Bounds()
	if b.Dx() <= minSide || b.Dy() <= minSide {
		return false
	}
	for _, p := range SpreadPoints(b, n) {
		if !At(img, p.X, p.Y).NearWhite() {
			return false
		}
	}
	return true
}

// SameAt reports whether a and b have the same bounds and match at every
// point, within tol CIE Lab distance.
func SameAt(a, b image.Image, pts []image.Point, tol float64) bool {
	if a == nil || b == nil || a.Bounds() != b.Bounds() {
		return false
	}
	for _, p := range pts {
		ca, cb := At(a, p.X, p.Y).lab(), At(b, p.X, p.Y).lab()
		if ca.DistanceLab(cb) > tol {
			return false
		}
	}
	return true
}
