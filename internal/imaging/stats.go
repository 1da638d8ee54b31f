package imaging

import (
	"image"
	"math"
)

// Summary holds per-channel means and a contrast figure for an image.
type Summary struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	MeanR    float64 `json:"mean_r"`
	MeanG    float64 `json:"mean_g"`
	MeanB    float64 `json:"mean_b"`
	Contrast float64 `json:"contrast"` // standard deviation of luminance, 0-255
}

// Summarize computes channel means and luminance contrast over every pixel.
func Summarize(img image.Image) Summary {
	b := img.Bounds()
	s := Summary{Width: b.Dx(), Height: b.Dy()}
	n := float64(b.Dx() * b.Dy())
	if n == 0 {
		return s
	}

	var sumR, sumG, sumB, sumL, sumL2 float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := At(img, x, y)
			r, g, bl := float64(c.R), float64(c.G), float64(c.B)
			sumR += r
			sumG += g
			sumB += bl
			l := 0.299*r + 0.587*g + 0.114*bl
			sumL += l
			sumL2 += l * l
		}
	}
	s.MeanR = sumR / n
	s.MeanG = sumG / n
	s.MeanB = sumB / n
	mean := sumL / n
	s.Contrast = math.Round(math.Sqrt(math.Max(0, sumL2/n-mean*mean))*100) / 100
	return s
}

// MostlyWhite reports whether every channel mean is at least WhiteFloor.
func (s Summary) MostlyWhite() bool {
	return s.MeanR >= WhiteFloor && s.MeanG >= WhiteFloor && s.MeanB >= WhiteFloor
}
