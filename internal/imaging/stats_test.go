package imaging

import (
	"image/color"
	"math"
	"testing"
)

func TestSummarize(t *testing.T) {
	blue := Summarize(createInMemoryImage(20, 20, color.RGBA{0, 0, 255, 255}))
	if blue.MeanB != 255 || blue.MeanR != 0 {
		t.Errorf("means: got R=%.1f B=%.1f", blue.MeanR, blue.MeanB)
	}
	if blue.Contrast != 0 {
		t.Errorf("solid image contrast: got %.2f, want 0", blue.Contrast)
	}
	if blue.MostlyWhite() {
		t.Error("blue image reported mostly white")
	}

	// Half black, half white: luminance stddev is 127.5.
	img := createInMemoryImage(20, 20, color.White)
	for y := 0; y < 20; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.Black)
		}
	}
	s := Summarize(img)
	if math.Abs(s.Contrast-127.5) > 0.5 {
		t.Errorf("contrast: got %.2f, want ~127.5", s.Contrast)
	}

	if !Summarize(createInMemoryImage(5, 5, color.White)).MostlyWhite() {
		t.Error("white image should be mostly white")
	}
}
