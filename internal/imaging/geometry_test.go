package imaging

import (
	"image"
	"image/color"
	"testing"
)

func TestFit(t *testing.T) {
	img := createInMemoryImage(100, 50, color.RGBA{0, 0, 255, 255})

	same := Fit(img, 100, 50)
	if same != image.Image(img) {
		t.Error("Fit at the same size should return the input")
	}

	out := Fit(img, 40, 80)
	if out.Bounds().Dx() != 40 || out.Bounds().Dy() != 80 {
		t.Errorf("Fit: got %v, want 40x80", out.Bounds())
	}
	if c := At(out, 20, 40); c.B < 250 || c.R > 5 {
		t.Errorf("Fit changed color: %+v", c)
	}
}

func TestFlatten(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 5, 15, 15)) // transparent, offset origin
	src.Set(10, 10, color.NRGBA{255, 0, 0, 255})

	out := Flatten(src)
	if out.Bounds() != image.Rect(0, 0, 10, 10) {
		t.Fatalf("bounds: got %v", out.Bounds())
	}
	if c := At(out, 0, 0); c != (RGBColor{255, 255, 255}) {
		t.Errorf("transparent pixel: got %+v, want white", c)
	}
	if c := At(out, 5, 5); c != (RGBColor{255, 0, 0}) {
		t.Errorf("opaque pixel: got %+v, want red", c)
	}
	if !out.Opaque() {
		t.Error("flattened image should be opaque")
	}
}

func TestPad(t *testing.T) {
	img := createInMemoryImage(10, 4, color.Black)
	out := Pad(img, 3, 2)
	if out.Bounds().Dx() != 16 || out.Bounds().Dy() != 8 {
		t.Fatalf("Pad: got %v, want 16x8", out.Bounds())
	}
	if c := At(out, 0, 0); c != (RGBColor{255, 255, 255}) {
		t.Errorf("margin: got %+v, want white", c)
	}
	if c := At(out, 3, 2); c != (RGBColor{0, 0, 0}) {
		t.Errorf("content: got %+v, want black", c)
	}
}
