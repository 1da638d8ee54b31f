package imaging

import (
	"image"
	"image/color"
	"testing"
)

// createInMemoryImage creates an in-memory test image
func createInMemoryImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestAt(t *testing.T) {
	img := createInMemoryImage(10, 10, color.RGBA{255, 128, 64, 255})
	got := At(img, 5, 5)
	if got != (RGBColor{255, 128, 64}) {
		t.Errorf("At: got %+v, want {255 128 64}", got)
	}
}

func TestSpreadPoints(t *testing.T) {
	b := image.Rect(0, 0, 101, 201)

	pts := SpreadPoints(b, 5)
	if len(pts) != 5 {
		t.Fatalf("got %d points, want 5", len(pts))
	}
	if pts[0] != image.Pt(50, 100) {
		t.Errorf("first point: got %v, want center (50,100)", pts[0])
	}
	seen := map[image.Point]bool{}
	for _, p := range pts {
		if !p.In(b) {
			t.Errorf("point %v outside %v", p, b)
		}
		if seen[p] {
			t.Errorf("duplicate point %v", p)
		}
		seen[p] = true
	}

	if got := len(SpreadPoints(b, 12)); got != 12 {
		t.Errorf("got %d points, want 12", got)
	}
	if SpreadPoints(image.Rectangle{}, 3) != nil {
		t.Error("empty rectangle should yield no points")
	}
}

func TestIsBlank(t *testing.T) {
	tests := []struct {
		name string
		img  image.Image
		want bool
	}{
		{"white large", createInMemoryImage(200, 200, color.White), true},
		{"near white large", createInMemoryImage(200, 200, color.RGBA{251, 252, 250, 255}), true},
		{"blue large", createInMemoryImage(200, 200, color.RGBA{0, 0, 255, 255}), false},
		{"white small", createInMemoryImage(100, 100, color.White), false},
		{"nil", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBlank(tt.img, 5, 100); got != tt.want {
				t.Errorf("IsBlank = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsBlank_ContentAtSample(t *testing.T) {
	img := createInMemoryImage(300, 300, color.White)
	// Paint only the center sample.
	img.Set(149, 149, color.Black)
	if IsBlank(img, 5, 100) {
		t.Error("image with dark center sample reported blank")
	}
}

func TestSameAt(t *testing.T) {
	a := createInMemoryImage(50, 50, color.RGBA{10, 200, 30, 255})
	b := createInMemoryImage(50, 50, color.RGBA{10, 200, 30, 255})
	pts := SpreadPoints(a.Bounds(), 3)

	if !SameAt(a, b, pts, DefaultTolerance) {
		t.Error("identical images reported different")
	}

	b.Set(pts[1].X, pts[1].Y, color.RGBA{200, 10, 30, 255})
	if SameAt(a, b, pts, DefaultTolerance) {
		t.Error("changed sample not detected")
	}

	c := createInMemoryImage(60, 50, color.RGBA{10, 200, 30, 255})
	if SameAt(a, c, pts, DefaultTolerance) {
		t.Error("different bounds must not compare equal")
	}
	if SameAt(a, nil, pts, DefaultTolerance) {
		t.Error("nil image must not compare equal")
	}
}
