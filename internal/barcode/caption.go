package barcode

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"runtime"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/ironsheep/carnet-tools/internal/common"
)

// Caption geometry.
const (
	DefaultCaptionPx = 50
	MinCaptionPx     = 10
	captionGap       = 8
	captionMargin    = 40
)

// SystemFontPaths lists Arial, Calibri and Tahoma locations for this OS.
func SystemFontPaths() []string {
	switch runtime.GOOS {
	case "windows":
		dir := os.Getenv("WINDIR")
		if dir == "" {
			dir = `C:\Windows`
		}
		return []string{dir + `\Fonts\arial.ttf`, dir + `\Fonts\calibri.ttf`, dir + `\Fonts\tahoma.ttf`}
	case "darwin":
		return []string{
			"/System/Library/Fonts/Supplemental/Arial.ttf",
			"/Library/Fonts/Arial.ttf",
			"/Library/Fonts/Calibri.ttf",
			"/System/Library/Fonts/Supplemental/Tahoma.ttf",
		}
	default:
		return []string{
			"/usr/share/fonts/truetype/msttcorefonts/Arial.ttf",
			"/usr/share/fonts/truetype/msttcorefonts/arial.ttf",
			"/usr/share/fonts/truetype/crosextra/Carlito-Regular.ttf",
			"/usr/share/fonts/truetype/msttcorefonts/Tahoma.ttf",
		}
	}
}

// captionFace returns the first loadable font in paths at px, falling back
// to the embedded Go Regular face.
func captionFace(paths []string, px int) (font.Face, error) {
	opts := &opentype.FaceOptions{Size: float64(px), DPI: 72, Hinting: font.HintingFull}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		f, err := opentype.Parse(data)
		if err != nil {
			continue
		}
		if face, err := opentype.NewFace(f, opts); err == nil {
			return face, nil
		}
	}
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(f, opts)
}

// CaptionCanvas returns the canvas size needed to hold a barW x barH barcode
// with a caption captionW pixels wide at px.
func CaptionCanvas(barW, barH, captionW, px int) (int, int) {
	w := barW
	if captionW+captionMargin > w {
		w = captionW + captionMargin
	}
	extra := px + 15
	if extra < 35 {
		extra = 35
	}
	return w, barH + extra
}

func (e *Engine) addCaption(bars image.Image, caption string, px int) (image.Image, error) {
	if px == 0 {
		px = DefaultCaptionPx
	}
	if px < MinCaptionPx {
		px = MinCaptionPx
	}

	face, err := captionFace(e.FontPaths, px)
	if err != nil {
		return nil, fmt.Errorf("%w: caption font: %w", common.ErrCorruptImage, err)
	}
	defer face.Close()

	measure := gg.NewContext(1, 1)
	measure.SetFontFace(face)
	textW, _ := measure.MeasureString(caption)

	b := bars.Bounds()
	w, h := CaptionCanvas(b.Dx(), b.Dy(), int(textW+0.5), px)

	dc := gg.NewContext(w, h)
	dc.SetColor(color.White)
	dc.Clear()
	dc.DrawImage(bars, (w-b.Dx())/2, 0)
	dc.SetFontFace(face)
	dc.SetColor(color.Black)
	dc.DrawStringAnchored(caption, float64(w)/2, float64(b.Dy()+captionGap), 0.5, 1)
	return dc.Image(), nil
}
