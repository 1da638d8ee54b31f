package ocr

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
	"github.com/gen2brain/go-fitz"

	"github.com/ironsheep/carnet-tools/internal/common"
	imgx "github.com/ironsheep/carnet-tools/internal/imaging"
)

// PDFRasterDPI is the resolution used for the first page of PDF inputs.
const PDFRasterDPI = 300

// contrastBoost is the relative contrast change applied before OCR.
const contrastBoost = 0.5

// LoadPage reads a PNG or JPEG directly, or rasterizes the first page of a PDF.
func LoadPage(path string) (image.Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg":
		img, _, err := imgx.Load(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrCorruptImage, err)
		}
		return img, nil
	case ".pdf":
		return firstPDFPage(path)
	}
	return nil, fmt.Errorf("%w: unsupported file type %q", common.ErrFormat, filepath.Ext(path))
}

func firstPDFPage(path string) (image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %w", common.ErrCorruptImage, err)
	}
	defer doc.Close()
	if doc.NumPage() < 1 {
		return nil, fmt.Errorf("%w: %s has no pages", common.ErrCorruptImage, filepath.Base(path))
	}
	img, err := doc.ImageDPI(0, PDFRasterDPI)
	if err != nil {
		return nil, fmt.Errorf("%w: rasterize pdf: %w", common.ErrCorruptImage, err)
	}
	return img, nil
}

// Prepare converts img to high-contrast grayscale.
func Prepare(img image.Image) image.Image {
	gray := effect.Grayscale(img)
	return adjust.Contrast(gray, contrastBoost)
}

func writeTempPNG(img image.Image, pattern string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to encode temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
