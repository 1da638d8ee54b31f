package carnet

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/ironsheep/carnet-tools/internal/barcode"
	"github.com/ironsheep/carnet-tools/internal/common"
	"github.com/ironsheep/carnet-tools/internal/imaging"
	"github.com/ironsheep/carnet-tools/internal/store"
)

// Format is the artifact file type.
type Format string

const (
	PNG Format = "png"
	PDF Format = "pdf"
)

// ParseFormat accepts "png" or "pdf" in any case, with or without a dot.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "."))
	if !f.Valid() {
		return "", fmt.Errorf("%w: output format %q", common.ErrFormat, s)
	}
	return f, nil
}

// Valid reports whether f is PNG or PDF.
func (f Format) Valid() bool { return f == PNG || f == PDF }

// EntryName returns "carnet_<name>_<unique id>.<ext>" for rec.
func EntryName(rec store.BarcodeRecord, f Format) string {
	name := barcode.Sanitize(fullName(rec))
	if name == "" {
		name = "sin_nombre"
	}
	return fmt.Sprintf("carnet_%s_%s.%s", name, barcode.Sanitize(rec.UniqueID), f)
}

func writeArtifact(path string, img image.Image, f Format, dpi int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir: %w", common.ErrStorage, err)
	}
	var buf bytes.Buffer
	switch f {
	case PNG:
		if err := imaging.EncodePNG(&buf, img, dpi, png.BestSpeed); err != nil {
			return fmt.Errorf("%w: %w", common.ErrCorruptImage, err)
		}
	case PDF:
		if err := encodePDF(&buf, img, dpi); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("%w: write %s: %w", common.ErrStorage, path, err)
	}
	return nil
}

// encodePDF writes a single-page PDF whose page is exactly the image at dpi.
func encodePDF(buf *bytes.Buffer, img image.Image, dpi int) error {
	var raster bytes.Buffer
	if err := imaging.EncodePNG(&raster, imaging.Flatten(img), dpi, png.BestSpeed); err != nil {
		return fmt.Errorf("%w: %w", common.ErrCorruptImage, err)
	}

	b := img.Bounds()
	w, h := float64(b.Dx())/float64(dpi), float64(b.Dy())/float64(dpi)
	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "in",
		Size:           fpdf.SizeType{Wd: w, Ht: h},
	})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.AddPage()

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	doc.RegisterImageOptionsReader("carnet", opts, &raster)
	doc.ImageOptions("carnet", 0, 0, w, h, false, opts, 0, "")
	if err := doc.Output(buf); err != nil {
		return fmt.Errorf("%w: pdf: %w", common.ErrStorage, err)
	}
	return nil
}
