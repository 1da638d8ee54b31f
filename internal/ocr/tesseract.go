package ocr

import (
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Bounds represents a rectangular bounding box in pixel coordinates.
type Bounds struct {
	X1 int `json:"x1"` // Left edge
	Y1 int `json:"y1"` // Top edge
	X2 int `json:"x2"` // Right edge
	Y2 int `json:"y2"` // Bottom edge
}

// TextRegion represents a word with its location and OCR confidence.
type TextRegion struct {
	// Text is the recognized word.
	Text string `json:"text"`

	// Confidence is the OCR confidence score (0.0 to 1.0).
	Confidence float64 `json:"confidence"`

	// Bounds is the bounding box around this word in the image.
	Bounds Bounds `json:"bounds"`
}

// OCRResult contains the complete results of text extraction from an image.
type OCRResult struct {
	// FullText is all recognized text with original spacing and newlines.
	FullText string `json:"full_text"`

	// Regions contains individual words with their bounding boxes.
	// May be empty if bounding box extraction fails.
	Regions []TextRegion `json:"regions"`
}

// Engine turns an image file into text.
type Engine interface {
	// Text runs OCR on the file at path. languages is a "+"-joined list of
	// Tesseract language codes, e.g. "spa+eng".
	Text(path, languages string) (string, error)
}

// TesseractEngine is an Engine backed by the Tesseract C API.
type TesseractEngine struct {
	// TessdataPrefix overrides the tessdata directory when set.
	TessdataPrefix string
	// PageSegMode defaults to a single uniform block of text.
	PageSegMode gosseract.PageSegMode
}

// NewTesseractEngine returns an engine in single-block segmentation mode.
func NewTesseractEngine(tessdataPrefix string) *TesseractEngine {
	return &TesseractEngine{TessdataPrefix: tessdataPrefix, PageSegMode: gosseract.PSM_SINGLE_BLOCK}
}

func (e *TesseractEngine) client(path, languages string) (*gosseract.Client, error) {
	client := gosseract.NewClient()
	if e.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(e.TessdataPrefix); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	if err := client.SetLanguage(strings.Split(languages, "+")...); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(e.PageSegMode); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation: %w", err)
	}
	if err := client.SetImage(path); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set image: %w", err)
	}
	return client, nil
}

// Text implements Engine.
func (e *TesseractEngine) Text(path, languages string) (string, error) {
	client, err := e.client(path, languages)
	if err != nil {
		return "", err
	}
	defer client.Close()

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return text, nil
}

// Extract performs OCR on an entire image file and returns the text along with
// word-level regions.
//
// If word-level bounding box extraction fails, the full text is still returned
// with an empty Regions slice. Empty words are dropped.
func (e *TesseractEngine) Extract(path, languages string) (*OCRResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}
	client, err := e.client(path, languages)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return &OCRResult{FullText: text, Regions: []TextRegion{}}, nil
	}

	regions := make([]TextRegion, 0, len(boxes))
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		regions = append(regions, TextRegion{
			Text:       box.Word,
			Confidence: float64(box.Confidence) / 100.0,
			Bounds: Bounds{
				X1: box.Box.Min.X,
				Y1: box.Box.Min.Y,
				X2: box.Box.Max.X,
				Y2: box.Box.Max.Y,
			},
		})
	}
	return &OCRResult{FullText: text, Regions: regions}, nil
}

// ExtractRegion performs OCR on rect of img. Returned bounds are in the
// coordinates of img, not of the crop.
func (e *TesseractEngine) ExtractRegion(img image.Image, rect image.Rectangle, languages string) (*OCRResult, error) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("region %v is outside the image", rect)
	}
	cropped := imaging.Crop(img, rect)

	tmpPath, err := writeTempPNG(cropped, "ocr-region-*.png")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmpPath)

	result, err := e.Extract(tmpPath, languages)
	if err != nil {
		return nil, err
	}
	for i := range result.Regions {
		result.Regions[i].Bounds.X1 += rect.Min.X
		result.Regions[i].Bounds.Y1 += rect.Min.Y
		result.Regions[i].Bounds.X2 += rect.Min.X
		result.Regions[i].Bounds.Y2 += rect.Min.Y
	}
	return result, nil
}

// OCRInfo describes the OCR subsystem.
type OCRInfo struct {
	Available    bool     `json:"available"`
	Version      string   `json:"version,omitempty"`
	Binary       string   `json:"binary,omitempty"`
	Languages    []string `json:"languages,omitempty"`
	Backend      string   `json:"backend"`
	TessdataPath string   `json:"tessdata_path,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Info reports the library version and installed languages for the binary
// found by Probe.
func (e *TesseractEngine) Info(avail Availability) OCRInfo {
	info := OCRInfo{
		Available:    avail.Status == Available,
		Binary:       avail.Path,
		Backend:      "gosseract",
		TessdataPath: e.TessdataPrefix,
	}
	if !info.Available {
		info.Error = "tesseract not found on PATH or in the standard install locations"
		return info
	}
	client := gosseract.NewClient()
	defer client.Close()
	if e.TessdataPrefix != "" {
		_ = client.SetTessdataPrefix(e.TessdataPrefix)
	}
	info.Version = client.Version()
	langs, err := gosseract.GetAvailableLanguages()
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.Languages = langs
	return info
}
