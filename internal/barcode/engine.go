package barcode

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	bc "github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/code39"
	"github.com/boombuler/barcode/ean"
	"github.com/rs/zerolog"

	"github.com/ironsheep/carnet-tools/internal/common"
	"github.com/ironsheep/carnet-tools/internal/imaging"
)

// Raster defaults.
const (
	DefaultModulePx  = 3
	DefaultBarHeight = 120
	QuietModules     = 10
	MinSide          = 10
	maxRasterWidth   = 2400
)

// Request describes one barcode to produce.
type Request struct {
	Payload   string
	Format    Format
	Caption   string // drawn under the bars when non-empty
	CaptionPx int    // caption size in pixels; zero means DefaultCaptionPx
	FullName  string // used for the file name only
}

// Audit is the advisory quality report of a saved barcode.
type Audit struct {
	Width     int
	Height    int
	SizeBytes int64
	Mode      string
	Contrast  float64
	Warnings  []string
}

// Result describes a saved and verified barcode image.
type Result struct {
	Payload  string
	UniqueID string
	Path     string
	Filename string
	Audit    Audit
}

// Engine writes barcode PNGs into one directory.
type Engine struct {
	dir string
	log zerolog.Logger

	// ModulePx is the width of the narrowest bar in pixels.
	ModulePx int
	// BarHeight is the bar height in pixels, excluding quiet zone and caption.
	BarHeight int
	// FontPaths lists caption fonts to try before the built-in face.
	FontPaths []string
}

// NewEngine returns an Engine that saves into dir.
func NewEngine(dir string, log zerolog.Logger) *Engine {
	return &Engine{
		dir:       dir,
		log:       log.With().Str("component", "barcode").Logger(),
		ModulePx:  DefaultModulePx,
		BarHeight: DefaultBarHeight,
		FontPaths: SystemFontPaths(),
	}
}

// Dir returns the output directory.
func (e *Engine) Dir() string { return e.dir }

// Encode validates, rasterizes, captions, saves and verifies req. On a
// verification failure the file is removed before the error is returned.
func (e *Engine) Encode(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", common.ErrCancelled, err)
	}
	if err := req.Format.Validate(req.Payload); err != nil {
		return Result{}, err
	}

	img, err := e.Render(req.Payload, req.Format, req.Caption, req.CaptionPx)
	if err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("%w: mkdir %s: %w", common.ErrStorage, e.dir, err)
	}
	name := Filename(req.FullName, req.Payload)
	path := filepath.Join(e.dir, name)
	if err := savePNG(path, img); err != nil {
		return Result{}, err
	}

	info, err := imaging.CheckIntegrity(path, MinSide)
	if err != nil {
		_ = os.Remove(path)
		return Result{}, fmt.Errorf("%w: %w", common.ErrCorruptImage, err)
	}

	if err := e.VerifyImage(path, req.Payload, req.Format); err != nil {
		_ = os.Remove(path)
		return Result{}, err
	}

	audit := e.audit(path, info)
	return Result{
		Payload:  req.Payload,
		UniqueID: req.Payload,
		Path:     path,
		Filename: name,
		Audit:    audit,
	}, nil
}

// Render produces the captioned barcode raster without touching disk.
func (e *Engine) Render(payload string, format Format, caption string, captionPx int) (image.Image, error) {
	if err := format.Validate(payload); err != nil {
		return nil, err
	}
	symbol, err := encodeSymbol(payload, format)
	if err != nil {
		return nil, err
	}

	module := e.ModulePx
	if module <= 0 {
		module = DefaultModulePx
	}
	w := symbol.Bounds().Dx()
	for module > 1 && (w+2*QuietModules)*module > maxRasterWidth {
		module--
	}
	height := e.BarHeight
	if height <= 0 {
		height = DefaultBarHeight
	}

	scaled, err := bc.Scale(symbol, w*module, height)
	if err != nil {
		return nil, fmt.Errorf("%w: scale: %w", common.ErrFormat, err)
	}
	img := image.Image(imaging.Pad(scaled, QuietModules*module, module*4))

	if caption != "" {
		img, err = e.addCaption(img, caption, captionPx)
		if err != nil {
			return nil, err
		}
	}
	return img, nil
}

func encodeSymbol(payload string, format Format) (bc.Barcode, error) {
	var (
		symbol bc.Barcode
		err    error
	)
	switch format {
	case Code128:
		symbol, err = code128.Encode(payload)
	case Code39:
		symbol, err = code39.Encode(payload, false, true)
	case EAN13, EAN8:
		symbol, err = ean.Encode(payload)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", common.ErrFormat, string(format))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrFormat, format, err)
	}
	return symbol, nil
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", common.ErrStorage, path, err)
	}
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(f, img); err != nil {
		f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("%w: encode %s: %w", common.ErrCorruptImage, path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("%w: close %s: %w", common.ErrStorage, path, err)
	}
	return nil
}

// VerifyImage decodes the barcode in the file at path and checks it equals
// expected. Unreadable files wrap common.ErrCorruptImage; a missing or
// different payload wraps common.ErrVerification.
func (e *Engine) VerifyImage(path, expected string, format Format) error {
	img, _, err := imaging.Load(path)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrCorruptImage, err)
	}
	got, err := Decode(img, format)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", common.ErrVerification, filepath.Base(path), err)
	}
	if got != expected {
		return fmt.Errorf("%w: %s decodes to %q, want %q", common.ErrVerification, filepath.Base(path), got, expected)
	}
	return nil
}

func (e *Engine) audit(path string, info *imaging.ImageInfo) Audit {
	a := Audit{
		Width:     info.Width,
		Height:    info.Height,
		SizeBytes: info.FileSizeBytes,
		Mode:      info.Mode,
	}
	if img, _, err := imaging.Load(path); err == nil {
		a.Contrast = imaging.Summarize(img).Contrast
	}
	if a.Width < 200 {
		a.Warnings = append(a.Warnings, fmt.Sprintf("width %d px is below 200", a.Width))
	}
	if a.Height < 50 {
		a.Warnings = append(a.Warnings, fmt.Sprintf("height %d px is below 50", a.Height))
	}
	for _, w := range a.Warnings {
		e.log.Warn().Str("file", filepath.Base(path)).Msg(w)
	}
	e.log.Info().
		Str("file", filepath.Base(path)).
		Int64("bytes", a.SizeBytes).
		Int("width", a.Width).
		Int("height", a.Height).
		Str("mode", a.Mode).
		Float64("contrast", a.Contrast).
		Msg("barcode saved")
	return a
}

// Filename returns "<sanitized name>_<value>.png", or "<value>.png" when the
// name is empty.
func Filename(fullName, value string) string {
	name := Sanitize(fullName)
	if name == "" {
		return Sanitize(value) + ".png"
	}
	return name + "_" + Sanitize(value) + ".png"
}

var unsafeChars = strings.NewReplacer(
	"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_", " ", "_",
)

// Sanitize makes s safe as a file name component.
func Sanitize(s string) string {
	return strings.Trim(unsafeChars.Replace(strings.TrimSpace(s)), "_")
}
