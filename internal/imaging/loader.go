package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"
)

// ErrIntegrity marks a file that failed CheckIntegrity.
var ErrIntegrity = errors.New("image integrity check failed")

// Load decodes the image at path and returns it with the decoder's format
// name ("png", "jpeg", "gif").
//
// # Errors
//
//   - Returns error if the file does not exist or cannot be read
//   - Returns error if the file is not a valid PNG, JPEG, or GIF image
func Load(path string) (image.Image, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image: %w", err)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// ImageInfo contains metadata about an image file.
type ImageInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is the decoder that accepted the file: "png", "jpeg", or "gif".
	Format string `json:"format"`

	// Mode is a PIL-style color mode: "RGB", "RGBA", "L", "P", "CMYK".
	Mode string `json:"mode"`

	// HasAlpha indicates whether the image has an alpha (transparency) channel.
	HasAlpha bool `json:"has_alpha"`

	// FileSizeBytes is the size of the image file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// Inspect loads an image and describes it.
//
// Unlike format detection by extension, Format here is what the decoder
// actually recognized, so a PNG saved as ".jpg" is reported as "png".
func Inspect(path string) (*ImageInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	img, format, err := Load(path)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	mode, alpha := colorMode(img)
	return &ImageInfo{
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		Format:        format,
		Mode:          mode,
		HasAlpha:      alpha,
		FileSizeBytes: stat.Size(),
	}, nil
}

func colorMode(img image.Image) (string, bool) {
	switch m := img.(type) {
	case *image.Gray, *image.Gray16:
		return "L", false
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return "P", true
			}
		}
		return "P", false
	case *image.CMYK:
		return "CMYK", false
	case *image.YCbCr:
		return "RGB", false
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		if opaque, ok := img.(interface{ Opaque() bool }); ok && opaque.Opaque() {
			return "RGB", false
		}
		return "RGBA", true
	}
	return "RGB", false
}

// CheckIntegrity verifies that path is a non-empty, decodable image of at
// least minSide pixels in each dimension. Failures wrap ErrIntegrity.
func CheckIntegrity(path string, minSide int) (*ImageInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
	if stat.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrIntegrity, filepath.Base(path))
	}
	info, err := Inspect(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
	if info.Width < minSide || info.Height < minSide {
		return nil, fmt.Errorf("%w: %dx%d is below %dx%d", ErrIntegrity, info.Width, info.Height, minSide, minSide)
	}
	return info, nil
}

// IsImagePath reports whether path has one of the raster extensions the
// template engine inlines.
func IsImagePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif":
		return true
	}
	return false
}
