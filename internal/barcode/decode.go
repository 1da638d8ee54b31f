package barcode

import (
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"

	"github.com/ironsheep/carnet-tools/internal/common"
)

func reader(format Format) (gozxing.Reader, error) {
	switch format {
	case Code128:
		return oned.NewCode128Reader(), nil
	case Code39:
		// Payloads are encoded in full-ASCII mode without a check digit.
		return oned.NewCode39ReaderWithFlags(false, true), nil
	case EAN13:
		return oned.NewEAN13Reader(), nil
	case EAN8:
		return oned.NewEAN8Reader(), nil
	}
	return nil, fmt.Errorf("%w: unsupported format %q", common.ErrFormat, string(format))
}

// Decode reads the single 1D barcode of the given format in img.
func Decode(img image.Image, format Format) (string, error) {
	r, err := reader(format)
	if err != nil {
		return "", err
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("binarize: %w", err)
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	res, err := r.Decode(bmp, hints)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", format, err)
	}
	return res.GetText(), nil
}
