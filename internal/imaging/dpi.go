package imaging

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"io"
	"math"
)

// pngHeaderLen covers the signature and the IHDR chunk, which is always first.
const pngHeaderLen = 8 + 4 + 4 + 13 + 4

// EncodePNG writes img as PNG at the given compression level and records
// dpi in a pHYs chunk. A dpi of zero omits the chunk.
func EncodePNG(w io.Writer, img image.Image, dpi int, level png.CompressionLevel) error {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: level}
	if err := enc.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	data := buf.Bytes()
	if dpi <= 0 {
		_, err := w.Write(data)
		return err
	}
	if len(data) < pngHeaderLen || string(data[12:16]) != "IHDR" {
		return fmt.Errorf("unexpected png layout")
	}

	if _, err := w.Write(data[:pngHeaderLen]); err != nil {
		return err
	}
	if _, err := w.Write(physChunk(dpi)); err != nil {
		return err
	}
	_, err := w.Write(data[pngHeaderLen:])
	return err
}

func physChunk(dpi int) []byte {
	ppm := uint32(math.Round(float64(dpi) / 0.0254))
	chunk := make([]byte, 4+4+9+4)
	binary.BigEndian.PutUint32(chunk[0:4], 9)
	copy(chunk[4:8], "pHYs")
	binary.BigEndian.PutUint32(chunk[8:12], ppm)
	binary.BigEndian.PutUint32(chunk[12:16], ppm)
	chunk[16] = 1 // unit: meter
	binary.BigEndian.PutUint32(chunk[17:21], crc32.ChecksumIEEE(chunk[4:17]))
	return chunk
}

// ReadDPI returns the horizontal DPI recorded in a PNG's pHYs chunk, or zero
// when the chunk is absent.
func ReadDPI(r io.Reader) (int, error) {
	var sig [8]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return 0, err
	}
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF {
				return 0, nil
			}
			return 0, err
		}
		n := binary.BigEndian.Uint32(hdr[:4])
		typ := string(hdr[4:8])
		body := make([]byte, int(n)+4)
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, err
		}
		switch typ {
		case "pHYs":
			if n < 9 || body[8] != 1 {
				return 0, nil
			}
			ppm := binary.BigEndian.Uint32(body[0:4])
			return int(math.Round(float64(ppm) * 0.0254)), nil
		case "IDAT", "IEND":
			return 0, nil
		}
	}
}
