package barcode

import (
	"fmt"
	"strings"

	"github.com/ironsheep/carnet-tools/internal/common"
)

// Format is a supported 1D symbology.
type Format string

const (
	Code128 Format = "Code128"
	EAN13   Format = "EAN13"
	EAN8    Format = "EAN8"
	Code39  Format = "Code39"
)

// Formats lists every supported symbology in display order.
var Formats = []Format{Code128, EAN13, EAN8, Code39}

// Payload length limits.
const (
	MaxCode128 = 80
	MaxCode39  = 43
)

// ParseFormat accepts the canonical names case-insensitively, with or
// without separators ("code-128", "ean 13").
func ParseFormat(s string) (Format, error) {
	key := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	for _, f := range Formats {
		if strings.ToLower(string(f)) == key {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported format %q", common.ErrFormat, s)
}

// Valid reports whether f is one of the supported symbologies.
func (f Format) Valid() bool {
	for _, known := range Formats {
		if f == known {
			return true
		}
	}
	return false
}

// Validate checks payload against the rules of f.
func (f Format) Validate(payload string) error {
	if payload == "" {
		return fmt.Errorf("%w: empty payload", common.ErrFormat)
	}
	switch f {
	case Code128:
		if len(payload) > MaxCode128 {
			return fmt.Errorf("%w: Code128 payload exceeds %d characters", common.ErrFormat, MaxCode128)
		}
		for _, r := range payload {
			if r > 127 {
				return fmt.Errorf("%w: Code128 payload must be ASCII", common.ErrFormat)
			}
		}
	case Code39:
		if len(payload) > MaxCode39 {
			return fmt.Errorf("%w: Code39 payload exceeds %d characters", common.ErrFormat, MaxCode39)
		}
		for _, r := range payload {
			if r > 127 {
				return fmt.Errorf("%w: Code39 payload must be ASCII", common.ErrFormat)
			}
		}
	case EAN13:
		if len(payload) != 13 || !allDigits(payload) {
			return fmt.Errorf("%w: EAN13 requires exactly 13 digits", common.ErrFormat)
		}
	case EAN8:
		if len(payload) != 8 || !allDigits(payload) {
			return fmt.Errorf("%w: EAN8 requires exactly 8 digits", common.ErrFormat)
		}
	default:
		return fmt.Errorf("%w: unsupported format %q", common.ErrFormat, string(f))
	}
	return nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// DataLength returns the number of data digits an EAN symbology carries
// before its check digit, or zero for the other formats.
func (f Format) DataLength() int {
	switch f {
	case EAN13:
		return 12
	case EAN8:
		return 7
	}
	return 0
}

// Complete appends the EAN check digit when payload holds only the data
// digits. Other payloads are returned unchanged.
func (f Format) Complete(payload string) string {
	if n := f.DataLength(); n > 0 && len(payload) == n && allDigits(payload) {
		return payload + string(CheckDigit(payload))
	}
	return payload
}

// CheckDigit computes the EAN/UPC modulo-10 check digit of digits.
func CheckDigit(digits string) byte {
	sum := 0
	weight := 3
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		weight = 4 - weight
	}
	return byte('0' + (10-sum%10)%10)
}
