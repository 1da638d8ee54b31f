package barcode

import (
	"errors"
	"strings"
	"testing"

	"github.com/ironsheep/carnet-tools/internal/common"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		format  Format
		payload string
		ok      bool
	}{
		{Code128, "ABCD12", true},
		{Code128, strings.Repeat("A", 80), true},
		{Code128, strings.Repeat("A", 81), false},
		{Code128, "", false},
		{Code128, "Ñandú", false},
		{Code39, strings.Repeat("Z", 43), true},
		{Code39, strings.Repeat("Z", 44), false},
		{EAN13, "1234567890128", true},
		{EAN13, "12345", false},
		{EAN13, "123456789012A", false},
		{EAN8, "96385074", true},
		{EAN8, "9638507", false},
		{Format("QR"), "ABC", false},
	}
	for _, tt := range tests {
		err := tt.format.Validate(tt.payload)
		if tt.ok && err != nil {
			t.Errorf("%s %q: unexpected error %v", tt.format, tt.payload, err)
		}
		if !tt.ok && !errors.Is(err, common.ErrFormat) {
			t.Errorf("%s %q: got %v, want ErrFormat", tt.format, tt.payload, err)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"Code128":  Code128,
		"code-128": Code128,
		"EAN 13":   EAN13,
		"ean8":     EAN8,
		"CODE39":   Code39,
	} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("pdf417"); !errors.Is(err, common.ErrFormat) {
		t.Errorf("ParseFormat(pdf417): got %v, want ErrFormat", err)
	}
	if !Code39.Valid() || Format("x").Valid() {
		t.Error("Valid mismatch")
	}
}

func TestComplete(t *testing.T) {
	tests := []struct {
		format  Format
		payload string
		want    string
	}{
		{EAN13, "123456789012", "1234567890128"},
		{EAN8, "9638507", "96385074"},
		{EAN13, "1234567890128", "1234567890128"},
		{Code128, "ABC", "ABC"},
	}
	for _, tt := range tests {
		got := tt.format.Complete(tt.payload)
		if got != tt.want {
			t.Errorf("%s.Complete(%q): got %q, want %q", tt.format, tt.payload, got, tt.want)
		}
		if err := tt.format.Validate(got); err != nil {
			t.Errorf("completed payload %q invalid: %v", got, err)
		}
	}
}
