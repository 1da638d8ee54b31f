package barcode

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ironsheep/carnet-tools/internal/common"
	"github.com/ironsheep/carnet-tools/internal/imaging"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(t.TempDir(), zerolog.Nop())
	// Keep tests independent of installed fonts.
	e.FontPaths = nil
	return e
}

func TestEncode_RoundTripEveryFormat(t *testing.T) {
	e := newTestEngine(t)
	tests := []struct {
		format  Format
		payload string
	}{
		{Code128, "ABCD12"},
		{Code128, "emp-0001/x"},
		{Code39, "CARNET 2024"},
		{Code39, "lower$case"},
		{EAN13, "1234567890128"},
		{EAN8, "96385074"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format)+"_"+tt.payload, func(t *testing.T) {
			res, err := e.Encode(context.Background(), Request{
				Payload: tt.payload, Format: tt.format, Caption: tt.payload, FullName: "Prueba",
			})
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if res.Payload != tt.payload || res.UniqueID != tt.payload {
				t.Errorf("result ids: got %q/%q", res.Payload, res.UniqueID)
			}

			img, _, err := imaging.Load(res.Path)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			got, err := Decode(img, tt.format)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tt.payload {
				t.Errorf("decoded %q, want %q", got, tt.payload)
			}
		})
	}
}

func TestEncode_Scenario(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Encode(context.Background(), Request{
		Payload: "ABCD12", Format: Code128, Caption: "ABCD12", FullName: "Juan Pérez",
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if res.Filename != "Juan_Pérez_ABCD12.png" {
		t.Errorf("filename: got %q", res.Filename)
	}
	if filepath.Dir(res.Path) != e.Dir() {
		t.Errorf("path %q not under %q", res.Path, e.Dir())
	}
	if err := e.VerifyImage(res.Path, "ABCD12", Code128); err != nil {
		t.Errorf("VerifyImage: %v", err)
	}
	if res.Audit.Width < 200 || res.Audit.Height < 50 || len(res.Audit.Warnings) != 0 {
		t.Errorf("audit: %+v", res.Audit)
	}
	if res.Audit.Contrast <= 0 {
		t.Errorf("contrast: got %.2f, want > 0", res.Audit.Contrast)
	}
}

func TestEncode_EAN13RejectedBeforeWrite(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Encode(context.Background(), Request{Payload: "12345", Format: EAN13, FullName: "X"})
	if !errors.Is(err, common.ErrFormat) {
		t.Fatalf("got %v, want ErrFormat", err)
	}
	entries, _ := os.ReadDir(e.Dir())
	if len(entries) != 0 {
		t.Errorf("expected no files, found %d", len(entries))
	}
}

func TestEncode_BadEANChecksum(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Encode(context.Background(), Request{Payload: "1234567890123", Format: EAN13})
	if !errors.Is(err, common.ErrFormat) {
		t.Fatalf("got %v, want ErrFormat", err)
	}
}

func TestEncode_Cancelled(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Encode(ctx, Request{Payload: "ABC", Format: Code128})
	if !errors.Is(err, common.ErrCancelled) {
		t.Fatalf("got %v, want ErrCancelled", err)
	}
}

func TestVerifyImage_Mismatch(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Encode(context.Background(), Request{Payload: "AAA111", Format: Code128})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.VerifyImage(res.Path, "BBB222", Code128); !errors.Is(err, common.ErrVerification) {
		t.Errorf("got %v, want ErrVerification", err)
	}

	blank := filepath.Join(e.Dir(), "blank.png")
	img := imaging.Flatten(image.NewNRGBA(image.Rect(0, 0, 200, 100)))
	f, err := os.Create(blank)
	if err != nil {
		t.Fatal(err)
	}
	if err := imaging.EncodePNG(f, img, 0, 0); err != nil {
		t.Fatal(err)
	}
	f.Close()
	if err := e.VerifyImage(blank, "AAA111", Code128); !errors.Is(err, common.ErrVerification) {
		t.Errorf("blank image: got %v, want ErrVerification", err)
	}

	junk := filepath.Join(e.Dir(), "junk.png")
	if err := os.WriteFile(junk, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := e.VerifyImage(junk, "AAA111", Code128); !errors.Is(err, common.ErrCorruptImage) {
		t.Errorf("junk file: got %v, want ErrCorruptImage", err)
	}
}

func TestRender_CaptionGrowsCanvas(t *testing.T) {
	e := newTestEngine(t)
	plain, err := e.Render("AB", Code128, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	long := "UN TEXTO DE CAPTION MUCHO MAS ANCHO QUE LAS BARRAS"
	captioned, err := e.Render("AB", Code128, long, 20)
	if err != nil {
		t.Fatal(err)
	}
	pb, cb := plain.Bounds(), captioned.Bounds()
	if cb.Dy() != pb.Dy()+35 {
		t.Errorf("height: got %d, want %d", cb.Dy(), pb.Dy()+35)
	}
	if cb.Dx() <= pb.Dx() {
		t.Errorf("width: caption should widen canvas, got %d <= %d", cb.Dx(), pb.Dx())
	}

	big, err := e.Render("AB", Code128, "AB", 50)
	if err != nil {
		t.Fatal(err)
	}
	if big.Bounds().Dy() != pb.Dy()+65 {
		t.Errorf("height at 50px: got %d, want %d", big.Bounds().Dy(), pb.Dy()+65)
	}
}

func TestCaptionCanvas(t *testing.T) {
	tests := []struct {
		barW, barH, capW, px int
		w, h                 int
	}{
		{300, 150, 100, 50, 300, 215},
		{300, 150, 290, 10, 330, 185},
		{300, 150, 0, 25, 300, 190},
	}
	for _, tt := range tests {
		w, h := CaptionCanvas(tt.barW, tt.barH, tt.capW, tt.px)
		if w != tt.w || h != tt.h {
			t.Errorf("CaptionCanvas(%d,%d,%d,%d) = %dx%d, want %dx%d",
				tt.barW, tt.barH, tt.capW, tt.px, w, h, tt.w, tt.h)
		}
	}
}

func TestFilename(t *testing.T) {
	tests := map[string][2]string{
		"Juan_Pérez_ABCD12.png": {"Juan Pérez", "ABCD12"},
		"a_b_c_d_X1.png":        {`a/b\c:d`, "X1"},
		"Q_R_S_T_U_V_W_X1.png":  {`Q*R?S"T<U>V|W`, "X1"},
		"X1.png":                {"  ", "X1"},
		"Ana_X_1.png":           {" Ana ", "X/1"},
	}
	for want, in := range tests {
		if got := Filename(in[0], in[1]); got != want {
			t.Errorf("Filename(%q, %q) = %q, want %q", in[0], in[1], got, want)
		}
	}
}
