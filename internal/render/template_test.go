package render

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ironsheep/carnet-tools/internal/common"
)

func writeTestPNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

func TestDiscoverVariables(t *testing.T) {
	html := `<h1>{{ nombre }}</h1><p>{{cargo}}</p><img src="{{foto}}"><p>{{nombre}}</p>{{ bad-name }}{{empresa }}`
	got := DiscoverVariables(html)
	want := []string{"cargo", "empresa", "foto", "nombre"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DiscoverVariables: got %v, want %v", got, want)
	}
}

func TestTemplate_UserVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.html")
	html := `<p>{{nombre}} {{apellidos}} {{cargo}} {{codigo_barras}} {{departamento}}</p>`
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		t.Fatal(err)
	}
	tpl, err := LoadTemplate(path)
	if err != nil {
		t.Fatalf("LoadTemplate: %v", err)
	}
	if tpl.Width != DefaultWidth || tpl.Height != DefaultHeight || tpl.DPI != 600 {
		t.Errorf("geometry: got %dx%d@%d", tpl.Width, tpl.Height, tpl.DPI)
	}
	if got := tpl.UserVariables(); !reflect.DeepEqual(got, []string{"cargo", "departamento"}) {
		t.Errorf("UserVariables: got %v", got)
	}
	if !tpl.Declares("apellidos") || tpl.Declares("foto") {
		t.Error("Declares gave the wrong answer")
	}
}

func TestLoadTemplate_Missing(t *testing.T) {
	_, err := LoadTemplate(filepath.Join(t.TempDir(), "nope.html"))
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestInject_EscapesText(t *testing.T) {
	out := Inject(`<p>{{nombre}}</p><p>{{cargo}}</p>`, Variables{
		"nombre": `<script>alert("x")</script>`,
		"cargo":  "I+D & Calidad",
	})
	if strings.Contains(out, "<script>") {
		t.Fatalf("script survived injection: %s", out)
	}
	if !strings.Contains(out, "&lt;script&gt;") || !strings.Contains(out, "I+D &amp; Calidad") {
		t.Errorf("unexpected escaping: %s", out)
	}
}

func TestInject_DataURIs(t *testing.T) {
	good := "data:image/png;base64,QUJD"
	bad := `data:image/png;base64,QUJD" onerror="alert(1)`
	out := Inject(`<img src="{{logo}}"><img src="{{foto}}">`, Variables{"logo": good, "foto": bad})
	if !strings.Contains(out, `src="`+good+`"`) {
		t.Errorf("well-formed data URI should pass verbatim: %s", out)
	}
	if strings.Contains(out, `onerror="alert(1)`) {
		t.Errorf("malformed data URI was not escaped: %s", out)
	}
}

func TestInject_ImageFiles(t *testing.T) {
	dir := t.TempDir()
	photo := writeTestPNG(t, dir, "foto.png")

	out := Inject(`<img src="{{foto}}">`, Variables{"foto": photo})
	if !strings.HasPrefix(strings.TrimPrefix(out, `<img src="`), "data:image/png;base64,") {
		t.Errorf("photo not inlined: %.80s", out)
	}
}

func TestInject_MissingPhotoIsTransparent(t *testing.T) {
	tpl := `<img src="{{foto}}"><img src="{{logo}}"><img src="{{codigo_barras}}"><span>{{cargo}}</span>`
	out := Inject(tpl, Variables{
		"foto":          "/does/not/exist.jpg",
		"codigo_barras": "",
	})
	if n := strings.Count(out, TransparentPixel); n != 3 {
		t.Errorf("expected 3 transparent slots, got %d: %s", n, out)
	}
	if !strings.Contains(out, "<span></span>") {
		t.Errorf("missing text variable should be empty: %s", out)
	}
	if strings.Contains(out, "{{") {
		t.Errorf("unreplaced placeholder: %s", out)
	}
}

func TestInject_PathInTextSlot(t *testing.T) {
	out := Inject(`<p>{{cargo}}</p>`, Variables{"cargo": "/missing/plan.png"})
	if out != `<p>/missing/plan.png</p>` {
		t.Errorf("got %q", out)
	}
}

func TestWithCanvasCSS(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		at   string
	}{
		{"head", `<html><HEAD><title>x</title></HEAD><body></body></html>`, "</HEAD>"},
		{"body only", `<body><p>x</p></body>`, "<body>"},
		{"fragment", `<p>x</p>`, "<p>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := withCanvasCSS(tt.doc, 637, 1013)
			css := strings.Index(out, `<style id="carnet-canvas">`)
			anchor := strings.Index(out, tt.at)
			if css < 0 || anchor < 0 || css > anchor {
				t.Errorf("style not placed before %q: %s", tt.at, out)
			}
			if !strings.Contains(out, "width:637px;height:1013px") {
				t.Errorf("canvas size missing: %s", out)
			}
		})
	}
}
