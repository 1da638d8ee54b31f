package render

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/ironsheep/carnet-tools/internal/common"
)

// ID-1 card at 300 DPI.
const (
	DefaultWidth  = 637
	DefaultHeight = 1013
	BaseDPI       = 300
)

// Reserved variable names filled from the record or treated as images.
const (
	VarUniqueID     = "id_unico"
	VarBarcode      = "codigo_barras"
	VarName         = "nombre"
	VarFirstNames   = "nombres"
	VarLastNames    = "apellidos"
	VarEmployeeCode = "descripcion"
	VarPhoto        = "foto"
	VarLogo         = "logo"
)

// ReservedVariables are filled automatically; any other placeholder is a
// user-editable text field.
var ReservedVariables = []string{
	VarUniqueID, VarBarcode, VarName, VarFirstNames, VarLastNames, VarEmployeeCode, VarPhoto, VarLogo,
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Variables maps placeholder names to scalar text or image file paths.
type Variables map[string]string

// Template is an HTML carnet template.
type Template struct {
	Path string
	HTML string

	// Width and Height are the canvas size in pixels at 300 DPI.
	Width  int
	Height int
	// DPI is the render resolution.
	DPI int
}

// LoadTemplate reads a UTF-8 HTML file with default card geometry.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: template %s: %w", common.ErrNotFound, path, err)
	}
	return &Template{
		Path:   path,
		HTML:   string(data),
		Width:  DefaultWidth,
		Height: DefaultHeight,
		DPI:    600,
	}, nil
}

// Variables returns the sorted set of placeholder names in the template.
func (t *Template) Variables() []string {
	return DiscoverVariables(t.HTML)
}

// Declares reports whether the template contains a {{name}} placeholder.
func (t *Template) Declares(name string) bool {
	for _, v := range t.Variables() {
		if v == name {
			return true
		}
	}
	return false
}

// UserVariables returns the placeholders that are not reserved.
func (t *Template) UserVariables() []string {
	var out []string
	for _, v := range t.Variables() {
		if !isReserved(v) {
			out = append(out, v)
		}
	}
	return out
}

func isReserved(name string) bool {
	for _, r := range ReservedVariables {
		if r == name {
			return true
		}
	}
	return false
}

// DiscoverVariables returns the sorted set of names that appear as
// {{ name }} in html. Whitespace inside the braces is tolerated.
func DiscoverVariables(html string) []string {
	seen := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(html, -1) {
		seen[m[1]] = true
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// withCanvasCSS pins html and body to the 300-DPI canvas, anchored top-left.
func withCanvasCSS(doc string, w300, h300 int) string {
	css := fmt.Sprintf(`<style id="carnet-canvas">html,body{margin:0;padding:0;width:%dpx;height:%dpx;overflow:hidden;}body{transform-origin:0 0;}</style>`, w300, h300)
	lower := strings.ToLower(doc)
	if i := strings.Index(lower, "</head>"); i >= 0 {
		return doc[:i] + css + doc[i:]
	}
	if i := strings.Index(lower, "<body"); i >= 0 {
		return doc[:i] + css + doc[i:]
	}
	return css + doc
}
