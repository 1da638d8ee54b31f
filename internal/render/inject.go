package render

import (
	"encoding/base64"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ironsheep/carnet-tools/internal/imaging"
)

// TransparentPixel is a 1x1 transparent PNG used for unset image slots.
const TransparentPixel = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAAC0lEQVR4nGNgAAIAAAUAAXpeqz8AAAAASUVORK5CYII="

var imageSlots = map[string]bool{VarPhoto: true, VarBarcode: true, VarLogo: true}

var dataImageURI = regexp.MustCompile(`^data:image/[A-Za-z0-9.+-]+;base64,[A-Za-z0-9+/=]+$`)

// Inject replaces every {{name}} placeholder in doc.
//
// A value naming a readable .png/.jpg/.jpeg/.gif file becomes a base64 data
// URI. An empty or unreadable value for foto, codigo_barras or logo becomes
// TransparentPixel. A well-formed data:image URI is inlined verbatim. Any
// other value is HTML-escaped. Placeholders without a value become empty.
func Inject(doc string, vars Variables) string {
	return placeholder.ReplaceAllStringFunc(doc, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		return resolve(name, vars[name])
	})
}

func resolve(name, value string) string {
	v := strings.TrimSpace(value)

	if v != "" && !strings.HasPrefix(v, "data:") && imaging.IsImagePath(v) {
		if uri, err := DataURI(v); err == nil {
			return uri
		}
		if imageSlots[name] {
			return TransparentPixel
		}
	}
	if v == "" && imageSlots[name] {
		return TransparentPixel
	}
	if dataImageURI.MatchString(v) {
		return v
	}
	return html.EscapeString(value)
}

// DataURI reads an image file and returns it as a data URI.
func DataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%s is empty", path)
	}
	mime := "image/png"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		mime = "image/jpeg"
	case ".gif":
		mime = "image/gif"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
