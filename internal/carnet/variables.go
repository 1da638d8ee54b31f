package carnet

import (
	"path/filepath"
	"strings"

	"github.com/ironsheep/carnet-tools/internal/ocr"
	"github.com/ironsheep/carnet-tools/internal/render"
	"github.com/ironsheep/carnet-tools/internal/store"
)

// Defaults for well-known user fields, applied only when the template
// declares them and no value was supplied.
var fieldDefaults = map[string]string{
	"empresa": "Mi Empresa",
	"web":     "www.ejemplo.com",
}

// BuildVariables merges record data over the user-supplied ui values.
//
// Record-sourced keys always win, so stale values left over from a previous
// record in ui never leak into a carnet. The barcode slot points at the
// record's stored image file; it is never derived from the name.
func BuildVariables(rec store.BarcodeRecord, tpl *render.Template, ui render.Variables, imagesDir string) render.Variables {
	vars := render.Variables{render.VarPhoto: ""}
	for k, v := range ui {
		vars[k] = v
	}

	barcodePath := ""
	if rec.ImageFilename != "" {
		barcodePath = filepath.Join(imagesDir, rec.ImageFilename)
	}
	vars[render.VarUniqueID] = rec.UniqueID
	vars[render.VarBarcode] = barcodePath
	vars[render.VarFirstNames] = rec.FirstNames
	vars[render.VarLastNames] = rec.LastNames
	vars[render.VarEmployeeCode] = rec.EmployeeCode
	vars[render.VarName] = fullName(rec)

	if tpl != nil {
		for name, def := range fieldDefaults {
			if tpl.Declares(name) && strings.TrimSpace(vars[name]) == "" {
				vars[name] = def
			}
		}
	}
	return vars
}

func fullName(rec store.BarcodeRecord) string {
	if rec.FullName != "" {
		return rec.FullName
	}
	return store.JoinNames(rec.FirstNames, rec.LastNames)
}

// expectedFields lists the record values a carnet should show, limited to
// the placeholders the template actually prints.
func expectedFields(rec store.BarcodeRecord, tpl *render.Template) ocr.Expected {
	var exp ocr.Expected
	if tpl == nil {
		return exp
	}
	if tpl.Declares(render.VarFirstNames) || tpl.Declares(render.VarName) {
		exp.FirstNames = rec.FirstNames
	}
	if tpl.Declares(render.VarLastNames) || tpl.Declares(render.VarName) {
		exp.LastNames = rec.LastNames
	}
	if tpl.Declares(render.VarEmployeeCode) {
		exp.EmployeeCode = rec.EmployeeCode
	}
	if tpl.Declares(render.VarUniqueID) {
		exp.UniqueID = rec.UniqueID
	}
	return exp
}
