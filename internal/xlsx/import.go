package xlsx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/ironsheep/carnet-tools/internal/barcode"
	"github.com/ironsheep/carnet-tools/internal/common"
	"github.com/ironsheep/carnet-tools/internal/issue"
	"github.com/ironsheep/carnet-tools/internal/store"
)

// RowStatus classifies an import row.
type RowStatus int

const (
	// RowError lacks a name or an employee code.
	RowError RowStatus = iota
	// RowNew has no record yet and will be generated.
	RowNew
	// RowDuplicate matches a record with a readable barcode; it is skipped.
	RowDuplicate
	// RowInvalidExisting matches a record whose image fails verification.
	RowInvalidExisting
)

func (s RowStatus) String() string {
	switch s {
	case RowNew:
		return "to_generate"
	case RowDuplicate:
		return "duplicate"
	case RowInvalidExisting:
		return "invalid_existing"
	default:
		return "error"
	}
}

// Row is one classified data row. Line is the 1-based sheet row.
type Row struct {
	Line         int
	FullName     string
	EmployeeCode string
	Format       barcode.Format
	Status       RowStatus
	// Existing is set for duplicates and invalid existing rows.
	Existing *store.BarcodeRecord
}

// Report is the outcome of Validate.
type Report struct {
	Total           int
	ToGenerate      int
	Duplicates      int
	InvalidExisting int
	Errors          int
	ErrorList       []string
	Rows            []Row
}

// GenerateOptions controls the second import pass.
type GenerateOptions struct {
	// RegenerateInvalid replaces records whose barcode image fails verification.
	RegenerateInvalid bool
}

// GenerateResult summarizes Generate.
type GenerateResult struct {
	Report      Report
	Generated   int
	Regenerated int
	Skipped     int
	Failed      int
	Cancelled   bool
	Errors      []string
}

// Importer reads employee rows from a workbook and issues their barcodes.
type Importer struct {
	store  *store.Store
	engine *barcode.Engine
	issuer *issue.Issuer
	log    zerolog.Logger
}

// NewImporter returns an Importer. engine verifies existing images; issuer
// creates the new records.
func NewImporter(st *store.Store, engine *barcode.Engine, issuer *issue.Issuer, log zerolog.Logger) *Importer {
	return &Importer{store: st, engine: engine, issuer: issuer, log: log.With().Str("component", "xlsx").Logger()}
}

// sheetColumns holds header positions; format is -1 when absent.
type sheetColumns struct {
	name, code, format int
}

func locateColumns(header []string) (sheetColumns, error) {
	cols := sheetColumns{name: -1, code: -1, format: -1}
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case ColEmployeeName:
			cols.name = i
		case ColEmployeeCode:
			cols.code = i
		case ColFormat, ColFormatOpt:
			cols.format = i
		}
	}
	var missing []string
	if cols.name < 0 {
		missing = append(missing, ColEmployeeName)
	}
	if cols.code < 0 {
		missing = append(missing, ColEmployeeCode)
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("%w: missing required columns: %s", common.ErrImportValidation, strings.Join(missing, ", "))
	}
	return cols, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// normalizeFormat maps every value to Code128; imports only issue Code128.
func normalizeFormat(string) barcode.Format {
	return barcode.Code128
}

// readRows returns the data rows of the first sheet and the header positions.
func readRows(path string) ([][]string, sheetColumns, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, sheetColumns{}, fmt.Errorf("%w: open %s: %w", common.ErrImportValidation, path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, sheetColumns{}, fmt.Errorf("%w: workbook has no sheets", common.ErrImportValidation)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, sheetColumns{}, fmt.Errorf("%w: read %s: %w", common.ErrImportValidation, sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, sheetColumns{}, fmt.Errorf("%w: sheet %s is empty", common.ErrImportValidation, sheets[0])
	}
	cols, err := locateColumns(rows[0])
	if err != nil {
		return nil, cols, err
	}
	return rows[1:], cols, nil
}

// Validate classifies every data row of the first sheet. It writes nothing.
// A code already seen earlier in the sheet is a duplicate of that row.
// A sheet without the required columns fails with common.ErrImportValidation.
func (im *Importer) Validate(ctx context.Context, path string) (Report, error) {
	rows, cols, err := readRows(path)
	if err != nil {
		return Report{}, err
	}

	var rep Report
	seen := make(map[string]int)
	for i, raw := range rows {
		if err := ctx.Err(); err != nil {
			return rep, fmt.Errorf("%w: %w", common.ErrCancelled, err)
		}
		name, code := cell(raw, cols.name), cell(raw, cols.code)
		if name == "" && code == "" && cell(raw, cols.format) == "" {
			continue
		}
		row := Row{
			Line:         i + 2,
			FullName:     name,
			EmployeeCode: code,
			Format:       normalizeFormat(cell(raw, cols.format)),
		}
		rep.Total++

		if name == "" || code == "" {
			row.Status = RowError
			rep.Errors++
			rep.ErrorList = append(rep.ErrorList, fmt.Sprintf("fila %d: faltan nombre o código de empleado", row.Line))
			im.log.Warn().Int("row", row.Line).Msg("import row missing required fields")
			rep.Rows = append(rep.Rows, row)
			continue
		}

		if first, ok := seen[code]; ok {
			row.Status = RowDuplicate
			rep.Duplicates++
			im.log.Warn().Int("row", row.Line).Int("first_row", first).Str("employee_code", code).Msg("employee code repeated in sheet")
			rep.Rows = append(rep.Rows, row)
			continue
		}
		seen[code] = row.Line

		existing, err := im.store.FindByEmployeeCode(ctx, code)
		switch {
		case errors.Is(err, common.ErrNotFound):
			row.Status = RowNew
			rep.ToGenerate++
		case err != nil:
			return rep, err
		default:
			row.Existing = &existing
			if im.imageValid(existing) {
				row.Status = RowDuplicate
				rep.Duplicates++
			} else {
				row.Status = RowInvalidExisting
				rep.InvalidExisting++
			}
		}
		rep.Rows = append(rep.Rows, row)
	}

	im.log.Info().
		Str("path", path).
		Int("total", rep.Total).
		Int("to_generate", rep.ToGenerate).
		Int("duplicates", rep.Duplicates).
		Int("invalid_existing", rep.InvalidExisting).
		Int("errors", rep.Errors).
		Msg("import validated")
	return rep, nil
}

// imageValid reports whether rec's image decodes to its value. A record
// without an image has nothing to check and counts as valid.
func (im *Importer) imageValid(rec store.BarcodeRecord) bool {
	if rec.ImageFilename == "" {
		return true
	}
	format := rec.Format
	if format == "" {
		format = barcode.Code128
	}
	return im.engine.VerifyImage(im.store.ImagePath(rec.ImageFilename), rec.BarcodeValue, format) == nil
}

// Generate validates path again and issues a barcode for every new row, and
// for invalid existing rows when opts.RegenerateInvalid is set; the old
// record and image are deleted first. Row failures are collected and do not
// stop the import. Cancellation is observed between rows and leaves the
// result with Cancelled set and a nil error.
func (im *Importer) Generate(ctx context.Context, path string, opts GenerateOptions, progress common.ProgressFunc) (GenerateResult, error) {
	rep, err := im.Validate(ctx, path)
	if err != nil {
		return GenerateResult{}, err
	}
	res := GenerateResult{Report: rep}

	var work []Row
	for _, row := range rep.Rows {
		if row.Status == RowNew || (row.Status == RowInvalidExisting && opts.RegenerateInvalid) {
			work = append(work, row)
		} else {
			res.Skipped++
		}
	}

	current := 0
	prevState := im.issuer.OnState
	im.issuer.OnState = func(s common.State) {
		progress.Report(common.Progress{
			Current: current, Total: len(work), Remaining: len(work) - current, State: s,
			Message: fmt.Sprintf("Procesando %d de %d", current, len(work)),
		})
	}
	defer func() { im.issuer.OnState = prevState }()

	for i, row := range work {
		if err := ctx.Err(); err != nil {
			res.Cancelled = true
			break
		}
		current = i + 1

		if row.Status == RowInvalidExisting {
			if _, err := im.store.Delete(ctx, row.Existing.ID, true); err != nil {
				res.Failed++
				res.Errors = append(res.Errors, fmt.Sprintf("fila %d: %v", row.Line, err))
				continue
			}
		}

		first, last := store.SplitFullName(row.FullName)
		_, err := im.issuer.Issue(ctx, issue.Request{
			FirstNames:   first,
			LastNames:    last,
			EmployeeCode: row.EmployeeCode,
			Format:       row.Format,
		})
		switch {
		case errors.Is(err, common.ErrCancelled):
			res.Cancelled = true
		case err != nil:
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("fila %d: %v", row.Line, err))
		case row.Status == RowInvalidExisting:
			res.Regenerated++
		default:
			res.Generated++
		}
		if res.Cancelled {
			break
		}
	}

	if res.Cancelled {
		done := res.Generated + res.Regenerated + res.Failed
		progress.Report(common.Progress{
			Current: done, Total: len(work), Remaining: len(work) - done,
			State: common.StateCancelled, Message: "cancelado",
		})
	}
	im.log.Info().
		Str("path", path).
		Int("generated", res.Generated).
		Int("regenerated", res.Regenerated).
		Int("failed", res.Failed).
		Bool("cancelled", res.Cancelled).
		Msg("import finished")
	return res, nil
}
