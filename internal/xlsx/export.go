// Package xlsx moves badge records in and out of Excel workbooks.
//
// Export writes every stored record to a new workbook. Import runs in two
// passes: Validate classifies each row without writing anything, and
// Generate issues barcodes for the rows Validate accepted.
package xlsx

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/ironsheep/carnet-tools/internal/barcode"
	"github.com/ironsheep/carnet-tools/internal/common"
	"github.com/ironsheep/carnet-tools/internal/store"
)

// Column headers.
const (
	ColID           = "ID"
	ColBarcode      = "Código de Barras"
	ColUniqueID     = "ID Único"
	ColCreatedAt    = "Fecha de Creación"
	ColEmployeeName = "Nombre del Empleado"
	ColEmployeeCode = "Código de Empleado"
	ColFormat       = "Formato"
	ColFormatOpt    = "Formato (opcional)"
)

// ExportColumns is the header row written by Export.
var ExportColumns = []string{ColID, ColBarcode, ColUniqueID, ColCreatedAt, ColEmployeeName, ColEmployeeCode, ColFormat}

const (
	exportSheet = "Códigos de Barras"
	timeLayout  = "2006-01-02 15:04:05"
	headerFill  = "4472C4"
)

// columnWidths per export column, in Excel character units.
var columnWidths = []float64{20, 25, 20, 22, 25, 22, 20}

// Exporter writes the record table to a workbook.
type Exporter struct {
	store *store.Store
	log   zerolog.Logger
}

// NewExporter returns an Exporter reading from st.
func NewExporter(st *store.Store, log zerolog.Logger) *Exporter {
	return &Exporter{store: st, log: log.With().Str("component", "xlsx").Logger()}
}

// Export writes all records to path and returns the number of data rows.
// Records without a format get defaultFormat, or Code128 when that is empty.
func (e *Exporter) Export(ctx context.Context, path string, defaultFormat barcode.Format) (int, error) {
	if defaultFormat == "" {
		defaultFormat = barcode.Code128
	}
	records, err := e.store.All(ctx)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	if err := writeHeader(f, exportSheet, ExportColumns); err != nil {
		return 0, fmt.Errorf("%w: header: %w", common.ErrStorage, err)
	}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("%w: %w", common.ErrCancelled, err)
		}
		format := rec.Format
		if format == "" {
			format = defaultFormat
		}
		row := []any{
			rec.ID,
			rec.BarcodeValue,
			rec.UniqueID,
			rec.CreatedAt.Format(timeLayout),
			rec.FullName,
			rec.EmployeeCode,
			string(format),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return 0, fmt.Errorf("%w: row %d: %w", common.ErrStorage, i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return 0, fmt.Errorf("%w: save %s: %w", common.ErrStorage, path, err)
	}
	e.log.Info().Str("path", path).Int("rows", len(records)).Msg("records exported")
	return len(records), nil
}

// writeHeader writes cols to row 1 in white bold on blue and sets the
// column widths.
func writeHeader(f *excelize.File, sheet string, cols []string) error {
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFill}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(cols), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return err
	}

	for i := range cols {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		width := 20.0
		if i < len(columnWidths) {
			width = columnWidths[i]
		}
		if err := f.SetColWidth(sheet, name, name, width); err != nil {
			return err
		}
	}
	return nil
}
