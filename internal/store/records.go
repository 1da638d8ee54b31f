package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ironsheep/carnet-tools/internal/barcode"
	"github.com/ironsheep/carnet-tools/internal/common"
	"github.com/ironsheep/carnet-tools/internal/dbx"
	"github.com/ironsheep/carnet-tools/internal/minter"
)

// BarcodeRecord is one issued employee badge.
//
// Records are only built by the row materializer, which fills both name
// shapes regardless of which columns the database file carries.
type BarcodeRecord struct {
	ID            int64
	BarcodeValue  string
	UniqueID      string
	CreatedAt     time.Time
	FirstNames    string
	LastNames     string
	FullName      string
	EmployeeCode  string
	Format        barcode.Format
	ImageFilename string // empty for legacy rows without an image
}

// NewRecord is the input to Insert.
type NewRecord struct {
	BarcodeValue  string `validate:"required"`
	UniqueID      string `validate:"required"`
	Format        string `validate:"oneof=Code128 EAN13 EAN8 Code39"`
	FirstNames    string
	LastNames     string
	EmployeeCode  string `validate:"required"`
	ImageFilename string
}

var validate = validator.New()

// columnSet records which optional name columns the table carries.
type columnSet struct {
	legacyName bool // nombre_empleado
	splitNames bool // nombres, apellidos
}

func readColumns(ctx context.Context, db dbx.DBTX, table string) (columnSet, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return columnSet{}, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	names := map[string]bool{}
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return columnSet{}, fmt.Errorf("table_info %s: %w", table, err)
		}
		names[name] = true
	}
	if err := rows.Err(); err != nil {
		return columnSet{}, err
	}
	return columnSet{
		legacyName: names["nombre_empleado"],
		splitNames: names["nombres"] && names["apellidos"],
	}, nil
}

func (c columnSet) selectList() string {
	cols := []string{"id", "codigo_barras", "id_unico", "fecha_creacion", "descripcion", "formato", "nombre_archivo"}
	if c.legacyName {
		cols = append(cols, "nombre_empleado")
	}
	if c.splitNames {
		cols = append(cols, "nombres", "apellidos")
	}
	return strings.Join(cols, ", ")
}

func (c columnSet) nameColumns() []string {
	var cols []string
	if c.legacyName {
		cols = append(cols, "nombre_empleado")
	}
	if c.splitNames {
		cols = append(cols, "nombres", "apellidos")
	}
	return cols
}

type rawRow struct {
	id         int64
	value      string
	uniqueID   string
	created    any
	code       sql.NullString
	format     string
	filename   sql.NullString
	fullName   sql.NullString
	firstNames sql.NullString
	lastNames  sql.NullString
}

func (c columnSet) scan(sc interface{ Scan(...any) error }) (rawRow, error) {
	var r rawRow
	dest := []any{&r.id, &r.value, &r.uniqueID, &r.created, &r.code, &r.format, &r.filename}
	if c.legacyName {
		dest = append(dest, &r.fullName)
	}
	if c.splitNames {
		dest = append(dest, &r.firstNames, &r.lastNames)
	}
	err := sc.Scan(dest...)
	return r, err
}

func materialize(r rawRow) BarcodeRecord {
	rec := BarcodeRecord{
		ID:            r.id,
		BarcodeValue:  r.value,
		UniqueID:      r.uniqueID,
		CreatedAt:     parseTime(r.created),
		FirstNames:    strings.TrimSpace(r.firstNames.String),
		LastNames:     strings.TrimSpace(r.lastNames.String),
		FullName:      strings.TrimSpace(r.fullName.String),
		EmployeeCode:  r.code.String,
		Format:        barcode.Format(r.format),
		ImageFilename: r.filename.String,
	}
	switch {
	case rec.FirstNames == "" && rec.LastNames == "" && rec.FullName != "":
		rec.FirstNames, rec.LastNames = SplitFullName(rec.FullName)
	case rec.FullName == "":
		rec.FullName = JoinNames(rec.FirstNames, rec.LastNames)
	}
	return rec
}

// SplitFullName splits a single name string into first and last names:
// one word is all first name, two and three words keep one first name,
// four or more keep two.
func SplitFullName(full string) (first, last string) {
	words := strings.Fields(full)
	switch len(words) {
	case 0:
		return "", ""
	case 1:
		return words[0], ""
	case 2, 3:
		return words[0], strings.Join(words[1:], " ")
	default:
		return strings.Join(words[:2], " "), strings.Join(words[2:], " ")
	}
}

// JoinNames joins first and last names with a single space.
func JoinNames(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// Exists reports whether any record has the given barcode value or unique
// ID. Empty arguments are ignored; with both empty the answer is false.
func (s *Store) Exists(ctx context.Context, barcodeValue, uniqueID string) (bool, error) {
	return existsIn(ctx, s.db, "codigos_barras", barcodeValue, uniqueID)
}

func existsIn(ctx context.Context, db dbx.DBTX, table, barcodeValue, uniqueID string) (bool, error) {
	var (
		conds []string
		args  []any
	)
	if barcodeValue != "" {
		conds = append(conds, "codigo_barras = ?")
		args = append(args, barcodeValue)
	}
	if uniqueID != "" {
		conds = append(conds, "id_unico = ?")
		args = append(args, uniqueID)
	}
	if len(conds) == 0 {
		return false, nil
	}
	q := "SELECT EXISTS(SELECT 1 FROM " + table + " WHERE " + strings.Join(conds, " OR ") + ")"
	var found bool
	if err := db.QueryRowContext(ctx, q, args...).Scan(&found); err != nil {
		return false, storageErr("exists", err)
	}
	return found, nil
}

// Insert adds a record in one transaction. It returns false without error
// when the barcode value or unique ID is already taken.
func (s *Store) Insert(ctx context.Context, rec NewRecord) (bool, error) {
	if err := validate.Struct(rec); err != nil {
		return false, fmt.Errorf("%w: invalid record: %w", common.ErrFormat, err)
	}

	cols := []string{"codigo_barras", "id_unico", "fecha_creacion", "descripcion", "formato", "nombre_archivo"}
	args := []any{rec.BarcodeValue, rec.UniqueID, timestamp(s.now()), rec.EmployeeCode, rec.Format, nullable(rec.ImageFilename)}
	if s.cols.legacyName {
		cols = append(cols, "nombre_empleado")
		args = append(args, JoinNames(rec.FirstNames, rec.LastNames))
	}
	if s.cols.splitNames {
		cols = append(cols, "nombres", "apellidos")
		args = append(args, strings.TrimSpace(rec.FirstNames), strings.TrimSpace(rec.LastNames))
	}
	q := "INSERT INTO codigos_barras (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	if _, err := dbx.ExecOne(ctx, s.db, q, args...); err != nil {
		if dbx.IsUniqueViolation(err) {
			s.log.Debug().Str("value", rec.BarcodeValue).Msg("insert rejected by unique constraint")
			return false, nil
		}
		return false, storageErr("insert", err)
	}
	return true, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// All returns every record, newest first.
func (s *Store) All(ctx context.Context) ([]BarcodeRecord, error) {
	return s.query(ctx, "", nil)
}

// Search returns records whose barcode value, unique ID, names or employee
// code contain term. Matching is case-sensitive.
func (s *Store) Search(ctx context.Context, term string) ([]BarcodeRecord, error) {
	if term == "" {
		return s.All(ctx)
	}
	fields := append([]string{"codigo_barras", "id_unico", "descripcion"}, s.cols.nameColumns()...)
	conds := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, f := range fields {
		conds[i] = "instr(COALESCE(" + f + ", ''), ?) > 0"
		args[i] = term
	}
	return s.query(ctx, "WHERE "+strings.Join(conds, " OR "), args)
}

func (s *Store) query(ctx context.Context, where string, args []any) ([]BarcodeRecord, error) {
	q := "SELECT " + s.cols.selectList() + " FROM codigos_barras " + where +
		" ORDER BY fecha_creacion DESC, id DESC"
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("query", err)
	}
	defer rows.Close()

	var out []BarcodeRecord
	for rows.Next() {
		raw, err := s.cols.scan(rows)
		if err != nil {
			return nil, storageErr("scan", err)
		}
		out = append(out, materialize(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("rows", err)
	}
	return out, nil
}

// Get returns the record with the given id or common.ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (BarcodeRecord, error) {
	return s.one(ctx, "WHERE id = ?", id)
}

// FindByEmployeeCode returns the newest record for an employee code or
// common.ErrNotFound.
func (s *Store) FindByEmployeeCode(ctx context.Context, code string) (BarcodeRecord, error) {
	return s.one(ctx, "WHERE descripcion = ?", code)
}

// FindByUniqueID returns the record with the given unique ID or
// common.ErrNotFound.
func (s *Store) FindByUniqueID(ctx context.Context, uniqueID string) (BarcodeRecord, error) {
	return s.one(ctx, "WHERE id_unico = ?", uniqueID)
}

func (s *Store) one(ctx context.Context, where string, arg any) (BarcodeRecord, error) {
	q := "SELECT " + s.cols.selectList() + " FROM codigos_barras " + where +
		" ORDER BY fecha_creacion DESC, id DESC LIMIT 1"
	raw, err := s.cols.scan(s.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return BarcodeRecord{}, common.ErrNotFound
	}
	if err != nil {
		return BarcodeRecord{}, storageErr("get", err)
	}
	return materialize(raw), nil
}

// Delete removes one record after backing the database up. The image is
// unlinked best-effort when alsoImage is set. It returns false when no
// record has that id.
func (s *Store) Delete(ctx context.Context, id int64, alsoImage bool) (bool, error) {
	rec, err := s.Get(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := s.Backup(ctx, fmt.Sprintf("antes_eliminar_id_%d", id)); err != nil {
		return false, fmt.Errorf("refusing to delete without backup: %w", err)
	}

	affected, err := dbx.ExecOne(ctx, s.db, "DELETE FROM codigos_barras WHERE id = ?", id)
	if err != nil {
		return false, storageErr("delete", err)
	}

	if alsoImage && rec.ImageFilename != "" {
		s.unlink(rec.ImageFilename)
	}
	s.log.Info().Int64("id", id).Str("unique_id", rec.UniqueID).Msg("record deleted")
	return affected > 0, nil
}

// Wipe deletes every record after backing the database up. If the backup
// file does not materialize nothing is deleted.
func (s *Store) Wipe(ctx context.Context, alsoImages bool) (bool, error) {
	path, err := s.Backup(ctx, "antes_limpiar_todo")
	if err != nil {
		return false, fmt.Errorf("refusing to wipe without backup: %w", err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		return false, fmt.Errorf("%w: backup %s did not materialize", common.ErrStorage, path)
	}

	var files []string
	err = dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		rows, err := tx.QueryContext(ctx, "SELECT nombre_archivo FROM codigos_barras WHERE nombre_archivo IS NOT NULL AND nombre_archivo != ''")
		if err != nil {
			return err
		}
		for rows.Next() {
			var f string
			if err := rows.Scan(&f); err != nil {
				rows.Close()
				return err
			}
			files = append(files, f)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM codigos_barras")
		return err
	})
	if err != nil {
		return false, storageErr("wipe", err)
	}

	if alsoImages {
		for _, f := range files {
			s.unlink(f)
		}
	}
	s.log.Warn().Int("images", len(files)).Bool("images_removed", alsoImages).Msg("all records wiped")
	return true, nil
}

func (s *Store) unlink(filename string) {
	err := os.Remove(s.ImagePath(filename))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Err(err).Str("file", filename).Msg("could not remove image")
	}
}

// NewUniqueID mints a 6-character upper-case alphanumeric value unused as
// either a barcode value or a unique ID.
func (s *Store) NewUniqueID(ctx context.Context) (string, error) {
	id, err := s.minter.Mint(minter.Options{Charset: minter.Alphanumeric, Length: 6}, s.Probe(ctx))
	if err != nil {
		if errors.Is(err, common.ErrIDSpaceExhausted) {
			return "", fmt.Errorf("%w: %w", common.ErrStorage, err)
		}
		return "", err
	}
	return id, nil
}

// Probe adapts Exists to the minter's collision probe.
func (s *Store) Probe(ctx context.Context) minter.ExistsFunc {
	return func(candidate string) (bool, error) {
		return s.Exists(ctx, candidate, candidate)
	}
}

// Stats summarizes the records table.
type Stats struct {
	Total   int
	Formats int
}

// Stats returns the row count and the number of distinct formats.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), COUNT(DISTINCT formato) FROM codigos_barras").
		Scan(&st.Total, &st.Formats)
	if err != nil {
		return Stats{}, storageErr("stats", err)
	}
	return st, nil
}
