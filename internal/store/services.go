package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ironsheep/carnet-tools/internal/barcode"
	"github.com/ironsheep/carnet-tools/internal/common"
	"github.com/ironsheep/carnet-tools/internal/dbx"
)

// ServiceRecord is a barcode issued for a service rather than an employee.
type ServiceRecord struct {
	ID            int64
	BarcodeValue  string
	UniqueID      string
	CreatedAt     time.Time
	ServiceName   string
	CaptionPx     int
	Format        barcode.Format
	ImageFilename string
}

// NewService is the input to InsertService.
type NewService struct {
	BarcodeValue  string `validate:"required"`
	UniqueID      string `validate:"required"`
	ServiceName   string `validate:"required"`
	CaptionPx     int    `validate:"min=10"`
	Format        string `validate:"oneof=Code128 EAN13 EAN8 Code39"`
	ImageFilename string
}

// ServiceExists reports whether a service already uses the value or ID.
func (s *Store) ServiceExists(ctx context.Context, barcodeValue, uniqueID string) (bool, error) {
	return existsIn(ctx, s.db, "servicios", barcodeValue, uniqueID)
}

// ServiceProbe adapts ServiceExists to the minter's collision probe.
func (s *Store) ServiceProbe(ctx context.Context) func(string) (bool, error) {
	return func(candidate string) (bool, error) {
		return s.ServiceExists(ctx, candidate, candidate)
	}
}

// InsertService adds a service. It returns false when the value or ID is taken.
func (s *Store) InsertService(ctx context.Context, svc NewService) (bool, error) {
	if err := validate.Struct(svc); err != nil {
		return false, fmt.Errorf("%w: invalid service: %w", common.ErrFormat, err)
	}
	_, err := dbx.ExecOne(ctx, s.db, `
		INSERT INTO servicios (codigo_barras, id_unico, fecha_creacion, nombre_servicio, tamano_letra, formato, nombre_archivo)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		svc.BarcodeValue, svc.UniqueID, timestamp(s.now()), svc.ServiceName, svc.CaptionPx, svc.Format, nullable(svc.ImageFilename))
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return false, nil
		}
		return false, storageErr("insert service", err)
	}
	return true, nil
}

// Services returns every service, newest first.
func (s *Store) Services(ctx context.Context) ([]ServiceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, codigo_barras, id_unico, fecha_creacion, nombre_servicio, tamano_letra, formato, nombre_archivo
		FROM servicios ORDER BY fecha_creacion DESC, id DESC`)
	if err != nil {
		return nil, storageErr("services", err)
	}
	defer rows.Close()

	var out []ServiceRecord
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, storageErr("services", err)
		}
		out = append(out, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("services", err)
	}
	return out, nil
}

func scanService(sc interface{ Scan(...any) error }) (ServiceRecord, error) {
	var (
		svc      ServiceRecord
		created  any
		format   string
		filename sql.NullString
	)
	if err := sc.Scan(&svc.ID, &svc.BarcodeValue, &svc.UniqueID, &created, &svc.ServiceName,
		&svc.CaptionPx, &format, &filename); err != nil {
		return ServiceRecord{}, err
	}
	svc.CreatedAt = parseTime(created)
	svc.Format = barcode.Format(format)
	svc.ImageFilename = filename.String
	return svc, nil
}

// DeleteService removes one service after backing the database up.
func (s *Store) DeleteService(ctx context.Context, id int64, alsoImage bool) (bool, error) {
	svc, err := scanService(s.db.QueryRowContext(ctx, `
		SELECT id, codigo_barras, id_unico, fecha_creacion, nombre_servicio, tamano_letra, formato, nombre_archivo
		FROM servicios WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("get service", err)
	}

	if _, err := s.Backup(ctx, fmt.Sprintf("antes_eliminar_servicio_%d", id)); err != nil {
		return false, fmt.Errorf("refusing to delete without backup: %w", err)
	}
	if _, err := dbx.ExecOne(ctx, s.db, "DELETE FROM servicios WHERE id = ?", id); err != nil {
		return false, storageErr("delete service", err)
	}
	if alsoImage && svc.ImageFilename != "" {
		s.unlink(svc.ImageFilename)
	}
	return true, nil
}
