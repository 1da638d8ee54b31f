package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironsheep/carnet-tools/internal/common"
)

// ReclaimOrphans removes PNGs in the images directory that no record or
// service references. It returns the number removed and any per-file errors.
func (s *Store) ReclaimOrphans(ctx context.Context) (int, []error) {
	referenced, err := s.referencedImages(ctx)
	if err != nil {
		return 0, []error{err}
	}

	entries, err := os.ReadDir(s.imagesDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, []error{fmt.Errorf("%w: read images dir: %w", common.ErrStorage, err)}
	}

	var (
		reclaimed int
		errs      []error
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".png") || referenced[name] {
			continue
		}
		if err := os.Remove(filepath.Join(s.imagesDir, name)); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", name, err))
			continue
		}
		reclaimed++
	}
	if reclaimed > 0 || len(errs) > 0 {
		s.log.Info().Int("reclaimed", reclaimed).Int("errors", len(errs)).Msg("orphan images reclaimed")
	}
	return reclaimed, errs
}

func (s *Store) referencedImages(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT nombre_archivo FROM codigos_barras WHERE nombre_archivo IS NOT NULL AND nombre_archivo != ''
		UNION
		SELECT nombre_archivo FROM servicios WHERE nombre_archivo IS NOT NULL AND nombre_archivo != ''`)
	if err != nil {
		return nil, storageErr("referenced images", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, storageErr("referenced images", err)
		}
		out[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("referenced images", err)
	}
	return out, nil
}
