package carnet

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ironsheep/carnet-tools/internal/common"
	"github.com/ironsheep/carnet-tools/internal/render"
	"github.com/ironsheep/carnet-tools/internal/store"
)

// Batch is a list of records rendered into one ZIP.
type Batch struct {
	Records   []store.BarcodeRecord
	Template  *render.Template
	Vars      render.Variables
	TargetZip string
	Format    Format
	Verify    bool
}

// BatchResult summarizes RenderMany.
type BatchResult struct {
	Total     int
	Completed int
	Failed    int
	Cancelled bool
	// ZipPath is empty unless the ZIP was written.
	ZipPath  string
	Entries  []string
	Warnings []string
	Errors   []string
}

// RenderMany renders every record in order into a temporary directory and
// then packs the artifacts into TargetZip in record order.
//
// Per-record failures are collected in Errors and do not stop the batch.
// When ctx is cancelled, the render in flight finishes, no further record is
// started, the temporary directory is removed and no ZIP is written; the
// result has Cancelled set and a nil error.
func (o *Orchestrator) RenderMany(ctx context.Context, b Batch, progress common.ProgressFunc) (BatchResult, error) {
	res := BatchResult{Total: len(b.Records)}
	if b.TargetZip == "" {
		return res, fmt.Errorf("%w: no target zip", common.ErrStorage)
	}

	parent := o.opts.TempDir
	if parent == "" {
		parent = os.TempDir()
	}
	tmp := filepath.Join(parent, "carnets-"+uuid.NewString())
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return res, fmt.Errorf("%w: temp dir: %w", common.ErrStorage, err)
	}
	defer os.RemoveAll(tmp)

	var files []string
	for i, rec := range b.Records {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		rep := reporter{fn: progress, current: i + 1, total: len(b.Records)}
		rep.emit(common.StateCompose, "Generando carnet %d de %d: %s", i+1, len(b.Records), fullName(rec))

		entry := EntryName(rec, b.Format)
		out, err := o.renderOne(ctx, Job{
			Record:     rec,
			Template:   b.Template,
			Vars:       b.Vars,
			Output:     filepath.Join(tmp, entry),
			Format:     b.Format,
			Verify:     b.Verify,
			MaxRetries: o.opts.RetriesBatch,
		}, rep)
		switch {
		case errors.Is(err, common.ErrCancelled):
			res.Cancelled = true
		case err != nil:
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rec.UniqueID, err))
			rep.emit(common.StateFailed, "%s: %v", fullName(rec), err)
		default:
			res.Completed++
			files = append(files, entry)
			if out.Warning != "" {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %s", rec.UniqueID, out.Warning))
			}
			rep.emit(common.StateAccepted, "%s: listo", fullName(rec))
		}
		if res.Cancelled || ctx.Err() != nil {
			res.Cancelled = true
			break
		}
	}

	if res.Cancelled {
		o.log.Info().Int("completed", res.Completed).Int("total", res.Total).Msg("batch cancelled")
		progress.Report(common.Progress{
			Current: res.Completed, Total: res.Total, Remaining: res.Total - res.Completed,
			State: common.StateCancelled, Message: "cancelado",
		})
		return res, nil
	}

	if err := writeZip(b.TargetZip, tmp, files); err != nil {
		return res, err
	}
	res.ZipPath = b.TargetZip
	res.Entries = files
	o.log.Info().
		Str("zip", b.TargetZip).
		Int("completed", res.Completed).
		Int("failed", res.Failed).
		Int("warnings", len(res.Warnings)).
		Msg("batch written")
	return res, nil
}

// writeZip deflates files from dir into target, in order. The archive is
// assembled next to target and renamed into place when complete.
func writeZip(target, dir string, files []string) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir: %w", common.ErrStorage, err)
	}
	part, err := os.CreateTemp(filepath.Dir(target), ".carnets-*.zip.part")
	if err != nil {
		return fmt.Errorf("%w: create zip: %w", common.ErrStorage, err)
	}
	defer func() {
		if err != nil {
			part.Close()
			os.Remove(part.Name())
		}
	}()

	zw := zip.NewWriter(part)
	for _, name := range files {
		if err := addFile(zw, filepath.Join(dir, name), name); err != nil {
			return fmt.Errorf("%w: zip %s: %w", common.ErrStorage, name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: zip: %w", common.ErrStorage, err)
	}
	if err := part.Close(); err != nil {
		return fmt.Errorf("%w: zip: %w", common.ErrStorage, err)
	}
	if err := os.Rename(part.Name(), target); err != nil {
		return fmt.Errorf("%w: zip: %w", common.ErrStorage, err)
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
