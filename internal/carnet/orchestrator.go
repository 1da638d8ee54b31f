// Package carnet turns stored badge records into printable carnets: it fills
// an HTML template, renders it, checks the result with OCR and writes PNG or
// PDF artifacts, one at a time or as a ZIP batch.
package carnet

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ironsheep/carnet-tools/internal/common"
	"github.com/ironsheep/carnet-tools/internal/imaging"
	"github.com/ironsheep/carnet-tools/internal/ocr"
	"github.com/ironsheep/carnet-tools/internal/render"
	"github.com/ironsheep/carnet-tools/internal/store"
)

// Renderer rasterizes HTML. *render.Renderer implements it.
type Renderer interface {
	Render(ctx context.Context, html string, w300, h300, dpi int) (image.Image, error)
}

// Verifier checks an artifact for legible fields. *ocr.Verifier implements it.
type Verifier interface {
	Available() bool
	Verify(path string, exp ocr.Expected) ocr.Result
}

// Warnings attached to accepted results.
const (
	WarnVerificationIncomplete = "verification incomplete"
	WarnVerificationDisabled   = "verification disabled: ocr unavailable"
)

// Options configures an Orchestrator.
type Options struct {
	PNGDPI         int
	PDFDPI         int
	RenderAttempts int
	RetriesSingle  int
	RetriesBatch   int
	// ImagesDir holds the barcode PNGs referenced by records.
	ImagesDir string
	// TempDir is the parent of batch working directories; empty means os.TempDir.
	TempDir string
}

// DefaultOptions returns 600/1200 DPI, five render attempts and 3/2 OCR retries.
func DefaultOptions(imagesDir string) Options {
	return Options{
		PNGDPI:         600,
		PDFDPI:         1200,
		RenderAttempts: 5,
		RetriesSingle:  3,
		RetriesBatch:   2,
		ImagesDir:      imagesDir,
	}
}

// Orchestrator produces carnets. It is not safe for concurrent use.
type Orchestrator struct {
	renderer Renderer
	verifier Verifier
	opts     Options
	log      zerolog.Logger
}

// NewOrchestrator wires a renderer and an optional verifier.
func NewOrchestrator(renderer Renderer, verifier Verifier, opts Options, log zerolog.Logger) *Orchestrator {
	def := DefaultOptions(opts.ImagesDir)
	if opts.PNGDPI <= 0 {
		opts.PNGDPI = def.PNGDPI
	}
	if opts.PDFDPI <= 0 {
		opts.PDFDPI = def.PDFDPI
	}
	if opts.RenderAttempts <= 0 {
		opts.RenderAttempts = def.RenderAttempts
	}
	if opts.RetriesSingle <= 0 {
		opts.RetriesSingle = def.RetriesSingle
	}
	if opts.RetriesBatch <= 0 {
		opts.RetriesBatch = def.RetriesBatch
	}
	return &Orchestrator{
		renderer: renderer,
		verifier: verifier,
		opts:     opts,
		log:      log.With().Str("component", "carnet").Logger(),
	}
}

// Job is one carnet to produce.
type Job struct {
	Record   store.BarcodeRecord
	Template *render.Template
	Vars     render.Variables
	Output   string
	Format   Format
	Verify   bool
	// MaxRetries bounds OCR attempts; zero uses the single-record default.
	MaxRetries int
}

// Result describes a produced carnet.
type Result struct {
	Path           string
	State          common.State
	RenderAttempts int
	OCRAttempts    int
	Verified       bool
	// Warning is set when the artifact was kept without full verification.
	Warning string
}

// reporter emits progress for the record at position current of total.
type reporter struct {
	fn      common.ProgressFunc
	current int
	total   int
}

func (r reporter) emit(st common.State, format string, args ...any) {
	r.fn.Report(common.Progress{
		Current:   r.current,
		Total:     r.total,
		Remaining: r.total - r.current,
		State:     st,
		Message:   fmt.Sprintf(format, args...),
	})
}

// RenderOne renders, writes and verifies one carnet.
//
// Render failures are retried up to RenderAttempts times. When OCR rejects the
// artifact it is removed and the whole pipeline reruns, up to job.MaxRetries
// times; after the last failure the artifact stays on disk and the result
// carries WarnVerificationIncomplete. Cancellation is observed before and
// after each render attempt and between OCR retries; an artifact produced
// after cancellation is discarded.
func (o *Orchestrator) RenderOne(ctx context.Context, job Job, progress common.ProgressFunc) (Result, error) {
	return o.renderOne(ctx, job, reporter{fn: progress, current: 1, total: 1})
}

func (o *Orchestrator) renderOne(ctx context.Context, job Job, rep reporter) (Result, error) {
	res := Result{Path: job.Output, State: common.StateCompose}
	if job.Template == nil {
		res.State = common.StateFailed
		return res, fmt.Errorf("%w: no template", common.ErrRenderFailed)
	}
	if !job.Format.Valid() {
		res.State = common.StateFailed
		return res, fmt.Errorf("%w: output format %q", common.ErrFormat, string(job.Format))
	}

	verifying := job.Verify && o.verifier != nil && o.verifier.Available()
	if job.Verify && !verifying {
		res.Warning = WarnVerificationDisabled
	}
	retries := job.MaxRetries
	if retries <= 0 {
		retries = o.opts.RetriesSingle
	}
	if !verifying {
		retries = 1
	}

	vars := BuildVariables(job.Record, job.Template, job.Vars, o.opts.ImagesDir)
	doc := render.Inject(job.Template.HTML, vars)
	dpi := o.opts.PNGDPI
	if job.Format == PDF {
		dpi = o.opts.PDFDPI
	}
	exp := expectedFields(job.Record, job.Template)
	name := fullName(job.Record)

	for try := 1; try <= retries; try++ {
		if err := ctx.Err(); err != nil {
			return o.cancelled(res, err)
		}

		res.State = common.StateCompose
		rep.emit(res.State, "%s: rendering", name)
		img, attempts, err := o.renderAttempts(ctx, doc, job.Template, dpi)
		res.RenderAttempts += attempts
		if err != nil {
			if errors.Is(err, common.ErrCancelled) {
				return o.cancelled(res, err)
			}
			res.State = common.StateFailed
			return res, err
		}

		res.State = common.StateWriteArtifact
		if err := writeArtifact(job.Output, img, job.Format, dpi); err != nil {
			res.State = common.StateFailed
			return res, err
		}
		if !verifying {
			break
		}

		res.State = common.StateVerifyRender
		res.OCRAttempts++
		check := o.verifier.Verify(job.Output, exp)
		if check.OK {
			res.Verified = true
			break
		}
		o.log.Debug().Str("record", job.Record.UniqueID).Int("try", try).Str("ocr", check.Message).Msg("ocr rejected carnet")
		if try == retries {
			res.Warning = WarnVerificationIncomplete
			rep.emit(res.State, "%s: %s (%s)", name, WarnVerificationIncomplete, check.Message)
			break
		}
		rep.emit(res.State, "%s: OCR retry %d/%d (%s)", name, try+1, retries, check.Message)
		_ = os.Remove(job.Output)
	}

	res.State = common.StateAccepted
	o.log.Info().
		Str("record", job.Record.UniqueID).
		Str("file", filepath.Base(job.Output)).
		Int("render_attempts", res.RenderAttempts).
		Bool("verified", res.Verified).
		Str("warning", res.Warning).
		Msg("carnet written")
	return res, nil
}

func (o *Orchestrator) cancelled(res Result, err error) (Result, error) {
	res.State = common.StateCancelled
	if errors.Is(err, common.ErrCancelled) {
		return res, err
	}
	return res, fmt.Errorf("%w: %w", common.ErrCancelled, err)
}

// renderAttempts calls the renderer until it returns a non-blank image.
func (o *Orchestrator) renderAttempts(ctx context.Context, doc string, tpl *render.Template, dpi int) (image.Image, int, error) {
	var lastErr error
	for attempt := 1; attempt <= o.opts.RenderAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt - 1, fmt.Errorf("%w: %w", common.ErrCancelled, err)
		}
		img, err := o.renderer.Render(ctx, doc, tpl.Width, tpl.Height, dpi)
		if err := ctx.Err(); err != nil {
			return nil, attempt, fmt.Errorf("%w: %w", common.ErrCancelled, err)
		}
		switch {
		case err != nil:
			lastErr = err
		case imaging.IsBlank(img, 5, 100):
			lastErr = fmt.Errorf("%w: blank frame", common.ErrRenderFailed)
		default:
			return img, attempt, nil
		}
		o.log.Debug().Int("attempt", attempt).Err(lastErr).Msg("render attempt failed")
	}
	if !errors.Is(lastErr, common.ErrRenderFailed) {
		lastErr = fmt.Errorf("%w: %w", common.ErrRenderFailed, lastErr)
	}
	return nil, o.opts.RenderAttempts, lastErr
}
