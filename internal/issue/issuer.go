// Package issue mints, rasterizes, verifies and stores new badge barcodes.
package issue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ironsheep/carnet-tools/internal/barcode"
	"github.com/ironsheep/carnet-tools/internal/common"
	"github.com/ironsheep/carnet-tools/internal/minter"
	"github.com/ironsheep/carnet-tools/internal/store"
)

// MaxReissue bounds how many fresh identifiers are tried when a new barcode
// fails round-trip verification or loses a uniqueness race on insert.
const MaxReissue = 3

// Request describes one employee badge to issue.
type Request struct {
	FirstNames   string
	LastNames    string
	EmployeeCode string
	Format       barcode.Format
	// Mint shapes the identifier. Name is filled from the request when
	// IncludeName is set. EAN formats always draw check-digit-completed digits.
	Mint      minter.Options
	CaptionPx int
}

// Issued is a stored record plus the quality report of its image.
type Issued struct {
	Record store.BarcodeRecord
	Audit  barcode.Audit
}

// Issuer runs mint, encode, verify and persist for new records.
type Issuer struct {
	store  *store.Store
	engine *barcode.Engine
	minter *minter.Minter
	log    zerolog.Logger

	// OnState observes each pipeline step.
	OnState func(common.State)
}

// New returns an Issuer that writes images with engine and rows into st.
func New(st *store.Store, engine *barcode.Engine, m *minter.Minter, log zerolog.Logger) *Issuer {
	if m == nil {
		m = minter.New()
	}
	return &Issuer{store: st, engine: engine, minter: m, log: log.With().Str("component", "issue").Logger()}
}

func (i *Issuer) state(s common.State) {
	if i.OnState != nil {
		i.OnState(s)
	}
}

// mintOptions adapts opts to the symbology: EAN payloads are numeric data
// digits without a name prefix.
func mintOptions(format barcode.Format, opts minter.Options, name string) minter.Options {
	if n := format.DataLength(); n > 0 {
		return minter.Options{Charset: minter.Numeric, Length: n, CustomText: opts.CustomText}
	}
	if opts.IncludeName {
		opts.Name = name
	}
	return opts
}

// mint draws an identifier that is unused according to exists.
func (i *Issuer) mint(format barcode.Format, opts minter.Options, exists minter.ExistsFunc) (string, error) {
	id, err := i.minter.Mint(opts, func(c string) (bool, error) {
		return exists(format.Complete(c))
	})
	if err != nil {
		return "", err
	}
	return format.Complete(id), nil
}

// abort reports the terminal state for err. Errors caused by a cancelled ctx
// are wrapped in common.ErrCancelled.
func (i *Issuer) abort(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, common.ErrCancelled) {
		err = fmt.Errorf("%w: %w", common.ErrCancelled, err)
	}
	if errors.Is(err, common.ErrCancelled) {
		i.state(common.StateCancelled)
	} else {
		i.state(common.StateFailed)
	}
	return err
}

// Issue creates one badge record.
//
// The image is written and verified before the row is inserted; if the insert
// fails the image is removed again. Verification failures and uniqueness
// races trigger a fresh identifier, up to MaxReissue times.
func (i *Issuer) Issue(ctx context.Context, req Request) (Issued, error) {
	if strings.TrimSpace(req.EmployeeCode) == "" {
		return Issued{}, fmt.Errorf("%w: employee code is required", common.ErrFormat)
	}
	if req.Format == "" {
		req.Format = barcode.Code128
	}
	if !req.Format.Valid() {
		return Issued{}, fmt.Errorf("%w: unsupported format %q", common.ErrFormat, string(req.Format))
	}
	fullName := store.JoinNames(req.FirstNames, req.LastNames)
	opts := mintOptions(req.Format, req.Mint, fullName)

	var lastErr error
	for attempt := 1; attempt <= MaxReissue; attempt++ {
		if err := ctx.Err(); err != nil {
			return Issued{}, i.abort(ctx, err)
		}

		i.state(common.StateMint)
		id, err := i.mint(req.Format, opts, i.store.Probe(ctx))
		if err != nil {
			return Issued{}, i.abort(ctx, err)
		}

		i.state(common.StateEncode)
		res, err := i.engine.Encode(ctx, barcode.Request{
			Payload:   id,
			Format:    req.Format,
			Caption:   id,
			CaptionPx: req.CaptionPx,
			FullName:  fullName,
		})
		i.state(common.StateVerifyEncode)
		if errors.Is(err, common.ErrVerification) && opts.CustomText == "" {
			i.log.Warn().Err(err).Str("id", id).Msg("barcode failed verification, minting a new id")
			lastErr = err
			continue
		}
		if err != nil {
			return Issued{}, i.abort(ctx, err)
		}

		i.state(common.StatePersist)
		ok, err := i.store.Insert(ctx, store.NewRecord{
			BarcodeValue:  id,
			UniqueID:      id,
			Format:        string(req.Format),
			FirstNames:    req.FirstNames,
			LastNames:     req.LastNames,
			EmployeeCode:  strings.TrimSpace(req.EmployeeCode),
			ImageFilename: res.Filename,
		})
		if err != nil || !ok {
			_ = os.Remove(res.Path)
		}
		if err != nil {
			return Issued{}, i.abort(ctx, err)
		}
		if !ok {
			lastErr = fmt.Errorf("%w: %s was taken before insert", common.ErrStorage, id)
			if opts.CustomText != "" {
				break
			}
			continue
		}

		rec, err := i.store.FindByUniqueID(ctx, id)
		if err != nil {
			return Issued{}, err
		}
		i.state(common.StateAccepted)
		i.log.Info().Str("id", id).Str("employee_code", rec.EmployeeCode).Str("file", res.Filename).Msg("barcode issued")
		return Issued{Record: rec, Audit: res.Audit}, nil
	}
	i.state(common.StateFailed)
	return Issued{}, fmt.Errorf("could not issue a barcode after %d attempts: %w", MaxReissue, lastErr)
}

// ServiceRequest describes a barcode issued for a service.
type ServiceRequest struct {
	Name      string
	Format    barcode.Format
	Mint      minter.Options
	CaptionPx int
}

// IssueService creates one service barcode. The caption is the service name.
func (i *Issuer) IssueService(ctx context.Context, req ServiceRequest) (store.ServiceRecord, error) {
	if strings.TrimSpace(req.Name) == "" {
		return store.ServiceRecord{}, fmt.Errorf("%w: service name is required", common.ErrFormat)
	}
	if req.Format == "" {
		req.Format = barcode.Code128
	}
	if req.CaptionPx <= 0 {
		req.CaptionPx = barcode.DefaultCaptionPx
	}
	opts := mintOptions(req.Format, req.Mint, req.Name)

	for attempt := 1; attempt <= MaxReissue; attempt++ {
		if err := ctx.Err(); err != nil {
			return store.ServiceRecord{}, fmt.Errorf("%w: %w", common.ErrCancelled, err)
		}
		id, err := i.mint(req.Format, opts, i.store.ServiceProbe(ctx))
		if err != nil {
			return store.ServiceRecord{}, err
		}
		res, err := i.engine.Encode(ctx, barcode.Request{
			Payload:   id,
			Format:    req.Format,
			Caption:   req.Name,
			CaptionPx: req.CaptionPx,
			FullName:  req.Name,
		})
		if errors.Is(err, common.ErrVerification) && opts.CustomText == "" {
			continue
		}
		if err != nil {
			return store.ServiceRecord{}, err
		}
		ok, err := i.store.InsertService(ctx, store.NewService{
			BarcodeValue:  id,
			UniqueID:      id,
			ServiceName:   strings.TrimSpace(req.Name),
			CaptionPx:     req.CaptionPx,
			Format:        string(req.Format),
			ImageFilename: res.Filename,
		})
		if err != nil || !ok {
			_ = os.Remove(res.Path)
		}
		if err != nil {
			return store.ServiceRecord{}, err
		}
		if !ok {
			continue
		}
		services, err := i.store.Services(ctx)
		if err != nil {
			return store.ServiceRecord{}, err
		}
		for _, svc := range services {
			if svc.UniqueID == id {
				return svc, nil
			}
		}
		return store.ServiceRecord{}, fmt.Errorf("%w: service %s", common.ErrNotFound, id)
	}
	return store.ServiceRecord{}, fmt.Errorf("%w: could not issue a service barcode after %d attempts", common.ErrStorage, MaxReissue)
}
