package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/ironsheep/carnet-tools/internal/barcode"
	"github.com/ironsheep/carnet-tools/internal/carnet"
	"github.com/ironsheep/carnet-tools/internal/common"
	"github.com/ironsheep/carnet-tools/internal/issue"
	"github.com/ironsheep/carnet-tools/internal/minter"
	"github.com/ironsheep/carnet-tools/internal/ocr"
	"github.com/ironsheep/carnet-tools/internal/render"
	"github.com/ironsheep/carnet-tools/internal/server"
	"github.com/ironsheep/carnet-tools/internal/store"
	"github.com/ironsheep/carnet-tools/internal/xlsx"
)

const fileTimeLayout = "20060102_150405"

func (a *App) cmdInit(_ context.Context, e *env, args []string) error {
	if err := parse(a.flags("init"), args); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "data directory ready: %s\n", a.cfg.DataDir)
	return nil
}

// mintFlags registers the identifier options shared by generate and service.
func mintFlags(fs *flag.FlagSet) func() (minter.Options, error) {
	charset := fs.String("charset", "alphanumeric", "identifier alphabet: alphanumeric, numeric or letters")
	length := fs.Int("length", minter.DefaultLength, "random identifier length")
	prefix := fs.Bool("prefix", false, "prefix the identifier with letters of the name")
	custom := fs.String("custom", "", "fixed identifier text instead of random characters")
	return func() (minter.Options, error) {
		cs, err := minter.ParseCharset(*charset)
		if err != nil {
			return minter.Options{}, err
		}
		return minter.Options{Charset: cs, Length: *length, IncludeName: *prefix, CustomText: *custom}, nil
	}
}

func (a *App) cmdGenerate(ctx context.Context, e *env, args []string) error {
	fs := a.flags("generate")
	first := fs.String("first", "", "first names")
	last := fs.String("last", "", "last names")
	name := fs.String("name", "", "full name, split on the first space (alternative to -first/-last)")
	code := fs.String("code", "", "employee code (required)")
	format := fs.String("format", a.cfg.Barcode.Format, "Code128, EAN13, EAN8 or Code39")
	captionPx := fs.Int("caption-px", a.cfg.Barcode.CaptionPx, "caption size in pixels")
	mintOpts := mintFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if *name != "" && *first == "" && *last == "" {
		*first, *last = store.SplitFullName(*name)
	}
	f, err := barcode.ParseFormat(*format)
	if err != nil {
		return err
	}
	opts, err := mintOpts()
	if err != nil {
		return err
	}

	e.issuer.OnState = func(s common.State) { a.log.Debug().Stringer("state", s).Msg("issue") }
	got, err := e.issuer.Issue(ctx, issue.Request{
		FirstNames:   *first,
		LastNames:    *last,
		EmployeeCode: *code,
		Format:       f,
		Mint:         opts,
		CaptionPx:    *captionPx,
	})
	if err != nil {
		return err
	}
	rec := got.Record
	e.actions.Info().Str("action", "generate").Str("unique_id", rec.UniqueID).Str("employee_code", rec.EmployeeCode).Msg("barcode issued")
	fmt.Fprintf(a.out, "id=%d unique_id=%s format=%s image=%s\n", rec.ID, rec.UniqueID, rec.Format, e.store.ImagePath(rec.ImageFilename))
	for _, w := range got.Audit.Warnings {
		fmt.Fprintf(a.out, "warning: %s\n", w)
	}
	return nil
}

func (a *App) cmdService(ctx context.Context, e *env, args []string) error {
	fs := a.flags("service")
	name := fs.String("name", "", "service name (required)")
	format := fs.String("format", a.cfg.Barcode.Format, "Code128, EAN13, EAN8 or Code39")
	captionPx := fs.Int("caption-px", a.cfg.Barcode.CaptionPx, "caption size in pixels")
	mintOpts := mintFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	f, err := barcode.ParseFormat(*format)
	if err != nil {
		return err
	}
	opts, err := mintOpts()
	if err != nil {
		return err
	}
	svc, err := e.issuer.IssueService(ctx, issue.ServiceRequest{Name: *name, Format: f, Mint: opts, CaptionPx: *captionPx})
	if err != nil {
		return err
	}
	e.actions.Info().Str("action", "service").Str("unique_id", svc.UniqueID).Str("service", svc.ServiceName).Msg("service barcode issued")
	fmt.Fprintf(a.out, "id=%d unique_id=%s service=%s image=%s\n", svc.ID, svc.UniqueID, svc.ServiceName, e.store.ImagePath(svc.ImageFilename))
	return nil
}

func (a *App) cmdList(ctx context.Context, e *env, args []string) error {
	fs := a.flags("list")
	search := fs.String("search", "", "only records containing this text")
	services := fs.Bool("services", false, "list service barcodes instead of employees")
	if err := parse(fs, args); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	if *services {
		list, err := e.store.Services(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "ID\tID ÚNICO\tSERVICIO\tFORMATO\tCREADO")
		for _, s := range list {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", s.ID, s.UniqueID, s.ServiceName, s.Format, s.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	}

	records, err := e.store.Search(ctx, *search)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "ID\tID ÚNICO\tNOMBRE\tCÓDIGO\tFORMATO\tCREADO")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.UniqueID, r.FullName, r.EmployeeCode, r.Format, r.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func (a *App) cmdDelete(ctx context.Context, e *env, args []string) error {
	fs := a.flags("delete")
	id := fs.Int64("id", 0, "database id")
	uid := fs.String("uid", "", "unique id (alternative to -id)")
	keepImage := fs.Bool("keep-image", false, "leave the barcode image on disk")
	service := fs.Bool("service", false, "delete a service barcode")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *uid != "" && !*service {
		rec, err := e.store.FindByUniqueID(ctx, *uid)
		if err != nil {
			return err
		}
		*id = rec.ID
	}
	if *id <= 0 {
		return fmt.Errorf("%w: delete needs -id or -uid", ErrUsage)
	}

	var (
		ok  bool
		err error
	)
	if *service {
		ok, err = e.store.DeleteService(ctx, *id, !*keepImage)
	} else {
		ok, err = e.store.Delete(ctx, *id, !*keepImage)
	}
	if err != nil {
		return err
	}
	e.actions.Info().Str("action", "delete").Int64("id", *id).Bool("service", *service).Bool("deleted", ok).Msg("delete requested")
	if !ok {
		fmt.Fprintf(a.out, "no record with id %d\n", *id)
		return nil
	}
	fmt.Fprintf(a.out, "deleted %d\n", *id)
	return nil
}

func (a *App) cmdWipe(ctx context.Context, e *env, args []string) error {
	fs := a.flags("wipe")
	yes := fs.Bool("yes", false, "confirm deleting every record")
	images := fs.Bool("images", false, "also delete the barcode images")
	if err := parse(fs, args); err != nil {
		return err
	}
	if !*yes {
		return fmt.Errorf("%w: wipe deletes every record; rerun with -yes", ErrUsage)
	}
	ok, err := e.store.Wipe(ctx, *images)
	if err != nil {
		return err
	}
	e.actions.Warn().Str("action", "wipe").Bool("images", *images).Bool("done", ok).Msg("all records deleted")
	fmt.Fprintln(a.out, "all records deleted")
	return nil
}

func (a *App) cmdReclaim(ctx context.Context, e *env, args []string) error {
	if err := parse(a.flags("reclaim"), args); err != nil {
		return err
	}
	n, errs := e.store.ReclaimOrphans(ctx)
	e.actions.Info().Str("action", "reclaim").Int("removed", n).Int("errors", len(errs)).Msg("orphan images reclaimed")
	fmt.Fprintf(a.out, "removed %d orphan images\n", n)
	for _, err := range errs {
		fmt.Fprintf(a.out, "error: %v\n", err)
	}
	return errors.Join(errs...)
}

func (a *App) cmdStats(ctx context.Context, e *env, args []string) error {
	if err := parse(a.flags("stats"), args); err != nil {
		return err
	}
	st, err := e.store.Stats(ctx)
	if err != nil {
		return err
	}
	services, err := e.store.Services(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "records: %d\nformats: %d\nservices: %d\n", st.Total, st.Formats, len(services))
	return nil
}

func (a *App) cmdBackup(ctx context.Context, e *env, args []string) error {
	fs := a.flags("backup")
	reason := fs.String("reason", "manual", "label added to the backup file name")
	list := fs.Bool("list", false, "list existing backups")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *list {
		backups, err := e.store.ListBackups()
		if err != nil {
			return err
		}
		for _, b := range backups {
			fmt.Fprintf(a.out, "%s\t%s\t%s\n", b.CreatedAt.Format("2006-01-02 15:04:05"), b.Reason, b.Path)
		}
		return nil
	}
	path, err := e.store.Backup(ctx, *reason)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "backup written: %s\n", path)
	return nil
}

func (a *App) cmdExport(ctx context.Context, e *env, args []string) error {
	fs := a.flags("export")
	out := fs.String("out", "", "target .xlsx file")
	def := fs.String("default-format", "Code128", "format written for records without one")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *out == "" {
		*out = filepath.Join(a.cfg.DataDir, "codigos_barras_"+a.Now().Format(fileTimeLayout)+".xlsx")
	}
	f, err := barcode.ParseFormat(*def)
	if err != nil {
		return err
	}
	n, err := xlsx.NewExporter(e.store, a.log).Export(ctx, *out, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "exported %d records to %s\n", n, *out)
	return nil
}

func (a *App) cmdImport(ctx context.Context, e *env, args []string) error {
	fs := a.flags("import")
	file := fs.String("file", "", "source .xlsx file (required)")
	generate := fs.Bool("generate", false, "issue barcodes after validation")
	regen := fs.Bool("regenerate-invalid", false, "replace records whose barcode image is unreadable")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("%w: import needs -file", ErrUsage)
	}

	im := e.importer(a.log)
	if !*generate {
		rep, err := im.Validate(ctx, *file)
		if err != nil {
			return err
		}
		a.printReport(rep)
		return nil
	}

	res, err := im.Generate(ctx, *file, xlsx.GenerateOptions{RegenerateInvalid: *regen}, a.progress)
	if err != nil {
		return err
	}
	a.printReport(res.Report)
	e.actions.Info().
		Str("action", "import").
		Str("file", *file).
		Int("generated", res.Generated).
		Int("regenerated", res.Regenerated).
		Int("failed", res.Failed).
		Bool("cancelled", res.Cancelled).
		Msg("excel import")
	fmt.Fprintf(a.out, "generated: %d\nregenerated: %d\nskipped: %d\nfailed: %d\n", res.Generated, res.Regenerated, res.Skipped, res.Failed)
	for _, msg := range res.Errors {
		fmt.Fprintf(a.out, "error: %s\n", msg)
	}
	if res.Cancelled {
		fmt.Fprintln(a.out, "cancelled")
	}
	return nil
}

func (a *App) printReport(rep xlsx.Report) {
	fmt.Fprintf(a.out, "total: %d\nto_generate: %d\nduplicates: %d\ninvalid_existing: %d\nerrors: %d\n",
		rep.Total, rep.ToGenerate, rep.Duplicates, rep.InvalidExisting, rep.Errors)
	for _, msg := range rep.ErrorList {
		fmt.Fprintf(a.out, "  %s\n", msg)
	}
}

func (a *App) progress(p common.Progress) {
	fmt.Fprintf(a.out, "[%d/%d] %s: %s\n", p.Current, p.Total, p.State, p.Message)
}

func (a *App) cmdVars(_ context.Context, _ *env, args []string) error {
	fs := a.flags("vars")
	path := fs.String("template", "", "HTML template (required)")
	if err := parse(fs, args); err != nil {
		return err
	}
	tpl, err := render.LoadTemplate(*path)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "variables: %s\n", strings.Join(tpl.Variables(), ", "))
	fmt.Fprintf(a.out, "editable: %s\n", strings.Join(tpl.UserVariables(), ", "))
	return nil
}

func (a *App) cmdCarnet(ctx context.Context, e *env, args []string) error {
	fs := a.flags("carnet")
	path := fs.String("template", "", "HTML template (required)")
	var uids stringList
	fs.Var(&uids, "uid", "unique id of a record; repeat for several")
	all := fs.Bool("all", false, "render every record")
	search := fs.String("search", "", "render the records containing this text")
	format := fs.String("format", "png", "png or pdf")
	out := fs.String("out", "", "output file for a single carnet")
	zipPath := fs.String("zip", "", "output ZIP for several carnets")
	noVerify := fs.Bool("no-verify", false, "skip OCR verification")
	vars := varFlag{}
	fs.Var(vars, "set", "template value as key=value; repeat for several")
	if err := parse(fs, args); err != nil {
		return err
	}

	tpl, err := a.loadTemplate(*path)
	if err != nil {
		return err
	}
	f, err := carnet.ParseFormat(*format)
	if err != nil {
		return err
	}
	records, err := a.selectRecords(ctx, e, uids, *all, *search)
	if err != nil {
		return err
	}

	orch, err := a.orchestrator(ctx, e)
	if err != nil {
		return err
	}

	if len(records) == 1 && *zipPath == "" {
		rec := records[0]
		target := *out
		if target == "" {
			target = filepath.Join(a.cfg.CarnetsPath(), carnet.EntryName(rec, f))
		}
		res, err := orch.RenderOne(ctx, carnet.Job{
			Record:   rec,
			Template: tpl,
			Vars:     render.Variables(vars),
			Output:   target,
			Format:   f,
			Verify:   !*noVerify,
		}, a.progress)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "carnet written: %s\n", res.Path)
		if res.Warning != "" {
			fmt.Fprintf(a.out, "warning: %s\n", res.Warning)
		}
		return nil
	}

	target := *zipPath
	if target == "" {
		target = filepath.Join(a.cfg.CarnetsPath(), "carnets_"+a.Now().Format(fileTimeLayout)+".zip")
	}
	res, err := orch.RenderMany(ctx, carnet.Batch{
		Records:   records,
		Template:  tpl,
		Vars:      render.Variables(vars),
		TargetZip: target,
		Format:    f,
		Verify:    !*noVerify,
	}, a.progress)
	e.actions.Info().
		Str("action", "carnet_batch").
		Int("total", res.Total).
		Int("completed", res.Completed).
		Int("failed", res.Failed).
		Bool("cancelled", res.Cancelled).
		Str("zip", res.ZipPath).
		Msg("batch render")
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(a.out, "warning: %s\n", w)
	}
	for _, msg := range res.Errors {
		fmt.Fprintf(a.out, "error: %s\n", msg)
	}
	if res.Cancelled {
		fmt.Fprintf(a.out, "cancelled after %d of %d carnets\n", res.Completed, res.Total)
		return nil
	}
	fmt.Fprintf(a.out, "%d carnets written to %s\n", res.Completed, res.ZipPath)
	return nil
}

func (a *App) selectRecords(ctx context.Context, e *env, uids []string, all bool, search string) ([]store.BarcodeRecord, error) {
	switch {
	case all:
		return nonEmpty(e.store.All(ctx))
	case search != "":
		return nonEmpty(e.store.Search(ctx, search))
	}
	if len(uids) == 0 {
		return nil, fmt.Errorf("%w: carnet needs -uid, -search or -all", ErrUsage)
	}
	records := make([]store.BarcodeRecord, 0, len(uids))
	for _, uid := range uids {
		rec, err := e.store.FindByUniqueID(ctx, uid)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func nonEmpty(records []store.BarcodeRecord, err error) ([]store.BarcodeRecord, error) {
	if err == nil && len(records) == 0 {
		return nil, fmt.Errorf("%w: no matching records", common.ErrNotFound)
	}
	return records, err
}

func (a *App) cmdVerify(ctx context.Context, e *env, args []string) error {
	fs := a.flags("verify")
	file := fs.String("file", "", "carnet image or PDF (required)")
	uid := fs.String("uid", "", "take the expected fields from this record")
	first := fs.String("first", "", "expected first names")
	last := fs.String("last", "", "expected last names")
	code := fs.String("code", "", "expected employee code")
	expUID := fs.String("id", "", "expected unique id")
	region := fs.String("region", "", "print the text inside x1,y1,x2,y2 instead of matching fields")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("%w: verify needs -file", ErrUsage)
	}

	if *region != "" {
		return a.verifyRegion(e, *file, *region)
	}

	exp := ocr.Expected{FirstNames: *first, LastNames: *last, EmployeeCode: *code, UniqueID: *expUID}
	if *uid != "" {
		rec, err := e.store.FindByUniqueID(ctx, *uid)
		if err != nil {
			return err
		}
		exp = ocr.Expected{FirstNames: rec.FirstNames, LastNames: rec.LastNames, EmployeeCode: rec.EmployeeCode, UniqueID: rec.UniqueID}
	}
	res := e.verifier.Verify(*file, exp)
	fmt.Fprintf(a.out, "ok: %t\nmessage: %s\n", res.OK, res.Message)
	return nil
}

func (a *App) verifyRegion(e *env, file, region string) error {
	rect, err := parseRect(region)
	if err != nil {
		return err
	}
	if e.avail.Status != ocr.Available {
		return fmt.Errorf("%w: %s", common.ErrOCRUnavailable, ocr.MessageUnavailable)
	}
	img, err := ocr.LoadPage(file)
	if err != nil {
		return err
	}
	res, err := e.tess.ExtractRegion(img, rect, a.cfg.OCR.Languages)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func parseRect(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("%w: region must be x1,y1,x2,y2", ErrUsage)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("%w: region: %w", ErrUsage, err)
		}
		v[i] = n
	}
	return image.Rect(v[0], v[1], v[2], v[3]), nil
}

func (a *App) cmdOCRInfo(_ context.Context, e *env, args []string) error {
	if err := parse(a.flags("ocr-info"), args); err != nil {
		return err
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(e.tess.Info(e.avail))
}

func (a *App) cmdMCP(ctx context.Context, e *env, args []string) error {
	if err := parse(a.flags("mcp"), args); err != nil {
		return err
	}
	srv := server.New(server.Backend{
		Store:        e.store,
		Issuer:       e.issuer,
		Importer:     e.importer(a.log),
		Verifier:     e.verifier,
		OCRInfo:      func() ocr.OCRInfo { return e.tess.Info(e.avail) },
		Carnets:      func(ctx context.Context) (*carnet.Orchestrator, error) { return a.orchestrator(ctx, e) },
		LoadTemplate: a.loadTemplate,
		CarnetsDir:   a.cfg.CarnetsPath(),
		Format:       barcode.Format(a.cfg.Barcode.Format),
		CaptionPx:    a.cfg.Barcode.CaptionPx,
	}, a.log, Version)
	a.log.Info().Msg("serving MCP on stdio")
	return srv.Run(ctx, a.in, a.out)
}
