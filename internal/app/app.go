// Package app is the composition root of carnet-tools. It opens the data
// directory, wires the store, barcode engine, renderer and OCR verifier, and
// runs one command per invocation.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/carnet-tools/internal/barcode"
	"github.com/ironsheep/carnet-tools/internal/carnet"
	"github.com/ironsheep/carnet-tools/internal/config"
	"github.com/ironsheep/carnet-tools/internal/issue"
	"github.com/ironsheep/carnet-tools/internal/logging"
	"github.com/ironsheep/carnet-tools/internal/minter"
	"github.com/ironsheep/carnet-tools/internal/ocr"
	"github.com/ironsheep/carnet-tools/internal/render"
	"github.com/ironsheep/carnet-tools/internal/store"
	"github.com/ironsheep/carnet-tools/internal/xlsx"
)

// Version is reported by the MCP handshake; main sets it from ldflags.
var Version = "dev"

// ErrUsage marks bad command-line input.
var ErrUsage = errors.New("usage")

// PageFactory opens the browser page carnets are rendered in.
type PageFactory func(ctx context.Context) (render.Page, error)

// App runs carnet-tools commands against one data directory.
type App struct {
	cfg *config.Config
	log zerolog.Logger
	out io.Writer
	in  io.Reader

	// Now is the clock used for file names and the action log.
	Now func() time.Time
	// NewPage opens the rendering page; nil starts headless Chrome.
	NewPage PageFactory
	// Timing overrides the renderer waits.
	Timing render.Timing
	// OCR replaces the Tesseract engine; OCRStatus replaces the install probe.
	OCR       ocr.Engine
	OCRStatus *ocr.Availability
	// Minter replaces the crypto/rand identifier source.
	Minter *minter.Minter
}

// New returns an App that prints results to out and reads MCP requests from in.
func New(cfg *config.Config, log zerolog.Logger, in io.Reader, out io.Writer) *App {
	return &App{
		cfg:    cfg,
		log:    log,
		in:     in,
		out:    out,
		Now:    time.Now,
		Timing: render.DefaultTiming(),
	}
}

type command struct {
	summary string
	run     func(a *App, ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"init":     {"create the data directory and database", (*App).cmdInit},
	"generate": {"issue a barcode for an employee", (*App).cmdGenerate},
	"service":  {"issue a barcode for a service", (*App).cmdService},
	"list":     {"list records or services", (*App).cmdList},
	"delete":   {"delete a record or service", (*App).cmdDelete},
	"wipe":     {"delete every record", (*App).cmdWipe},
	"reclaim":  {"remove images no record references", (*App).cmdReclaim},
	"stats":    {"show record counts", (*App).cmdStats},
	"backup":   {"back up the database or list backups", (*App).cmdBackup},
	"export":   {"write all records to an Excel file", (*App).cmdExport},
	"import":   {"validate or import employees from an Excel file", (*App).cmdImport},
	"vars":     {"list the placeholders of a carnet template", (*App).cmdVars},
	"carnet":   {"render carnets from a template", (*App).cmdCarnet},
	"verify":   {"check a carnet image with OCR", (*App).cmdVerify},
	"ocr-info": {"show OCR installation details", (*App).cmdOCRInfo},
	"mcp":      {"serve the tools over MCP on stdin/stdout", (*App).cmdMCP},
}

// Usage writes the command list.
func Usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
}

// Run executes args[0] with the remaining arguments.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command", ErrUsage)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}

	e, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	a.log.Debug().Str("command", args[0]).Strs("args", args[1:]).Msg("running")
	return cmd.run(a, ctx, e, args[1:])
}

func (a *App) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	return nil
}

// env holds the services one command runs against.
type env struct {
	store    *store.Store
	engine   *barcode.Engine
	issuer   *issue.Issuer
	tess     *ocr.TesseractEngine
	avail    ocr.Availability
	verifier *ocr.Verifier
	actions  zerolog.Logger

	renderer *render.Renderer
	closers  []io.Closer
}

func (a *App) open(ctx context.Context) (*env, error) {
	if err := a.cfg.EnsureLayout(); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, store.Options{
		DataDir:   a.cfg.DataDir,
		Retention: a.cfg.Backup.Retention,
		Minter:    a.Minter,
		Now:       a.Now,
	}, a.log)
	if err != nil {
		return nil, err
	}
	e := &env{store: st, closers: []io.Closer{st}}

	actions, closer, err := logging.OpenActionLog(a.cfg.LogsPath(), a.Now())
	if err != nil {
		a.log.Warn().Err(err).Msg("action log unavailable")
		actions = zerolog.Nop()
	} else {
		e.closers = append(e.closers, closer)
	}
	e.actions = actions

	e.engine = barcode.NewEngine(st.ImagesDir(), a.log)
	e.issuer = issue.New(st, e.engine, a.Minter, a.log)

	e.tess = ocr.NewTesseractEngine(a.cfg.OCR.TessdataPrefix)
	var engine ocr.Engine = e.tess
	if a.OCR != nil {
		engine = a.OCR
	}
	if a.OCRStatus != nil {
		e.avail = *a.OCRStatus
	} else {
		e.avail = ocr.Probe()
	}
	e.verifier = ocr.NewVerifier(engine, e.avail, ocr.Options{
		Similarity: a.cfg.OCR.Similarity,
		Languages:  a.cfg.OCR.Languages,
		Fallback:   a.cfg.OCR.FallbackLanguage,
	}, a.log)
	return e, nil
}

func (e *env) close() {
	if e.renderer != nil {
		_ = e.renderer.Close()
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i].Close()
	}
}

func (e *env) importer(log zerolog.Logger) *xlsx.Importer {
	return xlsx.NewImporter(e.store, e.engine, e.issuer, log)
}

// orchestrator starts the browser on first use.
func (a *App) orchestrator(ctx context.Context, e *env) (*carnet.Orchestrator, error) {
	if e.renderer == nil {
		newPage := a.NewPage
		if newPage == nil {
			newPage = func(ctx context.Context) (render.Page, error) {
				return render.NewChromePage(ctx, render.ChromeOptions{ExecPath: a.cfg.Render.ChromePath})
			}
		}
		page, err := newPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("start browser: %w", err)
		}
		timing := a.Timing
		timing.LoadTimeout = a.cfg.Render.LoadTimeout
		e.renderer = render.NewRenderer(page, timing, a.log)
	}
	return carnet.NewOrchestrator(e.renderer, e.verifier, carnet.Options{
		PNGDPI:        a.cfg.Render.PNGDPI,
		PDFDPI:        a.cfg.Render.PDFDPI,
		RetriesSingle: a.cfg.OCR.RetriesSingle,
		RetriesBatch:  a.cfg.OCR.RetriesBatch,
		ImagesDir:     e.store.ImagesDir(),
	}, a.log), nil
}

// loadTemplate reads path with the configured card geometry.
func (a *App) loadTemplate(path string) (*render.Template, error) {
	tpl, err := render.LoadTemplate(path)
	if err != nil {
		return nil, err
	}
	tpl.Width, tpl.Height = a.cfg.Render.Width, a.cfg.Render.Height
	return tpl, nil
}

// stringList collects a repeatable flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// varFlag collects repeatable key=value flags.
type varFlag render.Variables

func (v varFlag) String() string {
	parts := make([]string, 0, len(v))
	for k, val := range v {
		parts = append(parts, k+"="+val)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (v varFlag) Set(s string) error {
	key, val, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	v[strings.TrimSpace(key)] = val
	return nil
}
