package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/carnet-tools/internal/common"
	"github.com/ironsheep/carnet-tools/internal/imaging"
)

// Viewport is the page geometry for one render: CSS pixels at 300 DPI and
// the device scale that brings them to the target DPI.
type Viewport struct {
	Width  int
	Height int
	Scale  float64
}

// Page is one reusable headless browser page. Implementations need not be
// safe for concurrent use; the Renderer owns its page from one goroutine.
type Page interface {
	// Load replaces the document and returns once it has finished loading.
	Load(ctx context.Context, html string, vp Viewport) error
	// Repaint forces a layout and paint pass.
	Repaint(ctx context.Context) error
	// Capture grabs the current viewport at device resolution.
	Capture(ctx context.Context) (image.Image, error)
	Close() error
}

// Timing bounds the renderer's waits and retry loops.
type Timing struct {
	LoadTimeout time.Duration

	SettleTicks      int
	SettleTick       time.Duration
	FirstSettleTicks int
	FirstSettleTick  time.Duration

	StabilityGrabs  int
	StabilityPoints int
	StabilityWait   time.Duration

	BlankAttempts   int
	BlankPoints     int
	BlankMinSide    int
	BlankBackoff    time.Duration
	BlankBackoffMax time.Duration
	ConfirmCaptures int
}

// DefaultTiming returns the production waits.
func DefaultTiming() Timing {
	return Timing{
		LoadTimeout:      5 * time.Second,
		SettleTicks:      5,
		SettleTick:       time.Second,
		FirstSettleTicks: 6,
		FirstSettleTick:  1200 * time.Millisecond,
		StabilityGrabs:   3,
		StabilityPoints:  3,
		StabilityWait:    500 * time.Millisecond,
		BlankAttempts:    5,
		BlankPoints:      5,
		BlankMinSide:     100,
		BlankBackoff:     800 * time.Millisecond,
		BlankBackoffMax:  2 * time.Second,
		ConfirmCaptures:  2,
	}
}

// Phase names a step of the render pipeline.
type Phase int

const (
	PhaseWarmup Phase = iota
	PhaseLoad
	PhaseSettle
	PhaseStability
	PhaseBlankFrame
	PhaseCaptured
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseWarmup:
		return "warmup"
	case PhaseLoad:
		return "load"
	case PhaseSettle:
		return "settle"
	case PhaseStability:
		return "stability"
	case PhaseBlankFrame:
		return "blank-frame"
	case PhaseCaptured:
		return "captured"
	case PhaseFailed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// State is reported to Renderer.OnState as the pipeline advances.
type State struct {
	Phase Phase
	Step  int
}

const warmupHTML = `<!DOCTYPE html><html><head><meta charset="utf-8"></head><body><p>.</p></body></html>`

// ErrClosed is returned by Render after Close.
var ErrClosed = errors.New("renderer closed")

type renderReq struct {
	ctx  context.Context
	html string
	w300 int
	h300 int
	dpi  int
	out  chan renderResult
}

type renderResult struct {
	img image.Image
	err error
}

// Renderer rasterizes HTML on a dedicated goroutine that owns the page.
type Renderer struct {
	page   Page
	timing Timing
	log    zerolog.Logger

	// OnState, when set before the first Render, observes pipeline phases.
	// It runs on the renderer goroutine.
	OnState func(State)

	sleep func(time.Duration)

	reqs      chan renderReq
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	warmed bool
	first  bool
}

// NewRenderer starts the render goroutine for page.
func NewRenderer(page Page, timing Timing, log zerolog.Logger) *Renderer {
	r := &Renderer{
		page:   page,
		timing: timing,
		log:    log.With().Str("component", "render").Logger(),
		sleep:  time.Sleep,
		reqs:   make(chan renderReq),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		first:  true,
	}
	go r.loop()
	return r
}

func (r *Renderer) loop() {
	defer close(r.done)
	for {
		select {
		case req := <-r.reqs:
			img, err := r.render(req.ctx, req.html, req.w300, req.h300, req.dpi)
			req.out <- renderResult{img: img, err: err}
		case <-r.quit:
			return
		}
	}
}

// Render rasterizes html laid out at w300 x h300 CSS pixels and returns an
// opaque RGB image of (w300*dpi/300) x (h300*dpi/300).
//
// A render that has started runs to completion even if ctx is cancelled;
// cancellation is only observed before it starts. Blank, unstable or failed
// output yields a nil image and common.ErrRenderFailed.
func (r *Renderer) Render(ctx context.Context, html string, w300, h300, dpi int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrCancelled, err)
	}
	if w300 <= 0 || h300 <= 0 || dpi <= 0 {
		return nil, fmt.Errorf("%w: invalid geometry %dx%d@%d", common.ErrRenderFailed, w300, h300, dpi)
	}
	req := renderReq{
		ctx:  context.WithoutCancel(ctx),
		html: html,
		w300: w300,
		h300: h300,
		dpi:  dpi,
		out:  make(chan renderResult, 1),
	}
	select {
	case r.reqs <- req:
	case <-r.done:
		return nil, ErrClosed
	}
	res := <-req.out
	return res.img, res.err
}

// Close stops the goroutine and closes the page.
func (r *Renderer) Close() error {
	r.closeOnce.Do(func() {
		close(r.quit)
		<-r.done
		r.closeErr = r.page.Close()
	})
	return r.closeErr
}

func (r *Renderer) state(p Phase, step int) {
	if r.OnState != nil {
		r.OnState(State{Phase: p, Step: step})
	}
}

func (r *Renderer) fail(format string, args ...any) (image.Image, error) {
	r.state(PhaseFailed, 0)
	err := fmt.Errorf("%w: %s", common.ErrRenderFailed, fmt.Sprintf(format, args...))
	r.log.Debug().Err(err).Msg("render failed")
	return nil, err
}

// capture, repaint and bounded give each page call its own LoadTimeout deadline.
func (r *Renderer) capture(ctx context.Context) (image.Image, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	return r.page.Capture(ctx)
}

func (r *Renderer) repaint(ctx context.Context) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	return r.page.Repaint(ctx)
}

func (r *Renderer) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timing.LoadTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timing.LoadTimeout)
}

func (r *Renderer) warmup(ctx context.Context) error {
	r.state(PhaseWarmup, 0)
	lctx, cancel := r.bounded(ctx)
	defer cancel()
	if err := r.page.Load(lctx, warmupHTML, Viewport{Width: 64, Height: 64, Scale: 1}); err != nil {
		return err
	}
	_, err := r.capture(ctx)
	return err
}

func (r *Renderer) render(ctx context.Context, doc string, w300, h300, dpi int) (image.Image, error) {
	t := r.timing
	if !r.warmed {
		if err := r.warmup(ctx); err != nil {
			return r.fail("warm-up: %v", err)
		}
		r.warmed = true
	}

	outW, outH := w300*dpi/BaseDPI, h300*dpi/BaseDPI
	vp := Viewport{Width: w300, Height: h300, Scale: float64(dpi) / BaseDPI}

	r.state(PhaseLoad, 0)
	lctx, cancel := r.bounded(ctx)
	err := r.page.Load(lctx, withCanvasCSS(doc, w300, h300), vp)
	cancel()
	if err != nil {
		return r.fail("load: %v", err)
	}

	ticks, tick := t.SettleTicks, t.SettleTick
	if r.first {
		ticks, tick = t.FirstSettleTicks, t.FirstSettleTick
		r.first = false
	}
	for i := 0; i < ticks; i++ {
		r.state(PhaseSettle, i+1)
		if err := r.repaint(ctx); err != nil {
			return r.fail("repaint: %v", err)
		}
		r.sleep(tick)
	}

	if err := r.awaitStable(ctx); err != nil {
		return r.fail("stability: %v", err)
	}

	frame, err := r.awaitContent(ctx)
	if err != nil {
		return r.fail("%v", err)
	}

	r.state(PhaseCaptured, 0)
	return imaging.Flatten(imaging.Fit(frame, outW, outH)), nil
}

// awaitStable grabs up to StabilityGrabs frames and stops at the first one
// whose samples match the previous grab. Never settling is logged, not fatal.
func (r *Renderer) awaitStable(ctx context.Context) error {
	t := r.timing
	var prev image.Image
	for i := 0; i < t.StabilityGrabs; i++ {
		r.state(PhaseStability, i+1)
		img, err := r.capture(ctx)
		if err != nil {
			return err
		}
		if prev != nil && imaging.SameAt(prev, img, imaging.SpreadPoints(img.Bounds(), t.StabilityPoints), imaging.DefaultTolerance) {
			return nil
		}
		prev = img
		if i+1 < t.StabilityGrabs {
			r.sleep(t.StabilityWait)
		}
	}
	if t.StabilityGrabs > 1 {
		r.log.Debug().Int("grabs", t.StabilityGrabs).Msg("frame did not settle")
	}
	return nil
}

// awaitContent captures until ConfirmCaptures consecutive non-blank frames
// are seen, backing off after each blank one. It returns the last frame.
func (r *Renderer) awaitContent(ctx context.Context) (image.Image, error) {
	t := r.timing
	backoff := t.BlankBackoff
	confirmed := 0
	var last image.Image
	for attempt := 1; attempt <= t.BlankAttempts; attempt++ {
		img, err := r.capture(ctx)
		if err != nil {
			return nil, fmt.Errorf("capture: %v", err)
		}
		if imaging.IsBlank(img, t.BlankPoints, t.BlankMinSide) {
			r.state(PhaseBlankFrame, attempt)
			confirmed = 0
			r.sleep(backoff)
			backoff = backoff * 3 / 2
			if backoff > t.BlankBackoffMax {
				backoff = t.BlankBackoffMax
			}
			if err := r.repaint(ctx); err != nil {
				return nil, fmt.Errorf("repaint: %v", err)
			}
			continue
		}
		confirmed++
		last = img
		if confirmed >= t.ConfirmCaptures {
			return last, nil
		}
	}
	if last == nil {
		return nil, errors.New("every capture was blank")
	}
	return nil, fmt.Errorf("frame not confirmed after %d captures", t.BlankAttempts)
}
