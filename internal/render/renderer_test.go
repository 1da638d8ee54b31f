package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/carnet-tools/internal/common"
	"github.com/ironsheep/carnet-tools/internal/imaging"
)

// fakePage serves white frames for the first blankUntil captures of each
// document and solid blue frames afterwards.
type fakePage struct {
	mu         sync.Mutex
	blankUntil int
	loadErr    error

	vp       Viewport
	html     string
	captures int
	warmups  int
	loads    int
	repaints int
	closed   int
}

func (f *fakePage) Load(ctx context.Context, html string, vp Viewport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if html == warmupHTML {
		f.warmups++
	} else {
		f.loads++
		if f.loadErr != nil {
			return f.loadErr
		}
	}
	f.html, f.vp, f.captures = html, vp, 0
	return nil
}

func (f *fakePage) Repaint(ctx context.Context) error {
	f.mu.Lock()
	f.repaints++
	f.mu.Unlock()
	return nil
}

func (f *fakePage) Capture(ctx context.Context) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
	w := int(float64(f.vp.Width) * f.vp.Scale)
	h := int(float64(f.vp.Height) * f.vp.Scale)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	if f.html != warmupHTML && f.captures > f.blankUntil {
		fill = color.RGBA{B: 255, A: 255}
	}
	draw.Draw(img, img.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)
	return img, nil
}

func (f *fakePage) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func testTiming() Timing {
	t := DefaultTiming()
	t.LoadTimeout = time.Second
	t.SettleTicks = 2
	t.FirstSettleTicks = 3
	return t
}

func newTestRenderer(page Page) *Renderer {
	r := NewRenderer(page, testTiming(), zerolog.Nop())
	r.sleep = func(time.Duration) {}
	return r
}

const blueCard = `<html><head></head><body style="background:#00f"></body></html>`

func TestRender_BlankFramesThenContent(t *testing.T) {
	page := &fakePage{blankUntil: 3}
	r := newTestRenderer(page)
	defer r.Close()

	var blanks int
	r.OnState = func(s State) {
		if s.Phase == PhaseBlankFrame {
			blanks++
		}
	}

	img, err := r.Render(context.Background(), blueCard, 200, 300, 600)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 400 || b.Dy() != 600 {
		t.Errorf("size: got %dx%d, want 400x600", b.Dx(), b.Dy())
	}
	if blanks == 0 {
		t.Error("expected at least one blank frame to be retried")
	}
	if c := imaging.At(img, 200, 300); c != (imaging.RGBColor{B: 255}) {
		t.Errorf("center pixel: got %+v", c)
	}
}

func TestRender_RepeatedSolidColorIsNeverBlank(t *testing.T) {
	page := &fakePage{}
	r := newTestRenderer(page)
	defer r.Close()

	for i := 0; i < 20; i++ {
		img, err := r.Render(context.Background(), blueCard, 200, 300, 600)
		if err != nil {
			t.Fatalf("render %d: %v", i, err)
		}
		s := imaging.Summarize(img)
		if mean := (s.MeanR + s.MeanG + s.MeanB) / 3; mean >= 250 {
			t.Fatalf("render %d: mean %.1f looks blank", i, mean)
		}
	}
	if page.warmups != 1 {
		t.Errorf("warm-up ran %d times, want 1", page.warmups)
	}
}

func TestRender_AlwaysBlankFails(t *testing.T) {
	page := &fakePage{blankUntil: 1 << 20}
	r := newTestRenderer(page)
	defer r.Close()

	var last State
	r.OnState = func(s State) { last = s }

	img, err := r.Render(context.Background(), blueCard, 200, 300, 600)
	if !errors.Is(err, common.ErrRenderFailed) {
		t.Fatalf("expected ErrRenderFailed, got %v", err)
	}
	if img != nil {
		t.Error("failed render must not return an image")
	}
	if last.Phase != PhaseFailed {
		t.Errorf("last state: got %v", last.Phase)
	}
}

func TestRender_LoadErrorFails(t *testing.T) {
	page := &fakePage{loadErr: errors.New("navigation timed out")}
	r := newTestRenderer(page)
	defer r.Close()

	if _, err := r.Render(context.Background(), blueCard, 200, 300, 600); !errors.Is(err, common.ErrRenderFailed) {
		t.Fatalf("expected ErrRenderFailed, got %v", err)
	}
}

func TestRender_FirstRenderSettlesLonger(t *testing.T) {
	page := &fakePage{}
	r := newTestRenderer(page)
	defer r.Close()

	var settles []int
	count := 0
	r.OnState = func(s State) {
		switch s.Phase {
		case PhaseLoad:
			count = 0
		case PhaseSettle:
			count++
		case PhaseCaptured:
			settles = append(settles, count)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := r.Render(context.Background(), blueCard, 200, 300, 300); err != nil {
			t.Fatalf("render %d: %v", i, err)
		}
	}
	want := []int{3, 2, 2}
	for i := range want {
		if settles[i] != want[i] {
			t.Errorf("render %d settled %d ticks, want %d", i, settles[i], want[i])
		}
	}
}

func TestRender_CancelledBeforeStart(t *testing.T) {
	page := &fakePage{}
	r := newTestRenderer(page)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Render(ctx, blueCard, 200, 300, 600); !errors.Is(err, common.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if page.loads != 0 || page.warmups != 0 {
		t.Error("cancelled render must not touch the page")
	}
}

func TestRender_InjectsCanvasCSS(t *testing.T) {
	page := &fakePage{}
	r := newTestRenderer(page)
	defer r.Close()

	if _, err := r.Render(context.Background(), blueCard, 637, 1013, 300); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if page.vp != (Viewport{Width: 637, Height: 1013, Scale: 1}) {
		t.Errorf("viewport: got %+v", page.vp)
	}
	if !strings.Contains(page.html, `width:637px;height:1013px`) {
		t.Errorf("canvas CSS missing from %q", page.html)
	}
}

func TestRender_ZoomIsDeviceScale(t *testing.T) {
	page := &fakePage{}
	r := newTestRenderer(page)
	defer r.Close()

	img, err := r.Render(context.Background(), blueCard, 637, 1013, 1200)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if page.vp != (Viewport{Width: 637, Height: 1013, Scale: 4}) {
		t.Errorf("viewport: got %+v, want CSS size at scale 4", page.vp)
	}
	if b := img.Bounds(); b.Dx() != 2548 || b.Dy() != 4052 {
		t.Errorf("size: got %dx%d, want 2548x4052", b.Dx(), b.Dy())
	}
	if strings.Contains(page.html, "scale(") {
		t.Error("body must not carry a CSS scale transform")
	}
}

func TestRenderer_Close(t *testing.T) {
	page := &fakePage{}
	r := newTestRenderer(page)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if page.closed != 1 {
		t.Errorf("page closed %d times", page.closed)
	}
	if _, err := r.Render(context.Background(), blueCard, 200, 300, 300); !errors.Is(err, ErrClosed) {
		t.Errorf("render after close: got %v", err)
	}
}

// stuckPage loads and repaints but never returns a capture until ctx ends.
type stuckPage struct {
	fakePage
}

func (s *stuckPage) Capture(ctx context.Context) (image.Image, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRender_StuckCaptureTimesOut(t *testing.T) {
	timing := testTiming()
	timing.LoadTimeout = 20 * time.Millisecond
	r := NewRenderer(&stuckPage{}, timing, zerolog.Nop())
	r.sleep = func(time.Duration) {}
	defer r.Close()

	done := make(chan error, 1)
	go func() {
		_, err := r.Render(context.Background(), blueCard, 200, 300, 300)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, common.ErrRenderFailed) {
			t.Fatalf("expected ErrRenderFailed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Render did not return while the page was stuck")
	}
}
