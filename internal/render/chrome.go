package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// ChromeOptions configures the headless browser.
type ChromeOptions struct {
	// ExecPath overrides browser discovery when set.
	ExecPath string
	// Poll is the readyState polling interval.
	Poll time.Duration
}

// ChromePage is a Page backed by one headless Chromium tab.
type ChromePage struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	poll        time.Duration
	vp          Viewport
}

// NewChromePage launches a headless browser and opens a blank tab.
func NewChromePage(ctx context.Context, opts ChromeOptions) (*ChromePage, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("allow-file-access-from-files", true),
		chromedp.Flag("enable-accelerated-2d-canvas", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// First Run starts the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	poll := opts.Poll
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	return &ChromePage{ctx: tabCtx, cancelTab: cancelTab, cancelAlloc: cancelAlloc, poll: poll}, nil
}

// run executes actions on the tab, bounded by ctx's deadline and cancellation.
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	tctx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var cancelDL context.CancelFunc
		tctx, cancelDL = context.WithDeadline(tctx, dl)
		defer cancelDL()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(tctx, actions...)
}

const readyScript = `(async () => {
  if (document.readyState !== "complete") return false;
  if (document.fonts) await document.fonts.ready;
  await Promise.all(Array.from(document.images).map(i => i.complete ? null : i.decode().catch(() => null)));
  return true;
})()`

const repaintScript = `new Promise(r => requestAnimationFrame(() => requestAnimationFrame(() => { void document.body.offsetHeight; r(true); })))`

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// Load sets the viewport and document content, then waits until the document,
// its fonts and its images have loaded.
func (p *ChromePage) Load(ctx context.Context, html string, vp Viewport) error {
	p.vp = vp
	return p.run(ctx,
		chromedp.EmulateViewport(int64(vp.Width), int64(vp.Height), chromedp.EmulateScale(vp.Scale)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for {
				var ready bool
				if err := chromedp.Evaluate(readyScript, &ready, awaitPromise).Do(ctx); err != nil {
					return err
				}
				if ready {
					return nil
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(p.poll):
				}
			}
		}),
	)
}

// Repaint waits two animation frames after forcing layout.
func (p *ChromePage) Repaint(ctx context.Context) error {
	var ok bool
	return p.run(ctx, chromedp.Evaluate(repaintScript, &ok, awaitPromise))
}

// Capture takes a PNG screenshot of the viewport.
func (p *ChromePage) Capture(ctx context.Context) (image.Image, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithFromSurface(true).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, errors.New("empty screenshot")
	}
	return png.Decode(bytes.NewReader(buf))
}

// Close shuts the tab and the browser.
func (p *ChromePage) Close() error {
	err := chromedp.Cancel(p.ctx)
	p.cancelTab()
	p.cancelAlloc()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
