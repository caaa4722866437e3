// internal/browser/driver.go

// Package browser drives a single Chrome instance over the DevTools
// protocol. The driver owns the browser lifecycle, tracks which tab is
// active as pages open and close, and translates model issued actions into
// raw input events at screen coordinates.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
)

var (
	// ErrLaunch indicates the browser process could not be started or the
	// initial DevTools connection failed.
	ErrLaunch = errors.New("browser launch failed")
	// ErrNoActivePage is returned when every page of the session has closed.
	ErrNoActivePage = errors.New("no active page in browser session")
	// ErrUnsupportedAction is returned for action types the driver does not
	// recognize.
	ErrUnsupportedAction = errors.New("unsupported action type")
)

const (
	// attachTimeout bounds the CDP handshake with a freshly opened tab.
	attachTimeout = 10 * time.Second
	// closeTimeout bounds the graceful browser shutdown in Stop.
	closeTimeout = 15 * time.Second
)

// Driver owns one Chrome instance and the set of pages inside it. All
// command methods are safe for concurrent use, but commands are serialized:
// the protocol offers no way to interleave input events from two logical
// actions without corrupting both.
type Driver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	pages *pageRegistry
	// gate admits one command batch at a time.
	gate *semaphore.Weighted

	// runActionsFunc executes chromedp actions against a page context.
	// Swappable in tests.
	runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
}

// NewDriver creates a Driver. Call Start before issuing commands.
func NewDriver(cfg config.BrowserConfig, logger *zap.Logger) *Driver {
	return &Driver{
		cfg:            cfg,
		logger:         logger.Named("browser"),
		pages:          newPageRegistry(),
		gate:           semaphore.NewWeighted(1),
		runActionsFunc: chromedp.Run,
	}
}

// Start launches Chrome, opens the initial page, and begins tracking page
// targets. The viewport is emulated at the configured size so screenshots
// and the coordinates the model answers with share one coordinate space.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("driver already started")
	}
	d.started = true
	d.mu.Unlock()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, DefaultAllocatorOptions(d.cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			d.logger.Debug(fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			d.logger.Error(fmt.Sprintf(format, args...))
		}),
	)

	d.allocCtx = allocCtx
	d.allocCancel = allocCancel
	d.browserCtx = browserCtx
	d.browserCancel = browserCancel

	success := false
	defer func() {
		if !success {
			browserCancel()
			allocCancel()
		}
	}()

	// The listener must be installed before the first Run so the target
	// discovery replay is not missed. It only records events; attaching
	// happens on the command path.
	chromedp.ListenBrowser(browserCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *target.EventTargetCreated:
			if e.TargetInfo == nil || e.TargetInfo.Type != "page" {
				return
			}
			d.pages.enqueue(pageEvent{kind: pageOpened, id: e.TargetInfo.TargetID})
		case *target.EventTargetDestroyed:
			d.pages.enqueue(pageEvent{kind: pageClosed, id: e.TargetID})
		case *target.EventTargetCrashed:
			d.pages.enqueue(pageEvent{kind: pageClosed, id: e.TargetID})
		}
	})

	launchCtx, cancel := context.WithTimeout(browserCtx, d.cfg.LaunchTimeout)
	defer cancel()

	// The first Run starts the process and creates the initial page.
	// Without discover targets, CDP never reports pages opened by the page
	// itself (window.open, target=_blank), so popups would be invisible.
	err := d.runActionsFunc(launchCtx,
		chromedp.EmulateViewport(int64(d.cfg.ViewportWidth), int64(d.cfg.ViewportHeight)),
		chromedp.ActionFunc(func(c context.Context) error {
			return target.SetDiscoverTargets(true).Do(c)
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	c := chromedp.FromContext(browserCtx)
	if c == nil || c.Target == nil {
		return fmt.Errorf("%w: no target after launch", ErrLaunch)
	}
	d.pages.insert(&tab{id: c.Target.TargetID, ctx: browserCtx, cancel: nil})

	d.logger.Info("Browser started.",
		zap.Bool("headless", d.cfg.Headless),
		zap.Int("viewport_width", d.cfg.ViewportWidth),
		zap.Int("viewport_height", d.cfg.ViewportHeight),
	)

	success = true
	return nil
}

// Stop tears the browser down. It is safe to call multiple times and on a
// driver whose Start failed.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() {
		if d.browserCtx == nil {
			return
		}
		d.logger.Debug("Closing browser.")

		done := make(chan struct{})
		go func() {
			// Graceful close: asks the browser process to exit and waits.
			_ = chromedp.Cancel(d.browserCtx)
			close(done)
		}()
		select {
		case <-done:
			d.logger.Debug("Browser closed.")
		case <-time.After(closeTimeout):
			d.logger.Warn("Timeout waiting for browser to close.")
		}

		d.browserCancel()
		d.allocCancel()
	})
}

// Navigate loads a URL in the active page and waits for the document to
// become ready.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer d.gate.Release(1)
	return d.navigate(ctx, url)
}

func (d *Driver) navigate(ctx context.Context, url string) error {
	d.logger.Debug("Navigating.", zap.String("url", url))
	return d.run(ctx, d.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Capture returns a PNG screenshot of the active page's viewport together
// with its current URL.
func (d *Driver) Capture(ctx context.Context) (schemas.Snapshot, error) {
	if err := d.gate.Acquire(ctx, 1); err != nil {
		return schemas.Snapshot{}, err
	}
	defer d.gate.Release(1)

	var snap schemas.Snapshot
	err := d.run(ctx, d.cfg.ActionTimeout,
		chromedp.CaptureScreenshot(&snap.PNG),
		chromedp.Location(&snap.URL),
	)
	if err != nil {
		return schemas.Snapshot{}, fmt.Errorf("failed to capture page state: %w", err)
	}
	return snap, nil
}

// Location returns the URL of the active page.
func (d *Driver) Location(ctx context.Context) (string, error) {
	if err := d.gate.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer d.gate.Release(1)

	var url string
	if err := d.run(ctx, d.cfg.ActionTimeout, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read page location: %w", err)
	}
	return url, nil
}

// run applies pending page events, resolves the active tab, and executes
// the actions against it under the caller's context and the op timeout.
func (d *Driver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	d.drainPageEvents()

	t, err := d.pages.active()
	if err != nil {
		return err
	}

	opCtx, opCancel := combineContext(t.ctx, ctx)
	defer opCancel()
	runCtx, cancel := context.WithTimeout(opCtx, timeout)
	defer cancel()

	return d.runActionsFunc(runCtx, actions...)
}

// drainPageEvents applies queued target notifications: new page targets are
// attached and become the active tab, destroyed ones are dropped. Attach
// failures are logged and the tab skipped; the page may already be gone.
func (d *Driver) drainPageEvents() {
	for _, ev := range d.pages.takePending() {
		switch ev.kind {
		case pageOpened:
			if d.pages.contains(ev.id) {
				continue
			}
			tabCtx, tabCancel := chromedp.NewContext(d.browserCtx, chromedp.WithTargetID(ev.id))
			attachCtx, cancel := context.WithTimeout(tabCtx, attachTimeout)
			err := d.runActionsFunc(attachCtx,
				chromedp.EmulateViewport(int64(d.cfg.ViewportWidth), int64(d.cfg.ViewportHeight)),
			)
			cancel()
			if err != nil {
				d.logger.Warn("Failed to attach to new page target.",
					zap.String("target_id", string(ev.id)), zap.Error(err))
				tabCancel()
				continue
			}
			d.pages.insert(&tab{id: ev.id, ctx: tabCtx, cancel: tabCancel})
			d.logger.Debug("Switched to new page target.", zap.String("target_id", string(ev.id)))
		case pageClosed:
			if t := d.pages.remove(ev.id); t != nil {
				if t.cancel != nil {
					t.cancel()
				}
				d.logger.Debug("Page target closed.", zap.String("target_id", string(ev.id)))
			}
		}
	}
}
