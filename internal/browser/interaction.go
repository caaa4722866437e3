// internal/browser/interaction.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/keymap"
)

// Execute performs one model issued action against the active page. Unknown
// action types return ErrUnsupportedAction; unknown mouse buttons do not,
// they fall back to a left click so a near miss from the model still makes
// progress.
func (d *Driver) Execute(ctx context.Context, action schemas.Action) error {
	if err := d.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer d.gate.Release(1)

	d.logger.Debug("Executing action.", zap.String("action", action.Summary()))

	switch action.Type {
	case schemas.ActionClick:
		return d.click(ctx, action)
	case schemas.ActionDoubleClick:
		return d.doubleClick(ctx, action)
	case schemas.ActionDrag:
		return d.drag(ctx, action)
	case schemas.ActionKeypress:
		return d.keypress(ctx, action.Keys)
	case schemas.ActionMove:
		return d.move(ctx, action)
	case schemas.ActionScreenshot:
		// The loop snapshots the page after every action anyway.
		return nil
	case schemas.ActionScroll:
		return d.scroll(ctx, action)
	case schemas.ActionTypeText:
		return d.typeText(ctx, action.Text)
	case schemas.ActionWait:
		return d.run(ctx, d.cfg.ActionTimeout, chromedp.Sleep(time.Second))
	case schemas.ActionNavigate:
		return d.navigate(ctx, action.URL)
	case schemas.ActionBack:
		return d.historyStep(ctx, -1)
	case schemas.ActionForward:
		return d.historyStep(ctx, +1)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedAction, action.Type)
	}
}

// -- Mouse --

func (d *Driver) click(ctx context.Context, action schemas.Action) error {
	switch action.Button {
	case schemas.ButtonBack:
		return d.historyStep(ctx, -1)
	case schemas.ButtonForward:
		return d.historyStep(ctx, +1)
	case schemas.ButtonWheel:
		// A wheel "click" carries scroll deltas in its coordinates.
		wheel := input.DispatchMouseEvent(input.MouseWheel, 0, 0).
			WithDeltaX(float64(action.X)).
			WithDeltaY(float64(action.Y))
		return d.run(ctx, d.cfg.ActionTimeout, wheel)
	}

	x, y := float64(action.X), float64(action.Y)
	button := mouseButton(action.Button)
	move := input.DispatchMouseEvent(input.MouseMoved, x, y)
	press := input.DispatchMouseEvent(input.MousePressed, x, y).
		WithButton(button).
		WithClickCount(1)
	release := input.DispatchMouseEvent(input.MouseReleased, x, y).
		WithButton(button).
		WithClickCount(1)
	return d.run(ctx, d.cfg.ActionTimeout, move, press, release)
}

func (d *Driver) doubleClick(ctx context.Context, action schemas.Action) error {
	x, y := float64(action.X), float64(action.Y)
	actions := make([]chromedp.Action, 0, 5)
	actions = append(actions, input.DispatchMouseEvent(input.MouseMoved, x, y))
	for _, count := range []int64{1, 2} {
		actions = append(actions,
			input.DispatchMouseEvent(input.MousePressed, x, y).
				WithButton(input.Left).
				WithClickCount(count),
			input.DispatchMouseEvent(input.MouseReleased, x, y).
				WithButton(input.Left).
				WithClickCount(count),
		)
	}
	return d.run(ctx, d.cfg.ActionTimeout, actions...)
}

func (d *Driver) drag(ctx context.Context, action schemas.Action) error {
	if len(action.Path) == 0 {
		return nil
	}

	first := action.Path[0]
	last := action.Path[len(action.Path)-1]
	actions := make([]chromedp.Action, 0, len(action.Path)+3)

	actions = append(actions,
		input.DispatchMouseEvent(input.MouseMoved, float64(first.X), float64(first.Y)),
		input.DispatchMouseEvent(input.MousePressed, float64(first.X), float64(first.Y)).
			WithButton(input.Left).
			WithClickCount(1),
	)
	for _, p := range action.Path[1:] {
		actions = append(actions,
			input.DispatchMouseEvent(input.MouseMoved, float64(p.X), float64(p.Y)).
				WithButton(input.Left),
		)
	}
	actions = append(actions,
		input.DispatchMouseEvent(input.MouseReleased, float64(last.X), float64(last.Y)).
			WithButton(input.Left).
			WithClickCount(1),
	)
	return d.run(ctx, d.cfg.ActionTimeout, actions...)
}

func (d *Driver) move(ctx context.Context, action schemas.Action) error {
	mv := input.DispatchMouseEvent(input.MouseMoved, float64(action.X), float64(action.Y))
	return d.run(ctx, d.cfg.ActionTimeout, mv)
}

func (d *Driver) scroll(ctx context.Context, action schemas.Action) error {
	// Positioning the pointer first lets nested scroll containers under the
	// coordinate receive the scroll instead of the document root.
	mv := input.DispatchMouseEvent(input.MouseMoved, float64(action.X), float64(action.Y))
	expr := fmt.Sprintf("window.scrollBy(%d, %d)", action.ScrollX, action.ScrollY)
	return d.run(ctx, d.cfg.ActionTimeout, mv, chromedp.Evaluate(expr, nil))
}

func mouseButton(b schemas.MouseButton) input.MouseButton {
	switch b {
	case schemas.ButtonRight:
		return input.Right
	default:
		return input.Left
	}
}

// -- Keyboard --

// keypress holds down each key of the chord in order and releases in
// reverse, so "ctrl, a" arrives as Control down, a down, a up, Control up.
func (d *Driver) keypress(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	native := keymap.NativeAll(keys)
	actions := make([]chromedp.Action, 0, 2*len(native))
	for _, key := range native {
		actions = append(actions, input.DispatchKeyEvent(input.KeyDown).WithKey(key))
	}
	for i := len(native) - 1; i >= 0; i-- {
		actions = append(actions, input.DispatchKeyEvent(input.KeyUp).WithKey(native[i]))
	}
	return d.run(ctx, d.cfg.ActionTimeout, actions...)
}

func (d *Driver) typeText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	return d.run(ctx, d.cfg.ActionTimeout, chromedp.KeyEvent(text))
}

// -- History --

// historyStep moves through the page's navigation history. Unlike the raw
// protocol call this is a no-op at either end of the history, matching how
// a browser's own back button behaves when there is nowhere to go.
func (d *Driver) historyStep(ctx context.Context, delta int64) error {
	return d.run(ctx, d.cfg.NavigationTimeout, chromedp.ActionFunc(func(c context.Context) error {
		current, entries, err := page.GetNavigationHistory().Do(c)
		if err != nil {
			return err
		}
		next := current + delta
		if next < 0 || next >= int64(len(entries)) {
			return nil
		}
		return page.NavigateToHistoryEntry(entries[next].ID).Do(c)
	}))
}
