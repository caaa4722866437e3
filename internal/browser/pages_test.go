// internal/browser/pages_test.go
package browser

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// actionRecorder stands in for chromedp.Run and captures every batch of
// actions the driver tries to execute.
type actionRecorder struct {
	mu    sync.Mutex
	calls [][]chromedp.Action
	err   error
}

func (r *actionRecorder) run(_ context.Context, actions ...chromedp.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, actions)
	return r.err
}

func (r *actionRecorder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *actionRecorder) lastCall() []chromedp.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

// newTestDriver returns a driver whose protocol calls are routed to the
// recorder and whose page registry is seeded with one active tab.
func newTestDriver(t *testing.T) (*Driver, *actionRecorder) {
	t.Helper()

	rec := &actionRecorder{}
	d := NewDriver(config.NewDefaultConfig().Browser, zaptest.NewLogger(t))
	d.browserCtx = context.Background()
	d.runActionsFunc = rec.run
	d.pages.insert(&tab{id: target.ID("tab-initial"), ctx: context.Background()})
	return d, rec
}

func TestPageRegistryFocus(t *testing.T) {
	newTab := func(id string) *tab {
		return &tab{id: target.ID(id), ctx: context.Background()}
	}

	t.Run("a new page becomes the active page", func(t *testing.T) {
		reg := newPageRegistry()
		reg.insert(newTab("a"))
		reg.insert(newTab("b"))

		active, err := reg.active()
		require.NoError(t, err)
		assert.Equal(t, target.ID("b"), active.id)
		assert.Equal(t, 2, reg.count())
	})

	t.Run("closing a background page keeps the current one", func(t *testing.T) {
		reg := newPageRegistry()
		reg.insert(newTab("a"))
		reg.insert(newTab("b"))
		reg.insert(newTab("c"))

		removed := reg.remove(target.ID("a"))
		require.NotNil(t, removed)

		active, err := reg.active()
		require.NoError(t, err)
		assert.Equal(t, target.ID("c"), active.id)
	})

	t.Run("closing the active page falls back to the most recent", func(t *testing.T) {
		reg := newPageRegistry()
		reg.insert(newTab("a"))
		reg.insert(newTab("b"))
		reg.insert(newTab("c"))

		reg.remove(target.ID("c"))

		active, err := reg.active()
		require.NoError(t, err)
		assert.Equal(t, target.ID("b"), active.id)
	})

	t.Run("closing the last page leaves no active page", func(t *testing.T) {
		reg := newPageRegistry()
		reg.insert(newTab("a"))
		reg.remove(target.ID("a"))

		_, err := reg.active()
		assert.ErrorIs(t, err, ErrNoActivePage)
		assert.Equal(t, 0, reg.count())
	})

	t.Run("removing an unknown target is a no-op", func(t *testing.T) {
		reg := newPageRegistry()
		reg.insert(newTab("a"))

		assert.Nil(t, reg.remove(target.ID("ghost")))
		assert.Equal(t, 1, reg.count())
	})

	t.Run("inserting a known target refocuses without duplicating", func(t *testing.T) {
		reg := newPageRegistry()
		first := newTab("a")
		reg.insert(first)
		reg.insert(newTab("b"))
		reg.insert(newTab("a"))

		active, err := reg.active()
		require.NoError(t, err)
		assert.Equal(t, 2, reg.count())
		assert.Same(t, first, active)
	})
}

func TestPageRegistryPending(t *testing.T) {
	reg := newPageRegistry()
	reg.enqueue(pageEvent{kind: pageOpened, id: target.ID("a")})
	reg.enqueue(pageEvent{kind: pageClosed, id: target.ID("b")})

	pending := reg.takePending()
	require.Len(t, pending, 2)
	assert.Equal(t, pageOpened, pending[0].kind)
	assert.Equal(t, target.ID("a"), pending[0].id)
	assert.Equal(t, pageClosed, pending[1].kind)

	assert.Empty(t, reg.takePending(), "draining should clear the queue")
}

func TestDriverDrainPageEvents(t *testing.T) {
	t.Run("attaches and focuses a newly opened page", func(t *testing.T) {
		d, rec := newTestDriver(t)
		d.pages.enqueue(pageEvent{kind: pageOpened, id: target.ID("popup")})

		d.drainPageEvents()

		active, err := d.pages.active()
		require.NoError(t, err)
		assert.Equal(t, target.ID("popup"), active.id)
		assert.Equal(t, 2, d.pages.count())
		// The attach handshake emulates the viewport on the new tab.
		assert.Equal(t, 1, rec.callCount())
	})

	t.Run("skips the page when the attach handshake fails", func(t *testing.T) {
		d, rec := newTestDriver(t)
		rec.err = errors.New("target closed")
		d.pages.enqueue(pageEvent{kind: pageOpened, id: target.ID("popup")})

		d.drainPageEvents()

		active, err := d.pages.active()
		require.NoError(t, err)
		assert.Equal(t, target.ID("tab-initial"), active.id)
		assert.Equal(t, 1, d.pages.count())
	})

	t.Run("ignores replayed creation events for known targets", func(t *testing.T) {
		d, rec := newTestDriver(t)
		d.pages.enqueue(pageEvent{kind: pageOpened, id: target.ID("tab-initial")})

		d.drainPageEvents()

		assert.Equal(t, 1, d.pages.count())
		assert.Equal(t, 0, rec.callCount(), "no handshake should run for a known target")
	})

	t.Run("releases a closed page and refocuses", func(t *testing.T) {
		d, _ := newTestDriver(t)
		cancelled := false
		d.pages.insert(&tab{
			id:     target.ID("popup"),
			ctx:    context.Background(),
			cancel: func() { cancelled = true },
		})
		d.pages.enqueue(pageEvent{kind: pageClosed, id: target.ID("popup")})

		d.drainPageEvents()

		active, err := d.pages.active()
		require.NoError(t, err)
		assert.Equal(t, target.ID("tab-initial"), active.id)
		assert.True(t, cancelled, "the tab's protocol context should be released")
	})
}

func TestDriverCommandsWithoutPages(t *testing.T) {
	rec := &actionRecorder{}
	d := NewDriver(config.NewDefaultConfig().Browser, zaptest.NewLogger(t))
	d.browserCtx = context.Background()
	d.runActionsFunc = rec.run

	_, err := d.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoActivePage)

	_, err = d.Location(context.Background())
	assert.ErrorIs(t, err, ErrNoActivePage)

	err = d.Navigate(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, ErrNoActivePage)

	assert.Equal(t, 0, rec.callCount())
}
