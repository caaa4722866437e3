// internal/browser/pages.go
package browser

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/target"
)

// pageEventKind classifies a target lifecycle notification from the browser.
type pageEventKind int

const (
	pageOpened pageEventKind = iota
	pageClosed
)

// pageEvent records a target lifecycle notification. Events are produced by
// the browser listener goroutine and consumed by the driver before each
// operation, so no CDP traffic happens on the listener itself.
type pageEvent struct {
	kind pageEventKind
	id   target.ID
}

// tab couples a page target with the chromedp context attached to it. The
// initial tab rides on the browser's own context and carries a nil cancel,
// since tearing that context down would take the whole browser with it.
type tab struct {
	id     target.ID
	ctx    context.Context
	cancel context.CancelFunc
}

// pageRegistry tracks the open tabs of a browser session and which one
// commands are addressed to. A freshly opened tab becomes the active one,
// matching what a user sees when a link spawns a popup. When the active tab
// closes, focus falls back to the most recently opened survivor.
type pageRegistry struct {
	mu      sync.Mutex
	tabs    []*tab
	current int // index into tabs, -1 when empty
	pending []pageEvent
}

func newPageRegistry() *pageRegistry {
	return &pageRegistry{current: -1}
}

// enqueue records a lifecycle event for later processing.
func (r *pageRegistry) enqueue(ev pageEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, ev)
}

// takePending returns the queued events and clears the queue.
func (r *pageRegistry) takePending() []pageEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.pending
	r.pending = nil
	return events
}

// contains reports whether a target is already tracked. Discovery replays
// existing targets when it is first enabled, so insertions must be
// deduplicated against the tab registered at startup.
func (r *pageRegistry) contains(id target.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexOf(id) >= 0
}

// insert registers a tab and makes it the active one. Inserting an already
// tracked target only moves focus to it.
func (r *pageRegistry) insert(t *tab) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOf(t.id); i >= 0 {
		r.current = i
		return
	}
	r.tabs = append(r.tabs, t)
	r.current = len(r.tabs) - 1
}

// remove drops a tab from the registry and returns it so the caller can
// release its context. Removing the active tab shifts focus to the most
// recently opened of the remaining tabs; removing the last tab leaves the
// registry empty.
func (r *pageRegistry) remove(id target.ID) *tab {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil
	}
	removed := r.tabs[i]
	r.tabs = append(r.tabs[:i], r.tabs[i+1:]...)

	switch {
	case len(r.tabs) == 0:
		r.current = -1
	case i == r.current:
		r.current = len(r.tabs) - 1
	case i < r.current:
		r.current--
	}
	return removed
}

// active returns the tab commands are currently addressed to.
func (r *pageRegistry) active() (*tab, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current < 0 || r.current >= len(r.tabs) {
		return nil, ErrNoActivePage
	}
	return r.tabs[r.current], nil
}

// count returns the number of tracked tabs.
func (r *pageRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tabs)
}

// indexOf must be called with the mutex held.
func (r *pageRegistry) indexOf(id target.ID) int {
	for i, t := range r.tabs {
		if t.id == id {
			return i
		}
	}
	return -1
}
