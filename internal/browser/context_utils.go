// internal/browser/context_utils.go
package browser

import "context"

// combineContext creates a new context derived from primary (which carries
// the CDP target and the page lifetime) that is additionally canceled when
// secondary (the caller's request context) is done.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(primary)

	// Link secondary's lifecycle to the combined context. The goroutine
	// stops when either context is done.
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
