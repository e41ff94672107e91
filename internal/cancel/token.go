// Package cancel provides the shared cancellation token threaded through
// every pipeline stage. The token is set once from outside the run and only
// ever observed by the workers; it is never cleared for the lifetime of a run.
package cancel

import "sync/atomic"

// Token is a one-way cancellation flag. The zero value is usable and not
// cancelled. All methods are safe for concurrent use from any goroutine.
type Token struct {
	flag atomic.Bool
}

// New returns a fresh, not-yet-cancelled token.
func New() *Token {
	return &Token{}
}

// Cancel marks the token as cancelled. Calling it more than once, or before
// any work has started, is a no-op beyond the first call.
func (t *Token) Cancel() {
	if t == nil {
		return
	}
	t.flag.Store(true)
}

// Cancelled reports whether Cancel has been called. A nil token reads as
// not cancelled so callers can pass nil when cancellation is not wired up.
func (t *Token) Cancelled() bool {
	if t == nil {
		return false
	}
	return t.flag.Load()
}
