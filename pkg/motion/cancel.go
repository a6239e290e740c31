package motion

import "sync/atomic"

// Token is a cooperative cancellation flag shared between the control
// loop and its caller. The loop polls it on the hot path; any goroutine
// may set it at any time.
type Token struct {
	flag atomic.Bool
}

// NewToken returns a fresh, uncancelled token.
func NewToken() *Token {
	return &Token{}
}

// Cancel sets the flag. Idempotent.
func (t *Token) Cancel() {
	t.flag.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	return t.flag.Load()
}

// Reset clears the flag so the token can be reused for a new session.
func (t *Token) Reset() {
	t.flag.Store(false)
}
