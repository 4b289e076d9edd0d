// Package cancellation provides the build-wide cancellation token described
// in §6: an external input that may flip from false to true at most once.
package cancellation

import "sync/atomic"

// Token is safe for concurrent use. The zero value is an untriggered token.
type Token struct {
	triggered atomic.Bool
}

// New returns an untriggered Token, ready to hand to a Plan Executor Facade.
func New() *Token {
	return &Token{}
}

// Trigger requests cancellation. Safe to call more than once; only the first
// call has any effect.
func (t *Token) Trigger() {
	t.triggered.Store(true)
}

// Triggered reports whether Trigger has been called.
func (t *Token) Triggered() bool {
	return t.triggered.Load()
}
