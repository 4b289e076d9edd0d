// Package coordination implements the single global state lock that every
// other executor package serializes its bookkeeping through.
//
// All mutable executor state — the merged queue of plans, worker leases,
// resource locks, worker lifecycle records — is protected by one
// coordination.Service. A goroutine may only touch that state from inside a
// WithStateLock callback, and must never run a node's action body while
// holding the lock.
//
// Go has no portable equivalent of Java's re-entrant intrinsic lock, so
// instead of asserting "the current goroutine holds the lock" at runtime,
// WithStateLock hands its callback a *Token. Only code that received a Token
// from an enclosing WithStateLock call may call methods that require the
// lock to be held; passing the Token down the call stack is the proof. The
// compiler checks that a Token is passed, and MustHold checks at run time
// that it was issued by the Service whose state is being touched.
package coordination
