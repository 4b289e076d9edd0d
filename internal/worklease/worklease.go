// Package worklease implements the Worker-Lease Registry of §4.2: a bounded
// counting semaphore of size N handed out as per-goroutine leases, at most
// one of which a goroutine may hold at a time.
//
// Go has no stable goroutine-local storage, so where the original design
// asks a thread for "its" current lease, this package instead threads the
// lease explicitly through context.Context. A lease already present in the
// context (because the calling goroutine is itself running inside a node
// action dispatched by an Executor Worker — the nested-submission scenario
// of spec.md §8) is reused rather than allocating a new one; an absent lease
// means a fresh one is created for the call.
package worklease

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Registry is a counting semaphore of size N. try_lock acquisitions are
// non-blocking, per §4.2, which is exactly golang.org/x/sync/semaphore's
// TryAcquire.
type Registry struct {
	sem *semaphore.Weighted
	n   int
}

// NewRegistry returns a Registry admitting at most n concurrently held
// leases. n must be >= 1; the executor facade is responsible for rejecting
// smaller values at construction (§6, §7).
func NewRegistry(n int) *Registry {
	return &Registry{sem: semaphore.NewWeighted(int64(n)), n: n}
}

// Size returns N, the configured lease capacity.
func (r *Registry) Size() int { return r.n }

// NewLease returns a fresh, unlocked lease handle tied to no goroutine in
// particular; the caller is responsible for ensuring only one goroutine
// uses it at a time (the Executor Worker loop does this naturally, since a
// lease it owns is only ever touched from the worker's own loop).
func (r *Registry) NewLease() *Lease {
	return &Lease{registry: r}
}

// Lease is a single slot out of a Registry's N. A Lease is either locked
// (counted against the semaphore) or unlocked; TryLock/Unlock must only be
// called while the coordination state lock is held, so that a waiter can be
// woken atomically with the release (§4.2).
type Lease struct {
	registry *Registry
	locked   bool
}

// TryLock attempts a non-blocking acquire. It returns true immediately if
// the lease is already locked (idempotent re-lock, matching
// isLockedByCurrentThread short-circuits in the original design).
func (l *Lease) TryLock() bool {
	if l.locked {
		return true
	}
	if l.registry.sem.TryAcquire(1) {
		l.locked = true
		return true
	}
	return false
}

// Unlock releases the lease if held. It is a no-op if the lease is already
// unlocked.
func (l *Lease) Unlock() {
	if !l.locked {
		return
	}
	l.locked = false
	l.registry.sem.Release(1)
}

// Locked reports whether this lease currently counts against its Registry.
func (l *Lease) Locked() bool { return l.locked }

type leaseKey struct{}

// WithLease returns a context carrying l as "the current goroutine's worker
// lease", for the benefit of nested Process() calls made from within a
// node's action body.
func WithLease(ctx context.Context, l *Lease) context.Context {
	return context.WithValue(ctx, leaseKey{}, l)
}

// FromContext returns the lease previously attached with WithLease, or nil
// if ctx carries none — meaning the calling goroutine has no lease of its
// own yet and a fresh one should be allocated.
func FromContext(ctx context.Context) *Lease {
	l, _ := ctx.Value(leaseKey{}).(*Lease)
	return l
}
