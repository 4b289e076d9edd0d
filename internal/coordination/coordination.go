package coordination

import "sync"

// Disposition is returned by a StateFunc to tell WithStateLock whether its
// work is done or whether the caller should release any resource locks it
// acquired and wait for a state change before trying again.
type Disposition int

const (
	// Retry means the callback made no progress; WithStateLock waits on the
	// condition variable and reruns the callback once notified.
	Retry Disposition = iota
	// Finished means the callback completed; WithStateLock releases the
	// lock and returns.
	Finished
)

// Token is proof that the coordination lock is currently held by the calling
// goroutine. It is only ever handed out inside a WithStateLock callback and
// must not be retained past that callback's return.
type Token struct {
	svc *Service
}

// Notify wakes every goroutine blocked in a Retry wait. It must only be
// called with a Token obtained from the same Service, i.e. while that
// Service's lock is held — which a Token already guarantees.
func (t *Token) Notify() {
	t.svc.cond.Broadcast()
}

// Service is the Coordination Service of §4.1: a mutex plus a broadcast
// condition variable. There is exactly one Service per executor instance.
type Service struct {
	mu    sync.Mutex
	cond  *sync.Cond
	token *Token
}

// New constructs a ready-to-use coordination Service.
func New() *Service {
	s := &Service{}
	s.cond = sync.NewCond(&s.mu)
	s.token = &Token{svc: s}
	return s
}

// StateFunc is a unit of work that requires the coordination lock held.
type StateFunc func(tok *Token) Disposition

// WithStateLock acquires the lock, invokes f, and interprets its result:
// Finished releases the lock and returns; Retry waits on the condition
// variable and reruns f. The same Token value is handed to every invocation
// of f for the life of the Service, since only one goroutine can hold the
// lock at a time.
func (s *Service) WithStateLock(f StateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if f(s.token) == Finished {
			return
		}
		s.cond.Wait()
	}
}

// MustHold panics if tok was not issued by this Service. Executor packages
// call this at the top of any method documented as requiring the state
// lock — the equivalent of §4.1's assertHasStateLock, adapted to a
// capability token instead of a runtime thread-identity check.
func MustHold(tok *Token, s *Service) {
	if tok == nil || tok.svc != s {
		panic("coordination: method called without holding this Service's state lock")
	}
}
