// Package resourcelock implements the Resource-Lock Registry of §4.3/§5: a
// per-project mutex ("project lock") and a set of named, concurrency-bounded
// shared resources, leased together atomically alongside a worker lease.
//
// Every method here is documented as requiring the coordination state lock
// to already be held by the calling goroutine (enforced by the concrete
// WorkSource implementations that embed a Registry, e.g. taskgraph.Plan).
// Because the single coordination lock already serializes every call into
// this package, the Registry needs no mutex of its own — it is plain
// bookkeeping, not a concurrency primitive in its own right.
package resourcelock

import "fmt"

// Registry tracks declared shared-resource capacities and currently held
// project locks / resource leases.
type Registry struct {
	limits       map[string]int
	inUse        map[string]int
	projectsHeld map[string]bool
}

// NewRegistry returns an empty Registry. Resources default to a concurrency
// of 1 if never declared via Declare.
func NewRegistry() *Registry {
	return &Registry{
		limits:       make(map[string]int),
		inUse:        make(map[string]int),
		projectsHeld: make(map[string]bool),
	}
}

// Declare registers the maximum concurrency for a named shared resource.
// concurrency must be >= 1.
func (r *Registry) Declare(name string, concurrency int) error {
	if concurrency < 1 {
		return fmt.Errorf("resourcelock: invalid concurrency %d for resource %q: must be >= 1", concurrency, name)
	}
	r.limits[name] = concurrency
	return nil
}

func (r *Registry) limit(name string) int {
	if n, ok := r.limits[name]; ok {
		return n
	}
	return 1
}

// Lock is a node's declared set of coarse-grained resources: an optional
// project lock (empty string means the node is "isolated" and declares
// none) and a list of named shared resources. All are acquired together, or
// none are (§5).
type Lock struct {
	registry  *Registry
	project   string
	resources []string

	gotProject bool
	gotResources []string
}

// NewLock builds a Lock for the given project (pass "" for an isolated
// node) and resource list. The returned Lock is not yet acquired.
func NewLock(registry *Registry, project string, resources []string) *Lock {
	return &Lock{registry: registry, project: project, resources: resources}
}

// TryAcquire attempts a non-blocking acquire of the project lock (if any)
// and every declared resource. On any failure it releases whatever it
// already grabbed and returns false, leaving the node eligible to be tried
// again on a later scan (§4.3, §5).
func (l *Lock) TryAcquire() bool {
	if l.project != "" && l.registry.projectsHeld[l.project] {
		return false
	}

	acquired := make([]string, 0, len(l.resources))
	for _, name := range l.resources {
		if l.registry.inUse[name] >= l.registry.limit(name) {
			for _, held := range acquired {
				l.registry.inUse[held]--
			}
			return false
		}
		l.registry.inUse[name]++
		acquired = append(acquired, name)
	}

	if l.project != "" {
		l.registry.projectsHeld[l.project] = true
		l.gotProject = true
	}
	l.gotResources = acquired
	return true
}

// Release gives back everything this Lock currently holds. It is a no-op if
// nothing was acquired (or Release was already called).
func (l *Lock) Release() {
	for _, name := range l.gotResources {
		l.registry.inUse[name]--
	}
	l.gotResources = nil
	if l.gotProject {
		l.registry.projectsHeld[l.project] = false
		l.gotProject = false
	}
}
