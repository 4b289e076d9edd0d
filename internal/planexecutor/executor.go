// Package planexecutor wires the Coordination Service, Worker-Lease
// Registry and Merged Queue together into the Executor Worker loop, the
// health monitor, and the public Plan Executor Facade of §4.7: Executor.
package planexecutor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vk/taskplan/internal/cancellation"
	"github.com/vk/taskplan/internal/coordination"
	"github.com/vk/taskplan/internal/ctxlog"
	"github.com/vk/taskplan/internal/queue"
	"github.com/vk/taskplan/internal/worklease"
	"github.com/vk/taskplan/internal/worksource"
)

// defaultLivenessCheckInterval paces the background AssertHealthy driver
// started by New. Short enough that a stuck graph surfaces promptly, long
// enough not to contend with coord's lock under normal load.
const defaultLivenessCheckInterval = 500 * time.Millisecond

// Option configures an Executor at construction time.
type Option func(*Executor)

// WithStats enables the collecting stats implementation (the stats_property
// of §6), off by default.
func WithStats() Option {
	return func(e *Executor) { e.stats = newCollectingStats() }
}

// WithLivenessCheckInterval overrides the pacing of the background
// AssertHealthy driver (defaultLivenessCheckInterval otherwise). Mainly
// useful to tests that need a stuck plan to surface quickly.
func WithLivenessCheckInterval(d time.Duration) Option {
	return func(e *Executor) { e.livenessInterval = d }
}

// Executor is the Plan Executor Facade of §4.7.
type Executor struct {
	workerCount      int
	coord            *coordination.Service
	leases           *worklease.Registry
	cancelToken      *cancellation.Token
	queue            *queue.MergedQueue
	health           *healthMonitor
	stats            Stats
	pool             sync.WaitGroup
	stopOnce         sync.Once
	backgroundCtx    context.Context
	cancelBg         context.CancelFunc
	livenessInterval time.Duration
}

// New constructs an Executor with a pool of workerCount worker leases.
// workerCount must be >= 1 (§6, §7).
func New(workerCount int, cancelToken *cancellation.Token, opts ...Option) (*Executor, error) {
	if workerCount < 1 {
		return nil, fmt.Errorf("planexecutor: invalid number of parallel executors: %d", workerCount)
	}
	coord := coordination.New()
	bgCtx, cancelBg := context.WithCancel(context.Background())
	e := &Executor{
		workerCount:      workerCount,
		coord:            coord,
		leases:           worklease.NewRegistry(workerCount),
		cancelToken:      cancelToken,
		queue:            queue.New(coord, false),
		health:           &healthMonitor{},
		stats:            noopStats{},
		backgroundCtx:    bgCtx,
		cancelBg:         cancelBg,
		livenessInterval: defaultLivenessCheckInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pool.Add(1)
	go func() {
		defer e.pool.Done()
		e.monitorLiveness()
	}()
	return e, nil
}

// monitorLiveness is the periodic health-check driver of §4.6/§5: it calls
// AssertHealthy on an interval for as long as the Executor is alive, so a
// plan stuck with nothing able to start aborts instead of hanging forever
// even though the caller thread stays blocked inside Process the whole time.
func (e *Executor) monitorLiveness() {
	ticker := time.NewTicker(e.livenessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.backgroundCtx.Done():
			return
		case <-ticker.C:
			_ = e.AssertHealthy()
		}
	}
}

// Process is the facade entry point of §4.7: it submits source to the
// shared queue, ensures the background worker pool exists, then runs the
// calling goroutine as a worker against a private queue containing only
// this plan, and finally blocks until the plan is fully drained.
func (e *Executor) Process(ctx context.Context, source worksource.Source, action func(context.Context, worksource.Node) error) ([]error, error) {
	details := &queue.PlanDetails{Source: source, Action: action}
	if err := e.queue.Add(details); err != nil {
		return nil, err
	}

	e.MaybeStartWorkers(ctx)

	// Reuse the calling goroutine's lease if it already has one (the
	// nested-submission case of spec.md §8 scenario 5, where this call is
	// made from inside a node action dispatched by another worker); allocate
	// a fresh one otherwise. Either way this call releases it on the way out
	// only if it allocated it itself — a lease inherited from an enclosing
	// worker stays with that worker's loop.
	lease := worklease.FromContext(ctx)
	ownsLease := lease == nil
	if ownsLease {
		lease = e.leases.NewLease()
	}

	private := queue.New(e.coord, true)
	if err := private.Add(details); err != nil {
		return nil, err
	}

	stats := e.stats.StartWorker()
	record := e.health.startWorker(stats)
	w := newWorker(private, lease, e.cancelToken, e.coord, e.leases, record)
	w.releaseOwn = ownsLease
	w.run(ctx)

	failures := e.awaitCompletion(source, lease, ownsLease)
	return failures, nil
}

// awaitCompletion blocks until source.AllExecutionComplete(), per §4.7 step 5.
// By the time it runs, worker.run has already released the lease if it owned
// it (worker.go's releaseOwn branch), so the TryLock below just re-acquires
// it long enough to safely read the shared queue; a self-allocated lease is
// handed back to the registry before returning, or the next top-level
// Process call on this Executor would permanently lose that worker slot.
func (e *Executor) awaitCompletion(source worksource.Source, lease *worklease.Lease, ownsLease bool) []error {
	var failures []error
	e.coord.WithStateLock(func(tok *coordination.Token) coordination.Disposition {
		if source.AllExecutionComplete() {
			if !lease.Locked() {
				if !lease.TryLock() {
					return coordination.Retry
				}
			}
			source.CollectFailures(&failures)
			e.queue.RemoveFinishedPlans(tok)
			if ownsLease {
				lease.Unlock()
			}
			return coordination.Finished
		}
		lease.Unlock()
		return coordination.Retry
	})
	return failures
}

// MaybeStartWorkers ensures the background worker pool exists, starting
// workerCount-1 goroutines exactly once (the calling goroutine of the first
// Process call plays the role of the Nth worker, per §4.6/§4.7). callerCtx
// only lends its logger to the spawned workers; their lifetime is governed
// by e.backgroundCtx, cancelled from Stop.
func (e *Executor) MaybeStartWorkers(callerCtx context.Context) {
	bgCtx := ctxlog.WithLogger(e.backgroundCtx, ctxlog.FromContext(callerCtx))
	e.health.MaybeStartWorkers(func() {
		for i := 1; i < e.workerCount; i++ {
			e.pool.Add(1)
			go func() {
				defer e.pool.Done()
				stats := e.stats.StartWorker()
				record := e.health.startWorker(stats)
				w := newWorker(e.queue, nil, e.cancelToken, e.coord, e.leases, record)
				w.run(bgCtx)
			}()
		}
	})
}

// AssertHealthy implements the liveness check of §4.6: it returns a non-nil
// error (and aborts the whole shared queue) if work is queued but no worker
// can make progress. Driven internally by monitorLiveness; exported so a
// caller with its own phase boundaries can also invoke it directly.
func (e *Executor) AssertHealthy() error {
	var err error
	e.coord.WithStateLock(func(tok *coordination.Token) coordination.Disposition {
		err = e.health.AssertHealthy(tok, e.queue)
		return coordination.Finished
	})
	return err
}

// Stop closes the shared queue, waits for background workers to exit, and
// reports stats. Safe to call more than once; subsequent calls are no-ops.
func (e *Executor) Stop(ctx context.Context) error {
	var stopErr error
	e.stopOnce.Do(func() {
		stopErr = e.queue.Close()
		e.cancelBg()
		e.pool.Wait()
		e.stats.Report(ctxlog.FromContext(ctx))
	})
	return stopErr
}
