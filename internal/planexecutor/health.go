package planexecutor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vk/taskplan/internal/coordination"
	"github.com/vk/taskplan/internal/diagnostics"
	"github.com/vk/taskplan/internal/queue"
)

// workerState is a worker's lifecycle state (§3): Running <-> Waiting;
// Running|Waiting -> Stopped on thread exit. The initial state is Running.
type workerState int32

const (
	stateRunning workerState = iota
	stateWaiting
	stateStopped
)

// workerRecord is the per-worker lifecycle record the health monitor reads
// (§4.6). It doubles as that worker's WorkerStats so state transitions and
// timing share one object, the way the original's WorkerState does.
type workerRecord struct {
	state atomic.Int32

	delegate WorkerStats
}

func newWorkerRecord(delegate WorkerStats) *workerRecord {
	r := &workerRecord{delegate: delegate}
	r.state.Store(int32(stateRunning))
	return r
}

func (r *workerRecord) StartSelect()       { r.delegate.StartSelect() }
func (r *workerRecord) FinishSelect()      { r.delegate.FinishSelect() }
func (r *workerRecord) StartExecute()      { r.delegate.StartExecute() }
func (r *workerRecord) FinishExecute()     { r.delegate.FinishExecute() }
func (r *workerRecord) StartMarkFinished() { r.delegate.StartMarkFinished() }
func (r *workerRecord) FinishMarkFinished() {
	r.delegate.FinishMarkFinished()
}

func (r *workerRecord) Finish() {
	r.state.Store(int32(stateStopped))
	r.delegate.Finish()
}

// StartWaitingForNextItem transitions Running -> Waiting. Panics if the
// worker wasn't Running, matching the original's invariant check.
func (r *workerRecord) StartWaitingForNextItem() {
	if !r.state.CompareAndSwap(int32(stateRunning), int32(stateWaiting)) {
		panic("planexecutor: unexpected state for worker transitioning to Waiting")
	}
	r.delegate.StartWaitingForNextItem()
}

// FinishWaitingForNextItem transitions back to Running.
func (r *workerRecord) FinishWaitingForNextItem() {
	if workerState(r.state.Load()) == stateStopped {
		panic("planexecutor: unexpected state for worker transitioning out of Waiting")
	}
	r.state.Store(int32(stateRunning))
	r.delegate.FinishWaitingForNextItem()
}

// workerList is a concurrent append-only list of workerRecords, the Go
// counterpart of the original's CopyOnWriteArrayList<WorkerState>.
type workerList struct {
	mu      sync.Mutex
	records []*workerRecord
}

func (w *workerList) add(r *workerRecord) {
	w.mu.Lock()
	w.records = append(w.records, r)
	w.mu.Unlock()
}

func (w *workerList) snapshot() []*workerRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*workerRecord, len(w.records))
	copy(out, w.records)
	return out
}

// LivenessFailurePrefix is the recognizable prefix of the diagnostic message
// emitted on a liveness failure (§6).
const LivenessFailurePrefix = "Unable to make progress running work"

// healthMonitor implements §4.6: maybeStartWorkers is idempotent via a
// compare-and-swap, and AssertHealthy detects the case where work is queued
// but no worker can make progress.
type healthMonitor struct {
	started atomic.Bool
	workers workerList
}

// MaybeStartWorkers runs start exactly once across the lifetime of this
// monitor, no matter how many goroutines call it concurrently.
func (h *healthMonitor) MaybeStartWorkers(start func()) {
	if h.started.CompareAndSwap(false, true) {
		start()
	}
}

func (h *healthMonitor) startWorker(stats WorkerStats) *workerRecord {
	r := newWorkerRecord(stats)
	h.workers.add(r)
	return r
}

// AssertHealthy implements the liveness rule of §4.6. Requires the
// coordination lock held; tok is only obtainable from inside a
// WithStateLock callback, which is the proof of that.
func (h *healthMonitor) AssertHealthy(tok *coordination.Token, q *queue.MergedQueue) error {
	if q.NothingQueued(tok) {
		return nil
	}
	if !h.started.Load() {
		// Workers have not been started yet; assume this will happen.
		return nil
	}

	records := h.workers.snapshot()
	if len(records) == 0 {
		return nil
	}

	var waiting, stopped int
	for _, r := range records {
		switch workerState(r.state.Load()) {
		case stateRunning:
			return nil
		case stateWaiting:
			waiting++
		case stateStopped:
			stopped++
		}
	}

	tree := diagnostics.NewTree(fmt.Sprintf("%s. The following items are queued for execution but none of them can be started:", LivenessFailurePrefix))
	q.AppendHealthDiagnostics(tok, tree)
	tree.Child(fmt.Sprintf("Workers waiting for work: %d", waiting))
	tree.Child(fmt.Sprintf("Stopped workers: %d", stopped))

	failure := fmt.Errorf("%s. There are items queued for execution but none of them can be started:\n%s", LivenessFailurePrefix, tree.String())
	q.AbortAllAndFail(tok, failure)
	return failure
}
