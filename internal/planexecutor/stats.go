package planexecutor

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Stats is the collector-wide half of the opt-in stats_property feature
// (§6): it hands each worker its own WorkerStats and, on Stop, reports a
// summary. Report must be safe to call more than once.
type Stats interface {
	StartWorker() WorkerStats
	Report(logger *slog.Logger)
}

// WorkerStats times one worker's select/execute/mark-finished phases. Only
// ever touched by the worker that owns it, so no implementation needs its
// own synchronization.
type WorkerStats interface {
	StartWaitingForNextItem()
	FinishWaitingForNextItem()
	StartSelect()
	FinishSelect()
	StartExecute()
	FinishExecute()
	StartMarkFinished()
	FinishMarkFinished()
	Finish()
}

// noopStats is the default, disabled implementation: allocation-free and
// branchless, per §6 ("disabled path is a no-op to preserve hot-path
// performance").
type noopStats struct{}

func (noopStats) StartWorker() WorkerStats { return noopWorkerStats{} }
func (noopStats) Report(*slog.Logger)      {}

type noopWorkerStats struct{}

func (noopWorkerStats) StartWaitingForNextItem()  {}
func (noopWorkerStats) FinishWaitingForNextItem() {}
func (noopWorkerStats) StartSelect()              {}
func (noopWorkerStats) FinishSelect()             {}
func (noopWorkerStats) StartExecute()             {}
func (noopWorkerStats) FinishExecute()            {}
func (noopWorkerStats) StartMarkFinished()        {}
func (noopWorkerStats) FinishMarkFinished()       {}
func (noopWorkerStats) Finish()                   {}

// collectingStats accumulates per-worker timings and reports their averages,
// mirroring the original's CollectingExecutorStats/CollectingWorkerStats.
type collectingStats struct {
	mu        sync.Mutex
	completed []*collectingWorkerStats
}

func newCollectingStats() *collectingStats {
	return &collectingStats{}
}

func (c *collectingStats) StartWorker() WorkerStats {
	return &collectingWorkerStats{owner: c}
}

func (c *collectingStats) workerFinished(w *collectingWorkerStats) {
	c.mu.Lock()
	c.completed = append(c.completed, w)
	c.mu.Unlock()
}

func (c *collectingStats) Report(logger *slog.Logger) {
	c.mu.Lock()
	completed := c.completed
	c.completed = nil
	c.mu.Unlock()

	if len(completed) == 0 {
		logger.Info("worker thread statistics", "worker_count", 0)
		return
	}

	avg := func(pick func(*collectingWorkerStats) time.Duration) time.Duration {
		var total time.Duration
		for _, w := range completed {
			total += pick(w)
		}
		return total / time.Duration(len(completed))
	}

	logger.Info("worker thread statistics",
		"worker_count", len(completed),
		"average_select_time", fmt.Sprint(avg(func(w *collectingWorkerStats) time.Duration { return w.totalSelect })),
		"average_execute_time", fmt.Sprint(avg(func(w *collectingWorkerStats) time.Duration { return w.totalExecute })),
		"average_mark_finished_time", fmt.Sprint(avg(func(w *collectingWorkerStats) time.Duration { return w.totalMarkFinished })),
	)
}

type collectingWorkerStats struct {
	owner *collectingStats

	opStart time.Time

	totalSelect       time.Duration
	totalExecute      time.Duration
	totalMarkFinished time.Duration
}

func (w *collectingWorkerStats) StartWaitingForNextItem()  {}
func (w *collectingWorkerStats) FinishWaitingForNextItem() {}

func (w *collectingWorkerStats) StartSelect() { w.opStart = time.Now() }
func (w *collectingWorkerStats) FinishSelect() {
	if d := time.Since(w.opStart); d > 0 {
		w.totalSelect += d
	}
}

func (w *collectingWorkerStats) StartExecute() { w.opStart = time.Now() }
func (w *collectingWorkerStats) FinishExecute() {
	if d := time.Since(w.opStart); d > 0 {
		w.totalExecute += d
	}
}

func (w *collectingWorkerStats) StartMarkFinished() { w.opStart = time.Now() }
func (w *collectingWorkerStats) FinishMarkFinished() {
	if d := time.Since(w.opStart); d > 0 {
		w.totalMarkFinished += d
	}
}

func (w *collectingWorkerStats) Finish() {
	w.owner.workerFinished(w)
}
