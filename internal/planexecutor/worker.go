package planexecutor

import (
	"context"
	"fmt"

	"github.com/vk/taskplan/internal/cancellation"
	"github.com/vk/taskplan/internal/coordination"
	"github.com/vk/taskplan/internal/ctxlog"
	"github.com/vk/taskplan/internal/queue"
	"github.com/vk/taskplan/internal/worklease"
	"github.com/vk/taskplan/internal/worksource"
)

// worker is the Executor Worker of §4.5: the per-goroutine select ->
// execute -> mark-finished loop.
type worker struct {
	queue       *queue.MergedQueue
	lease       *worklease.Lease
	releaseOwn  bool
	cancelToken *cancellation.Token
	coord       *coordination.Service
	leases      *worklease.Registry
	stats       *workerRecord
}

func newWorker(
	q *queue.MergedQueue,
	lease *worklease.Lease,
	cancelToken *cancellation.Token,
	coord *coordination.Service,
	leases *worklease.Registry,
	stats *workerRecord,
) *worker {
	releaseOwn := false
	if lease == nil {
		lease = leases.NewLease()
		releaseOwn = true
	}
	return &worker{
		queue:       q,
		lease:       lease,
		releaseOwn:  releaseOwn,
		cancelToken: cancelToken,
		coord:       coord,
		leases:      leases,
		stats:       stats,
	}
}

// run drives the loop described in §4.5 until the queue reports
// NoMoreWorkToStart (or a Source failure aborts everything).
func (w *worker) run(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	defer w.stats.Finish()

	for {
		item := w.nextItem(ctx)
		if item == nil {
			break
		}
		logger.Debug("worker selected item for execution")
		w.execute(ctx, item)
	}

	if w.releaseOwn {
		w.coord.WithStateLock(func(tok *coordination.Token) coordination.Disposition {
			w.lease.Unlock()
			return coordination.Finished
		})
	}
	logger.Debug("worker finished")
}

// nextItem implements the getNextItem algorithm of §4.5: cancellation
// check, execution-state query, non-blocking lease acquisition, then
// selection — all under the coordination lock, with RETRY driving the
// condition-variable wait in between attempts.
func (w *worker) nextItem(ctx context.Context) *queue.WorkItem {
	var selected *queue.WorkItem

	w.stats.StartSelect()
	w.coord.WithStateLock(func(tok *coordination.Token) coordination.Disposition {
		w.stats.FinishWaitingForNextItem()

		if w.cancelToken.Triggered() {
			w.queue.CancelExecution(tok)
		}

		switch w.queue.ExecutionState(tok) {
		case worksource.NoMoreWorkToStart:
			return coordination.Finished
		case worksource.NoWorkReadyToStart:
			w.stats.StartWaitingForNextItem()
			w.lease.Unlock()
			return coordination.Retry
		}

		if !w.lease.TryLock() {
			// Work may be ready, but no lease is available: another
			// worker will make progress. Do not mark this worker Waiting;
			// health monitoring only cares whether work can be started.
			return coordination.Retry
		}

		item, state, err := w.queue.SelectNext(tok)
		if err != nil {
			w.queue.AbortAllAndFail(tok, fmt.Errorf("selecting next item: %w", err))
			return coordination.Finished
		}
		if item == nil {
			if state == worksource.NoMoreWorkToStart {
				return coordination.Finished
			}
			w.stats.StartWaitingForNextItem()
			w.lease.Unlock()
			return coordination.Retry
		}

		selected = item
		return coordination.Finished
	})
	w.stats.FinishSelect()

	return selected
}

// execute runs the selected item's action outside the coordination lock,
// recovering a panic into a failure so it never escapes the worker loop
// (§7), then reports the outcome back to the originating plan.
func (w *worker) execute(ctx context.Context, item *queue.WorkItem) {
	var failure error
	func() {
		defer func() {
			if r := recover(); r != nil {
				failure = fmt.Errorf("node action panicked: %v", r)
			}
		}()
		w.stats.StartExecute()
		defer w.stats.FinishExecute()
		actionCtx := worklease.WithLease(ctx, w.lease)
		failure = item.Run(actionCtx)
	}()
	w.markFinished(item, failure)
}

func (w *worker) markFinished(item *queue.WorkItem, failure error) {
	w.stats.StartMarkFinished()
	defer w.stats.FinishMarkFinished()
	w.coord.WithStateLock(func(tok *coordination.Token) coordination.Disposition {
		if err := item.Plan.FinishedExecuting(item.Node(), failure); err != nil {
			w.queue.AbortAllAndFail(tok, fmt.Errorf("reporting node outcome: %w", err))
		}
		tok.Notify()
		return coordination.Finished
	})
}
