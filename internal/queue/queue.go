// Package queue implements the Merged Queue of §3/§4.4: an ordered list of
// live plans presented to workers as a single virtual queue.
package queue

import (
	"container/list"
	"context"
	"fmt"

	"github.com/vk/taskplan/internal/coordination"
	"github.com/vk/taskplan/internal/diagnostics"
	"github.com/vk/taskplan/internal/worksource"
)

// ErrQueueClosed is returned by Add once the queue has been closed.
var ErrQueueClosed = fmt.Errorf("queue: closed, no further plans may be added")

// ErrQueueNotDrained is returned by Close if any plan is still live.
var ErrQueueNotDrained = fmt.Errorf("queue: not all work has completed")

// PlanDetails is the immutable pairing of a Source and the action to run
// against each node it selects (§3).
type PlanDetails struct {
	Source worksource.Source
	Action func(ctx context.Context, node worksource.Node) error
}

// WorkItem is the ephemeral result of a successful selection: a selected
// node together with the plan it came from and the action to run (§3).
type WorkItem struct {
	selection worksource.Selection
	Plan      worksource.Source
	action    func(ctx context.Context, node worksource.Node) error
}

// Node returns the selected node.
func (w *WorkItem) Node() worksource.Node { return w.selection.Node() }

// Run executes this item's action against its node.
func (w *WorkItem) Run(ctx context.Context) error {
	return w.action(ctx, w.Node())
}

// MergedQueue is an ordered list of PlanDetails, round-robin-scanned in
// insertion order (§4.4). New plans are prepended, biasing scans toward the
// most recently submitted plan — documented policy, not starvation freedom
// (§9 Open Question).
type MergedQueue struct {
	coord      *coordination.Service
	autoFinish bool
	finished   bool
	plans      *list.List
}

// New creates an empty MergedQueue. autoFinish, when true, makes the queue
// report NoMoreWorkToStart as soon as it becomes empty, without requiring an
// explicit Close — used for the private per-call queue of §4.7.
func New(coord *coordination.Service, autoFinish bool) *MergedQueue {
	return &MergedQueue{coord: coord, autoFinish: autoFinish, plans: list.New()}
}

func (q *MergedQueue) nothingMoreToStart() bool {
	return q.finished || (q.autoFinish && q.plans.Len() == 0)
}

// Add appends a plan to the head of the queue and wakes any waiting worker.
// It acquires the coordination lock itself; callers must not already hold
// it.
func (q *MergedQueue) Add(details *PlanDetails) error {
	var addErr error
	q.coord.WithStateLock(func(tok *coordination.Token) coordination.Disposition {
		if q.finished {
			addErr = ErrQueueClosed
			return coordination.Finished
		}
		q.plans.PushFront(details)
		tok.Notify()
		return coordination.Finished
	})
	return addErr
}

// Close marks the queue finished, preventing further Add calls, and wakes
// waiters so they observe NoMoreWorkToStart. It fails if any plan is still
// live. Acquires the coordination lock itself.
func (q *MergedQueue) Close() error {
	var closeErr error
	q.coord.WithStateLock(func(tok *coordination.Token) coordination.Disposition {
		if q.plans.Len() > 0 {
			closeErr = ErrQueueNotDrained
			return coordination.Finished
		}
		q.finished = true
		tok.Notify()
		return coordination.Finished
	})
	return closeErr
}

// ExecutionState scans the plans in order, removing any that report
// NoMoreWorkToStart and AllExecutionComplete, and returns the merged state
// (§4.4). Requires the coordination lock held.
func (q *MergedQueue) ExecutionState(tok *coordination.Token) worksource.StateKind {
	coordination.MustHold(tok, q.coord)
	for e := q.plans.Front(); e != nil; {
		next := e.Next()
		details := e.Value.(*PlanDetails)
		switch details.Source.ExecutionState() {
		case worksource.NoMoreWorkToStart:
			if details.Source.AllExecutionComplete() {
				q.plans.Remove(e)
			}
		case worksource.MaybeWorkReadyToStart:
			return worksource.MaybeWorkReadyToStart
		}
		e = next
	}
	if q.nothingMoreToStart() {
		return worksource.NoMoreWorkToStart
	}
	return worksource.NoWorkReadyToStart
}

// SelectNext mirrors ExecutionState but calls each Source's SelectNext; the
// first non-empty selection wins and is wrapped into a WorkItem. Requires
// the coordination lock held.
func (q *MergedQueue) SelectNext(tok *coordination.Token) (*WorkItem, worksource.StateKind, error) {
	coordination.MustHold(tok, q.coord)
	for e := q.plans.Front(); e != nil; {
		next := e.Next()
		details := e.Value.(*PlanDetails)
		sel, err := details.Source.SelectNext()
		if err != nil {
			return nil, 0, err
		}
		switch {
		case sel.IsNoMoreWorkToStart():
			if details.Source.AllExecutionComplete() {
				q.plans.Remove(e)
			}
		case !sel.IsNoWorkReadyToStart():
			return &WorkItem{selection: sel, Plan: details.Source, action: details.Action}, 0, nil
		}
		e = next
	}
	if q.nothingMoreToStart() {
		return nil, worksource.NoMoreWorkToStart, nil
	}
	return nil, worksource.NoWorkReadyToStart, nil
}

// RemoveFinishedPlans drops any plan reporting AllExecutionComplete.
// Requires the coordination lock held.
func (q *MergedQueue) RemoveFinishedPlans(tok *coordination.Token) {
	coordination.MustHold(tok, q.coord)
	for e := q.plans.Front(); e != nil; {
		next := e.Next()
		if e.Value.(*PlanDetails).Source.AllExecutionComplete() {
			q.plans.Remove(e)
		}
		e = next
	}
}

// CancelExecution forwards to every live plan's Source. Requires the
// coordination lock held.
func (q *MergedQueue) CancelExecution(tok *coordination.Token) {
	coordination.MustHold(tok, q.coord)
	for e := q.plans.Front(); e != nil; e = e.Next() {
		e.Value.(*PlanDetails).Source.CancelExecution()
	}
}

// AbortAllAndFail forwards to every live plan's Source and wakes waiters.
// Requires the coordination lock held.
func (q *MergedQueue) AbortAllAndFail(tok *coordination.Token, cause error) {
	coordination.MustHold(tok, q.coord)
	for e := q.plans.Front(); e != nil; e = e.Next() {
		e.Value.(*PlanDetails).Source.AbortAllAndFail(cause)
	}
	tok.Notify()
}

// NothingQueued reports whether every live plan has reported
// NoMoreWorkToStart. Requires the coordination lock held.
func (q *MergedQueue) NothingQueued(tok *coordination.Token) bool {
	coordination.MustHold(tok, q.coord)
	for e := q.plans.Front(); e != nil; e = e.Next() {
		if e.Value.(*PlanDetails).Source.ExecutionState() != worksource.NoMoreWorkToStart {
			return false
		}
	}
	return true
}

// AppendHealthDiagnostics asks every live plan's Source to describe itself
// into tree. Requires the coordination lock held.
func (q *MergedQueue) AppendHealthDiagnostics(tok *coordination.Token, tree *diagnostics.Tree) {
	coordination.MustHold(tok, q.coord)
	for e := q.plans.Front(); e != nil; e = e.Next() {
		e.Value.(*PlanDetails).Source.HealthDiagnostics().DescribeTo(tree)
	}
}
