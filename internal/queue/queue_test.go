package queue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/taskplan/internal/coordination"
	"github.com/vk/taskplan/internal/queue"
	"github.com/vk/taskplan/internal/resourcelock"
	"github.com/vk/taskplan/internal/taskgraph"
	"github.com/vk/taskplan/internal/worksource"
)

var assertErr = errors.New("boom")

func noopAction(ctx context.Context, node worksource.Node) error { return nil }

func singleTaskPlan(t *testing.T, id string) *taskgraph.Plan {
	t.Helper()
	p := taskgraph.NewPlan(resourcelock.NewRegistry())
	_, err := p.AddTask(id, "", nil, "print", nil)
	require.NoError(t, err)
	require.NoError(t, p.Finalize())
	return p
}

func TestAdd_RejectsAfterClose(t *testing.T) {
	coord := coordination.New()
	q := queue.New(coord, false)
	require.NoError(t, q.Close())

	err := q.Add(&queue.PlanDetails{Source: singleTaskPlan(t, "a"), Action: noopAction})
	require.ErrorIs(t, err, queue.ErrQueueClosed)
}

func TestClose_FailsWhileWorkIsQueued(t *testing.T) {
	coord := coordination.New()
	q := queue.New(coord, false)
	require.NoError(t, q.Add(&queue.PlanDetails{Source: singleTaskPlan(t, "a"), Action: noopAction}))

	require.ErrorIs(t, q.Close(), queue.ErrQueueNotDrained)
}

func TestSelectNext_ReturnsWorkItemAndRemovesWhenDrained(t *testing.T) {
	coord := coordination.New()
	q := queue.New(coord, false)
	plan := singleTaskPlan(t, "a")
	require.NoError(t, q.Add(&queue.PlanDetails{Source: plan, Action: noopAction}))

	var item *queue.WorkItem
	coord.WithStateLock(func(tok *coordination.Token) coordination.Disposition {
		var err error
		var state worksource.StateKind
		item, state, err = q.SelectNext(tok)
		require.NoError(t, err)
		require.Equal(t, worksource.MaybeWorkReadyToStart, state)
		return coordination.Finished
	})
	require.NotNil(t, item)
	require.NoError(t, item.Run(context.Background()))

	require.NoError(t, plan.FinishedExecuting(item.Node(), nil))

	coord.WithStateLock(func(tok *coordination.Token) coordination.Disposition {
		q.RemoveFinishedPlans(tok)
		require.True(t, q.NothingQueued(tok))
		return coordination.Finished
	})

	require.NoError(t, q.Close())
}

func TestAutoFinish_ReportsNoMoreWorkWhenEmpty(t *testing.T) {
	coord := coordination.New()
	q := queue.New(coord, true)

	coord.WithStateLock(func(tok *coordination.Token) coordination.Disposition {
		require.Equal(t, worksource.NoMoreWorkToStart, q.ExecutionState(tok))
		return coordination.Finished
	})
}

func TestAbortAllAndFail_PropagatesToEveryPlan(t *testing.T) {
	coord := coordination.New()
	q := queue.New(coord, false)
	plan := singleTaskPlan(t, "a")
	require.NoError(t, q.Add(&queue.PlanDetails{Source: plan, Action: noopAction}))

	coord.WithStateLock(func(tok *coordination.Token) coordination.Disposition {
		q.AbortAllAndFail(tok, assertErr)
		return coordination.Finished
	})

	var failures []error
	plan.CollectFailures(&failures)
	require.Len(t, failures, 1)
	require.ErrorIs(t, failures[0], assertErr)
}
