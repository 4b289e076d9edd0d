package taskgraph_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/taskplan/internal/diagnostics"
	"github.com/vk/taskplan/internal/resourcelock"
	"github.com/vk/taskplan/internal/taskgraph"
	"github.com/vk/taskplan/internal/worksource"
)

var assertErr = errors.New("boom")

func newPlan(t *testing.T) *taskgraph.Plan {
	t.Helper()
	return taskgraph.NewPlan(resourcelock.NewRegistry())
}

func TestAddTask_RejectsDuplicateID(t *testing.T) {
	p := newPlan(t)
	_, err := p.AddTask("a", "", nil, "print", nil)
	require.NoError(t, err)

	_, err = p.AddTask("a", "", nil, "print", nil)
	require.Error(t, err)
}

func TestAddDependency_RejectsSelfAndUnknown(t *testing.T) {
	p := newPlan(t)
	_, _ = p.AddTask("a", "", nil, "print", nil)

	require.Error(t, p.AddDependency("a", "a"))
	require.Error(t, p.AddDependency("a", "ghost"))
	require.Error(t, p.AddDependency("ghost", "a"))
}

func TestFinalize_DetectsCycle(t *testing.T) {
	p := newPlan(t)
	_, _ = p.AddTask("a", "", nil, "print", nil)
	_, _ = p.AddTask("b", "", nil, "print", nil)
	require.NoError(t, p.AddDependency("a", "b"))
	require.NoError(t, p.AddDependency("b", "a"))

	require.Error(t, p.Finalize())
}

func TestSelectNext_RespectsDependencyOrder(t *testing.T) {
	p := newPlan(t)
	_, _ = p.AddTask("a", "", nil, "print", nil)
	_, _ = p.AddTask("b", "", nil, "print", nil)
	require.NoError(t, p.AddDependency("a", "b"))
	require.NoError(t, p.Finalize())

	sel, err := p.SelectNext()
	require.NoError(t, err)
	require.True(t, sel.IsItem())
	require.Equal(t, "a", sel.Node().(*taskgraph.Task).ID())

	// b is still blocked on a.
	sel2, err := p.SelectNext()
	require.NoError(t, err)
	require.True(t, sel2.IsNoWorkReadyToStart())

	require.NoError(t, p.FinishedExecuting(sel.Node(), nil))

	sel3, err := p.SelectNext()
	require.NoError(t, err)
	require.True(t, sel3.IsItem())
	require.Equal(t, "b", sel3.Node().(*taskgraph.Task).ID())
}

func TestSelectNext_NoMoreWorkOnceAllTerminal(t *testing.T) {
	p := newPlan(t)
	_, _ = p.AddTask("a", "", nil, "print", nil)
	require.NoError(t, p.Finalize())

	sel, err := p.SelectNext()
	require.NoError(t, err)
	require.NoError(t, p.FinishedExecuting(sel.Node(), nil))

	sel2, err := p.SelectNext()
	require.NoError(t, err)
	require.True(t, sel2.IsNoMoreWorkToStart())
	require.True(t, p.AllExecutionComplete())
}

func TestFinishedExecuting_FailureSkipsDependents(t *testing.T) {
	p := newPlan(t)
	_, _ = p.AddTask("a", "", nil, "print", nil)
	_, _ = p.AddTask("b", "", nil, "print", nil)
	require.NoError(t, p.AddDependency("a", "b"))
	require.NoError(t, p.Finalize())

	sel, _ := p.SelectNext()
	require.NoError(t, p.FinishedExecuting(sel.Node(), assertErr))

	require.True(t, p.AllExecutionComplete())

	var failures []error
	p.CollectFailures(&failures)
	require.Len(t, failures, 2, "expected the root-cause failure plus one skip-cascade failure")
}

func TestResourceLock_SerializesSharedResource(t *testing.T) {
	registry := resourcelock.NewRegistry()
	require.NoError(t, registry.Declare("net", 1))
	p := taskgraph.NewPlan(registry)

	_, _ = p.AddTask("a", "", []string{"net"}, "print", nil)
	_, _ = p.AddTask("b", "", []string{"net"}, "print", nil)
	require.NoError(t, p.Finalize())

	selA, err := p.SelectNext()
	require.NoError(t, err)
	require.True(t, selA.IsItem())

	selB, err := p.SelectNext()
	require.NoError(t, err)
	require.True(t, selB.IsNoWorkReadyToStart(), "second task should be blocked by the shared resource")

	require.NoError(t, p.FinishedExecuting(selA.Node(), nil))

	selB2, err := p.SelectNext()
	require.NoError(t, err)
	require.True(t, selB2.IsItem())
}

func TestCancelExecution_SkipsPendingOnly(t *testing.T) {
	p := newPlan(t)
	_, _ = p.AddTask("a", "", nil, "print", nil)
	_, _ = p.AddTask("b", "", nil, "print", nil)
	require.NoError(t, p.Finalize())

	selA, _ := p.SelectNext()
	p.CancelExecution()

	require.Equal(t, taskgraph.Running, selA.Node().(*taskgraph.Task).State())

	var failures []error
	p.CollectFailures(&failures)
	require.Len(t, failures, 1)
	require.ErrorIs(t, failures[0], taskgraph.ErrCancelled)
}

func TestAbortAllAndFail_FailsEveryPendingTask(t *testing.T) {
	p := newPlan(t)
	_, _ = p.AddTask("a", "", nil, "print", nil)
	_, _ = p.AddTask("b", "", nil, "print", nil)
	require.NoError(t, p.Finalize())

	p.AbortAllAndFail(assertErr)

	var failures []error
	p.CollectFailures(&failures)
	require.Len(t, failures, 2)
	require.True(t, p.AllExecutionComplete())
}

func TestHealthDiagnostics_DescribesPendingTasks(t *testing.T) {
	p := newPlan(t)
	_, _ = p.AddTask("a", "", nil, "print", nil)
	_, _ = p.AddTask("b", "project1", []string{"net"}, "print", nil)
	require.NoError(t, p.AddDependency("a", "b"))
	require.NoError(t, p.Finalize())

	diag := p.HealthDiagnostics()
	require.Implements(t, (*worksource.Diagnostics)(nil), diag)

	tree := diagnostics.NewTree("root")
	diag.DescribeTo(tree)
	out := tree.String()
	require.Contains(t, out, "plan with 2 pending task(s)")
	require.Contains(t, out, `b (waiting on 1 dependencies, project="project1", resources=[net])`)
}
