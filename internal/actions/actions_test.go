package actions_test

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/taskplan/internal/actions"
	"github.com/vk/taskplan/internal/resourcelock"
	"github.com/vk/taskplan/internal/taskgraph"
)

// captureStdout redirects os.Stdout for the duration of fn and returns
// whatever it wrote. Print and ReadEnv write straight to os.Stdout, the way
// the teacher's node actions do.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func newTask(t *testing.T, action string, args map[string]cty.Value) *taskgraph.Task {
	t.Helper()
	p := taskgraph.NewPlan(resourcelock.NewRegistry())
	task, err := p.AddTask("t", "", nil, action, args)
	require.NoError(t, err)
	return task
}

func TestPrint_SortsAndFormatsArgs(t *testing.T) {
	task := newTask(t, "print", map[string]cty.Value{
		"b": cty.NumberIntVal(2),
		"a": cty.StringVal("hi"),
	})

	out := captureStdout(t, func() {
		require.NoError(t, actions.Print(context.Background(), task))
	})

	require.Contains(t, out, `a = "hi"`)
	require.Contains(t, out, "b = 2")
	require.Less(t, indexOf(out, "a ="), indexOf(out, "b ="), "args must print in sorted key order")
}

func TestPrint_NullArgsPrintsPlaceholder(t *testing.T) {
	task := newTask(t, "print", nil)

	out := captureStdout(t, func() {
		require.NoError(t, actions.Print(context.Background(), task))
	})

	require.Contains(t, out, "(null)")
}

func TestReadEnv_PrintsEveryVariable(t *testing.T) {
	t.Setenv("TASKPLAN_TEST_VAR", "marker-value")
	task := newTask(t, "read_env", nil)

	out := captureStdout(t, func() {
		require.NoError(t, actions.ReadEnv(context.Background(), task))
	})

	require.Contains(t, out, "TASKPLAN_TEST_VAR=marker-value")
}

func TestRegistry_DispatchRunsRegisteredAction(t *testing.T) {
	registry := actions.NewRegistry()
	task := newTask(t, "print", map[string]cty.Value{"k": cty.StringVal("v")})

	out := captureStdout(t, func() {
		require.NoError(t, registry.Dispatch(context.Background(), task))
	})
	require.Contains(t, out, `k = "v"`)
}

func TestRegistry_DispatchRejectsUnknownAction(t *testing.T) {
	registry := actions.NewRegistry()
	task := newTask(t, "does_not_exist", nil)

	err := registry.Dispatch(context.Background(), task)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does_not_exist")
}

func TestRegistry_DispatchRejectsWrongNodeType(t *testing.T) {
	registry := actions.NewRegistry()

	err := registry.Dispatch(context.Background(), "not-a-task")
	require.Error(t, err)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
