package actions

import (
	"context"
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/taskplan/internal/ctxlog"
	"github.com/vk/taskplan/internal/taskgraph"
)

// Print writes every declared argument of a task to stdout, sorted by key
// for deterministic output. Grounded on modules/print's OnRunPrint handler.
func Print(ctx context.Context, task *taskgraph.Task) error {
	logger := ctxlog.FromContext(ctx).With("action", "print", "task", task.ID())
	logger.Debug("Printing task arguments.")

	args := task.Args()
	if len(args) == 0 {
		fmt.Println("      (null)")
		return nil
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Printf("      %s = %s\n", k, formatCtyValue(args[k]))
	}
	return nil
}

func formatCtyValue(v cty.Value) string {
	if v.IsNull() {
		return "null"
	}
	switch v.Type() {
	case cty.String:
		return fmt.Sprintf("%q", v.AsString())
	case cty.Number:
		return v.AsBigFloat().Text('f', -1)
	case cty.Bool:
		return fmt.Sprintf("%t", v.True())
	default:
		return fmt.Sprintf("%v", v)
	}
}
