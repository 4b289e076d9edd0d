package actions

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vk/taskplan/internal/taskgraph"
)

// ReadEnv prints every process environment variable to stdout, one per
// line, as KEY=VALUE. Grounded on modules/env_vars's OnRunEnvVars handler;
// there being no typed Output in this action shape, the original runner's
// cty Output is replaced with direct printing, matching how Print reports
// a task's results.
func ReadEnv(ctx context.Context, task *taskgraph.Task) error {
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 {
			fmt.Printf("      %s=%s\n", pair[0], pair[1])
		}
	}
	return nil
}
