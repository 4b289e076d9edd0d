package taskgraph

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"

	"github.com/vk/taskplan/internal/bggoexpr"
	"github.com/vk/taskplan/internal/config"
	"github.com/vk/taskplan/internal/resourcelock"
)

// Build constructs a complete, validated Plan from a config.Model: it
// declares every resource's concurrency, creates one Task per TaskDef, links
// explicit depends_on edges plus any implicit dependency inferred from an
// argument expression referencing another task's output, and finally
// validates the whole graph for cycles (§4.3).
//
// exprs, keyed by task ID, supplies the raw HCL argument expressions behind
// each task's already-evaluated Args, used only for implicit dependency
// inference; pass nil to skip it.
func Build(model *config.Model, exprs map[string][]hcl.Expression) (*Plan, error) {
	registry := resourcelock.NewRegistry()
	for _, r := range model.Resources {
		if err := registry.Declare(r.Name, r.Concurrency); err != nil {
			return nil, err
		}
	}

	plan := NewPlan(registry)
	for _, t := range model.Tasks {
		if _, err := plan.AddTask(t.ID, t.Project, t.Resources, t.Action, t.Args); err != nil {
			return nil, err
		}
	}

	for _, t := range model.Tasks {
		for _, dep := range t.DependsOn {
			if err := plan.AddDependency(dep, t.ID); err != nil {
				return nil, err
			}
		}
	}

	if exprs != nil {
		if err := linkImplicitDependencies(plan, model, exprs); err != nil {
			return nil, err
		}
	}

	if err := plan.Finalize(); err != nil {
		return nil, err
	}
	return plan, nil
}

// linkImplicitDependencies scans each task's raw argument expressions for
// task.<id> traversals (e.g. task.build.output) and links the referenced
// task as an additional dependency, adapted from the teacher's
// dag.linkImplicitDeps — generalized from step/resource references onto a
// single flat task namespace.
func linkImplicitDependencies(plan *Plan, model *config.Model, exprs map[string][]hcl.Expression) error {
	known := make(map[string]bool, len(model.Tasks))
	for _, t := range model.Tasks {
		known[t.ID] = true
	}

	for _, t := range model.Tasks {
		taskExprs := exprs[t.ID]
		if len(taskExprs) == 0 {
			continue
		}

		container := bggoexpr.NewContainer()
		container.Add(taskExprs...)

		for _, traversal := range container.References() {
			if len(traversal) < 2 || traversal.RootName() != "task" {
				continue
			}
			attr, ok := traversal[1].(hcl.TraverseAttr)
			if !ok {
				continue
			}
			refID := attr.Name
			if refID == t.ID || !known[refID] {
				continue
			}
			if err := plan.AddDependency(refID, t.ID); err != nil {
				return fmt.Errorf("implicit dependency from task %q on task %q: %w", t.ID, refID, err)
			}
		}
	}
	return nil
}
