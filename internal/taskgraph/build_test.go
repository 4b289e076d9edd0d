package taskgraph_test

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskplan/internal/config"
	"github.com/vk/taskplan/internal/taskgraph"
)

func parseExpr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return expr
}

func TestBuild_DeclaresResourcesAndLinksExplicitDeps(t *testing.T) {
	model := &config.Model{
		Resources: []*config.ResourceDef{{Name: "net", Concurrency: 1}},
		Tasks: []*config.TaskDef{
			{ID: "lint", Action: "print"},
			{ID: "build", Action: "print", DependsOn: []string{"lint"}, Resources: []string{"net"}},
		},
	}

	plan, err := taskgraph.Build(model, nil)
	require.NoError(t, err)

	sel, err := plan.SelectNext()
	require.NoError(t, err)
	require.True(t, sel.IsItem())
	require.Equal(t, "lint", sel.Node().(*taskgraph.Task).ID(), "build must wait for its explicit dependency")

	sel2, err := plan.SelectNext()
	require.NoError(t, err)
	require.True(t, sel2.IsNoWorkReadyToStart(), "build must stay blocked while lint is running")
}

func TestBuild_InfersImplicitDependencyFromTaskReference(t *testing.T) {
	model := &config.Model{
		Tasks: []*config.TaskDef{
			{ID: "build", Action: "print"},
			{ID: "deploy", Action: "print"},
		},
	}
	exprs := map[string][]hcl.Expression{
		"deploy": {parseExpr(t, "task.build.output")},
	}

	plan, err := taskgraph.Build(model, exprs)
	require.NoError(t, err)

	sel, err := plan.SelectNext()
	require.NoError(t, err)
	require.True(t, sel.IsItem())
	require.Equal(t, "build", sel.Node().(*taskgraph.Task).ID(), "deploy must implicitly wait on the task it references")

	sel2, err := plan.SelectNext()
	require.NoError(t, err)
	require.True(t, sel2.IsNoWorkReadyToStart(), "deploy must stay blocked while build is running")
}

func TestBuild_DetectsCycleFromMixedExplicitAndImplicitDeps(t *testing.T) {
	model := &config.Model{
		Tasks: []*config.TaskDef{
			{ID: "a", Action: "print", DependsOn: []string{"b"}},
			{ID: "b", Action: "print"},
		},
	}
	exprs := map[string][]hcl.Expression{
		"b": {parseExpr(t, "task.a.output")},
	}

	_, err := taskgraph.Build(model, exprs)
	require.Error(t, err)
}

func TestBuild_RejectsInvalidResourceConcurrency(t *testing.T) {
	model := &config.Model{
		Resources: []*config.ResourceDef{{Name: "net", Concurrency: 0}},
	}

	_, err := taskgraph.Build(model, nil)
	require.Error(t, err)
}

func TestBuild_IgnoresUnknownTaskReference(t *testing.T) {
	model := &config.Model{
		Tasks: []*config.TaskDef{
			{ID: "deploy", Action: "print"},
		},
	}
	exprs := map[string][]hcl.Expression{
		"deploy": {parseExpr(t, "task.ghost.output")},
	}

	plan, err := taskgraph.Build(model, exprs)
	require.NoError(t, err, "a reference to an unknown task must not be treated as a dependency error")

	sel, err := plan.SelectNext()
	require.NoError(t, err)
	require.True(t, sel.IsItem())
}
