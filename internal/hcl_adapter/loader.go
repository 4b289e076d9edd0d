package hcl_adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/taskplan/internal/config"
	"github.com/vk/taskplan/internal/ctxlog"
	"github.com/vk/taskplan/internal/fsutil"
)

// Loader is the HCL-specific implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new HCL plan loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load orchestrates the entire HCL loading process: it discovers every .hcl
// file under paths, parses it, and merges the decoded task/resource blocks
// into a single Model, alongside a map of each task's raw argument
// expressions (keyed by task ID) for implicit dependency inference.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, map[string][]hcl.Expression, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	model := &config.Model{}
	exprs := make(map[string][]hcl.Expression)

	files, err := findAllHCLFiles(paths)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, t := range root.Tasks {
			def, taskExprs, err := translateTask(t)
			if err != nil {
				return nil, nil, fmt.Errorf("in file %s: %w", file, err)
			}
			model.Tasks = append(model.Tasks, def)
			if len(taskExprs) > 0 {
				exprs[def.ID] = append(exprs[def.ID], taskExprs...)
			}
		}
		for _, r := range root.Resources {
			def, err := translateResource(r)
			if err != nil {
				return nil, nil, fmt.Errorf("in file %s: %w", file, err)
			}
			model.Resources = append(model.Resources, def)
		}
	}

	logger.Debug("HCL loading complete.", "tasks", len(model.Tasks), "resources", len(model.Resources))
	return model, exprs, nil
}

// translateTask converts the HCL-specific task schema into the agnostic
// model, also returning the raw argument expressions for dependency analysis.
func translateTask(t *task) (*config.TaskDef, []hcl.Expression, error) {
	def := &config.TaskDef{
		ID:        t.Name,
		Project:   t.Project,
		Resources: t.Resources,
		DependsOn: t.DependsOn,
		Action:    t.Action,
	}

	if t.Args == nil {
		return def, nil, nil
	}
	// An absent args attribute decodes to a static null expression.
	if v, diags := t.Args.Value(nil); !diags.HasErrors() && v.IsNull() {
		return def, nil, nil
	}
	pairs, diags := hcl.ExprMap(t.Args)
	if diags.HasErrors() {
		return nil, nil, fmt.Errorf("task %q: args must be an object: %w", t.Name, diags)
	}
	if len(pairs) == 0 {
		return def, nil, nil
	}

	def.Args = make(map[string]cty.Value, len(pairs))
	exprs := make([]hcl.Expression, 0, len(pairs))
	for _, pair := range pairs {
		key, diags := pair.Key.Value(nil)
		if diags.HasErrors() || key.IsNull() || !key.Type().Equals(cty.String) {
			return nil, nil, fmt.Errorf("task %q: args keys must be strings", t.Name)
		}
		name := key.AsString()
		exprs = append(exprs, pair.Value)

		// An argument referencing another task (e.g. task.build.output) can't
		// be evaluated at load time — no EvalContext has "task" in scope,
		// since output values only exist once that task has actually run.
		// Such a reference still establishes an implicit ordering dependency
		// (see linkImplicitDependencies) but contributes no literal value
		// here; inter-task data passing is out of scope for this loader.
		val, diags := pair.Value.Value(nil)
		if diags.HasErrors() {
			continue
		}
		def.Args[name] = val
	}
	return def, exprs, nil
}

// translateResource converts the HCL-specific resource schema into the
// agnostic model, decoding the concurrency attribute's cty.Value into a Go
// int via gocty.
func translateResource(r *resource) (*config.ResourceDef, error) {
	val, diags := r.Concurrency.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("resource %q: invalid concurrency: %w", r.Name, diags)
	}

	var concurrency int
	if err := gocty.FromCtyValue(val, &concurrency); err != nil {
		return nil, fmt.Errorf("resource %q: concurrency must be a whole number: %w", r.Name, err)
	}

	return &config.ResourceDef{Name: r.Name, Concurrency: concurrency}, nil
}

// findAllHCLFiles walks every given path and returns a flat, deduplicated
// list of every .hcl file found, using fsutil.FindFilesByExtension for
// directory roots.
func findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if info.IsDir() {
			found, err := fsutil.FindFilesByExtension(path, ".hcl")
			if err != nil {
				return nil, err
			}
			for _, p := range found {
				add(p)
			}
		} else if filepath.Ext(path) == ".hcl" {
			add(path)
		}
	}
	return allFiles, nil
}
