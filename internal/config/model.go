package config

import "github.com/zclconf/go-cty/cty"

// Model is the unified, format-agnostic representation of a plan file.
type Model struct {
	Tasks     []*TaskDef
	Resources []*ResourceDef
}

// TaskDef is the format-agnostic representation of a `task` block.
type TaskDef struct {
	ID        string
	Project   string
	Resources []string
	DependsOn []string
	Action    string
	Args      map[string]cty.Value
}

// ResourceDef is the format-agnostic representation of a `resource` block.
type ResourceDef struct {
	Name        string
	Concurrency int
}
