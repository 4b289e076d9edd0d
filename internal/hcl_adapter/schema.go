package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// task is the raw HCL schema for a `task` block:
//
//	task "build" {
//	  project     = "frontend"
//	  resources   = ["network"]
//	  depends_on  = ["lint"]
//	  action      = "print"
//	  args = {
//	    command = "make build"
//	  }
//	}
type task struct {
	Name      string         `hcl:"name,label"`
	Project   string         `hcl:"project,optional"`
	Resources []string       `hcl:"resources,optional"`
	DependsOn []string       `hcl:"depends_on,optional"`
	Action    string         `hcl:"action"`
	Args      hcl.Expression `hcl:"args,optional"`
}

// resource is the raw HCL schema for a `resource` block:
//
//	resource "network" {
//	  concurrency = 4
//	}
type resource struct {
	Name        string         `hcl:"name,label"`
	Concurrency hcl.Expression `hcl:"concurrency"`
}

// fileRoot decodes every top-level block that may appear in a plan file.
type fileRoot struct {
	Tasks     []*task     `hcl:"task,block"`
	Resources []*resource `hcl:"resource,block"`
	Remain    hcl.Body    `hcl:",remain"`
}
