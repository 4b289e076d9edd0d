// Package hcl_adapter is the HCL-specific implementation of config.Loader: it
// parses `task` and `resource` blocks from plan files and translates them
// into the format-agnostic config.Model.
package hcl_adapter
