// Package config defines the format-agnostic plan model loaded from an HCL
// source file: task blocks (their project lock, shared resources and
// dependencies) and resource blocks (their declared concurrency), along with
// the Loader interface a concrete format implements.
//
// The config.Model is the single source of truth for internal/taskgraph:
// nothing downstream of Load ever looks at raw HCL again.
package config
