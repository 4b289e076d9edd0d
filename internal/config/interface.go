package config

import (
	"context"

	"github.com/hashicorp/hcl/v2"
)

// Loader is the interface for a format-specific plan loader.
type Loader interface {
	// Load reads plan files from the given paths and translates them into
	// the format-agnostic Model. The returned map carries each task's raw
	// argument expressions, keyed by task ID, for implicit dependency
	// inference; a format with no expression language may return nil.
	Load(ctx context.Context, paths ...string) (*Model, map[string][]hcl.Expression, error)
}
