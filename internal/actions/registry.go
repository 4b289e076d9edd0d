package actions

import (
	"context"
	"fmt"

	"github.com/vk/taskplan/internal/taskgraph"
	"github.com/vk/taskplan/internal/worksource"
)

// Action runs the body of a single task.
type Action func(ctx context.Context, task *taskgraph.Task) error

// Registry maps an action name (a task's `action` attribute) to its
// implementation.
type Registry struct {
	actions map[string]Action
}

// NewRegistry returns a Registry with the built-in actions already
// registered: print, wait_for_socketio_event, read_env, http_request and
// s3_upload.
func NewRegistry() *Registry {
	r := &Registry{actions: make(map[string]Action)}
	r.Register("print", Print)
	r.Register("wait_for_socketio_event", WaitForSocketIOEvent)
	r.Register("read_env", ReadEnv)
	r.Register("http_request", HTTPRequest)
	r.Register("s3_upload", S3Upload)
	return r
}

// Register adds or replaces the action registered under name.
func (r *Registry) Register(name string, action Action) {
	r.actions[name] = action
}

// Dispatch looks up a task's declared action by name and runs it. It is the
// func(context.Context, worksource.Node) error the executor core expects,
// specialized to the concrete *taskgraph.Task node type.
func (r *Registry) Dispatch(ctx context.Context, node worksource.Node) error {
	t, ok := node.(*taskgraph.Task)
	if !ok {
		return fmt.Errorf("actions: unexpected node type %T", node)
	}
	action, ok := r.actions[t.Action()]
	if !ok {
		return fmt.Errorf("actions: no action registered for %q (task %q)", t.Action(), t.ID())
	}
	return action(ctx, t)
}
