// Package taskgraph is a concrete, external-collaborator implementation of
// worksource.Source (§4.3): a dependency graph of named tasks, each
// optionally declaring a project lock and a list of named shared resources,
// adapted from the teacher's internal/dag package — generalized from
// HCL-specific resource/step nodes into a generic Task with an opaque ID.
//
// Graph construction (parsing, dependency resolution) is explicitly out of
// scope for the executor core (spec.md §1); this package is the kind of
// thing that plugs into it, not part of the core itself.
package taskgraph

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/taskplan/internal/diagnostics"
	"github.com/vk/taskplan/internal/resourcelock"
	"github.com/vk/taskplan/internal/worksource"
)

// State is a Task's lifecycle state.
type State int32

const (
	Pending State = iota
	Running
	Done
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Running:
		return "Running"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	case Skipped:
		return "Skipped"
	default:
		return "Unknown"
	}
}

// ErrCancelled is the failure recorded against a task skipped by
// CancelExecution.
var ErrCancelled = errors.New("taskgraph: cancelled before starting")

// Task is a single vertex. Its ID is the only part of its identity visible
// to the executor core; everything else is taskgraph bookkeeping.
type Task struct {
	id        string
	project   string
	resources []string
	action    string
	args      map[string]cty.Value

	deps       map[string]*Task
	dependents map[string]*Task
	depCount   atomic.Int32

	state    atomic.Int32
	err      error
	skipOnce sync.Once

	lock *resourcelock.Lock
}

// ID returns the task's unique identifier.
func (t *Task) ID() string { return t.id }

// Project returns the declared project-lock name, or "" if the task is
// isolated.
func (t *Task) Project() string { return t.project }

// Resources returns the task's declared named shared resources.
func (t *Task) Resources() []string { return t.resources }

// Action returns the name of the action to run for this task.
func (t *Task) Action() string { return t.action }

// Args returns the task's declared arguments, evaluated to cty.Value.
func (t *Task) Args() map[string]cty.Value { return t.args }

// State returns the task's current lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

// Err returns the failure (if any) recorded for this task.
func (t *Task) Err() error { return t.err }

// Plan is a graph of Tasks implementing worksource.Source.
type Plan struct {
	registry *resourcelock.Registry

	tasks map[string]*Task
	order []string

	remaining atomic.Int32
	cancelled atomic.Bool

	failuresMu sync.Mutex
	failures   []error
}

// NewPlan returns an empty Plan whose tasks will contend for resourcelock
// registrations in registry.
func NewPlan(registry *resourcelock.Registry) *Plan {
	return &Plan{
		registry: registry,
		tasks:    make(map[string]*Task),
	}
}

// AddTask declares a new task. project may be "" for an isolated task that
// declares no project lock.
func (p *Plan) AddTask(id, project string, resources []string, action string, args map[string]cty.Value) (*Task, error) {
	if _, exists := p.tasks[id]; exists {
		return nil, fmt.Errorf("taskgraph: duplicate task id %q", id)
	}
	t := &Task{
		id:         id,
		project:    project,
		resources:  resources,
		action:     action,
		args:       args,
		deps:       make(map[string]*Task),
		dependents: make(map[string]*Task),
	}
	p.tasks[id] = t
	p.order = append(p.order, id)
	return t, nil
}

// AddDependency records that toID depends on fromID: toID cannot start
// until fromID has finished successfully.
func (p *Plan) AddDependency(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("taskgraph: self-referential dependency: %s -> %s", fromID, fromID)
	}
	from, ok := p.tasks[fromID]
	if !ok {
		return fmt.Errorf("taskgraph: unknown task %q", fromID)
	}
	to, ok := p.tasks[toID]
	if !ok {
		return fmt.Errorf("taskgraph: unknown task %q", toID)
	}
	if _, already := to.deps[fromID]; already {
		return nil
	}
	to.deps[fromID] = from
	from.dependents[toID] = to
	to.depCount.Add(1)
	return nil
}

// Finalize validates the graph (cycle detection) and must be called once,
// after every AddTask/AddDependency call and before the Plan is submitted to
// an executor.
func (p *Plan) Finalize() error {
	if err := p.detectCycles(); err != nil {
		return err
	}
	p.remaining.Store(int32(len(p.tasks)))
	return nil
}

func (p *Plan) detectCycles() error {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	mark := make(map[string]int, len(p.tasks))

	var visit func(id string) error
	visit = func(id string) error {
		switch mark[id] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("taskgraph: cycle detected involving task %q", id)
		}
		mark[id] = visiting
		for depID := range p.tasks[id].dependents {
			if err := visit(depID); err != nil {
				return err
			}
		}
		mark[id] = visited
		return nil
	}

	for _, id := range p.order {
		if mark[id] == unvisited {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Plan) addFailure(err error) {
	p.failuresMu.Lock()
	p.failures = append(p.failures, err)
	p.failuresMu.Unlock()
}

// ExecutionState implements worksource.Source.
func (p *Plan) ExecutionState() worksource.StateKind {
	if p.remaining.Load() == 0 {
		return worksource.NoMoreWorkToStart
	}
	for _, id := range p.order {
		t := p.tasks[id]
		if State(t.state.Load()) == Pending && t.depCount.Load() == 0 {
			return worksource.MaybeWorkReadyToStart
		}
	}
	return worksource.NoWorkReadyToStart
}

// SelectNext implements worksource.Source: it scans for a Pending task with
// no remaining dependencies whose declared project lock and resources can
// all be acquired together, and atomically transitions it to Running before
// returning it (§4.3, §5).
func (p *Plan) SelectNext() (worksource.Selection, error) {
	for _, id := range p.order {
		t := p.tasks[id]
		if State(t.state.Load()) != Pending || t.depCount.Load() != 0 {
			continue
		}
		lock := resourcelock.NewLock(p.registry, t.project, t.resources)
		if !lock.TryAcquire() {
			continue
		}
		if !t.state.CompareAndSwap(int32(Pending), int32(Running)) {
			lock.Release()
			continue
		}
		t.lock = lock
		return worksource.Item(t), nil
	}
	if p.remaining.Load() == 0 {
		return worksource.NoMoreWork(), nil
	}
	return worksource.NoWorkReady(), nil
}

// AllExecutionComplete implements worksource.Source.
func (p *Plan) AllExecutionComplete() bool {
	return p.remaining.Load() == 0
}

// FinishedExecuting implements worksource.Source.
func (p *Plan) FinishedExecuting(node worksource.Node, failure error) error {
	t, ok := node.(*Task)
	if !ok {
		return fmt.Errorf("taskgraph: FinishedExecuting called with foreign node type %T", node)
	}
	if t.lock != nil {
		t.lock.Release()
		t.lock = nil
	}
	if failure != nil {
		t.state.Store(int32(Failed))
		t.err = failure
		p.addFailure(failure)
		p.remaining.Add(-1)
		p.skipDependents(t)
		return nil
	}
	t.state.Store(int32(Done))
	p.remaining.Add(-1)
	for _, dependent := range t.dependents {
		dependent.depCount.Add(-1)
	}
	return nil
}

// skipDependents recursively marks every downstream task Skipped, the same
// cascade teacher's dag.Executor.skipDependents performs, distinguishing a
// "symptom" skip from the root-cause failure that triggered it.
func (p *Plan) skipDependents(t *Task) {
	for _, dependent := range t.dependents {
		dependent.skipOnce.Do(func() {
			// A task already skipped by CancelExecution or failed by
			// AbortAllAndFail has been counted out of remaining.
			if !dependent.state.CompareAndSwap(int32(Pending), int32(Skipped)) {
				return
			}
			err := fmt.Errorf("skipped due to upstream failure of %q", t.id)
			dependent.err = err
			p.addFailure(err)
			p.remaining.Add(-1)
			p.skipDependents(dependent)
		})
	}
}

// CollectFailures implements worksource.Source.
func (p *Plan) CollectFailures(sink *[]error) {
	p.failuresMu.Lock()
	*sink = append(*sink, p.failures...)
	p.failuresMu.Unlock()
}

// CancelExecution implements worksource.Source: every still-Pending task is
// skipped rather than started; tasks already Running are left to finish.
func (p *Plan) CancelExecution() {
	if !p.cancelled.CompareAndSwap(false, true) {
		return
	}
	for _, id := range p.order {
		t := p.tasks[id]
		if t.state.CompareAndSwap(int32(Pending), int32(Skipped)) {
			t.err = ErrCancelled
			p.addFailure(ErrCancelled)
			p.remaining.Add(-1)
		}
	}
}

// AbortAllAndFail implements worksource.Source: every still-Pending task
// fails with cause, escalating a Source or liveness failure (§7).
func (p *Plan) AbortAllAndFail(cause error) {
	for _, id := range p.order {
		t := p.tasks[id]
		if t.state.CompareAndSwap(int32(Pending), int32(Failed)) {
			t.err = cause
			p.addFailure(cause)
			p.remaining.Add(-1)
		}
	}
}

// HealthDiagnostics implements worksource.Source.
func (p *Plan) HealthDiagnostics() worksource.Diagnostics {
	return planDiagnostics{p}
}

type planDiagnostics struct{ p *Plan }

func (d planDiagnostics) DescribeTo(tree *diagnostics.Tree) {
	pending := 0
	for _, id := range d.p.order {
		if State(d.p.tasks[id].state.Load()) == Pending {
			pending++
		}
	}
	child := tree.Child(fmt.Sprintf("plan with %d pending task(s)", pending))
	for _, id := range d.p.order {
		t := d.p.tasks[id]
		if State(t.state.Load()) != Pending {
			continue
		}
		child.Child(fmt.Sprintf("%s (waiting on %d dependencies, project=%q, resources=%v)",
			t.id, t.depCount.Load(), t.project, t.resources))
	}
}
