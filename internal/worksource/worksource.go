// Package worksource defines the contract of §4.3: an individual plan (task
// graph, work queue, or any other ready-node producer) that plugs into the
// shared executor core. The core never looks inside a Source's concrete
// type; every method here is invoked with the coordination state lock held.
package worksource

import "github.com/vk/taskplan/internal/diagnostics"

// Node is a unit of work of unknown concrete type from the core's
// perspective; concrete Source implementations define what it actually is.
type Node any

// StateKind is the three-case execution state of a Source, or of the merged
// view over several sources (§3).
type StateKind int

const (
	// MaybeWorkReadyToStart means a node might be selectable right now; the
	// caller should proceed to SelectNext to find out.
	MaybeWorkReadyToStart StateKind = iota
	// NoWorkReadyToStart means nothing is selectable yet, but more work may
	// become ready later (e.g. once a running node finishes).
	NoWorkReadyToStart
	// NoMoreWorkToStart means nothing will ever become selectable again.
	NoMoreWorkToStart
)

func (k StateKind) String() string {
	switch k {
	case MaybeWorkReadyToStart:
		return "MaybeWorkReadyToStart"
	case NoWorkReadyToStart:
		return "NoWorkReadyToStart"
	case NoMoreWorkToStart:
		return "NoMoreWorkToStart"
	default:
		return "unknown"
	}
}

// selectionKind distinguishes the three inhabitants of Selection (§3); it
// carries a payload only in the Item case.
type selectionKind int

const (
	selectionItem selectionKind = iota
	selectionNoWorkReadyToStart
	selectionNoMoreWorkToStart
)

// Selection is the sum type Item(node) | NoWorkReadyToStart | NoMoreWorkToStart.
type Selection struct {
	kind selectionKind
	node Node
}

// Item wraps a selected node.
func Item(n Node) Selection { return Selection{kind: selectionItem, node: n} }

// NoWorkReady reports that nothing is selectable right now.
func NoWorkReady() Selection { return Selection{kind: selectionNoWorkReadyToStart} }

// NoMoreWork reports that nothing will ever be selectable again.
func NoMoreWork() Selection { return Selection{kind: selectionNoMoreWorkToStart} }

// IsItem reports whether this Selection carries a node.
func (s Selection) IsItem() bool { return s.kind == selectionItem }

// IsNoWorkReadyToStart reports the NoWorkReadyToStart case.
func (s Selection) IsNoWorkReadyToStart() bool { return s.kind == selectionNoWorkReadyToStart }

// IsNoMoreWorkToStart reports the NoMoreWorkToStart case.
func (s Selection) IsNoMoreWorkToStart() bool { return s.kind == selectionNoMoreWorkToStart }

// Node returns the selected node. Only valid when IsItem is true.
func (s Selection) Node() Node { return s.node }

// Diagnostics describes why a Source's queued work cannot currently be
// started; it is rendered into the liveness-failure tree (§6).
type Diagnostics interface {
	DescribeTo(tree *diagnostics.Tree)
}

// Source is the contract every plan must meet (§4.3). All methods are
// invoked with the coordination state lock held, and must not themselves
// run a node's action body.
type Source interface {
	// ExecutionState reports the coarse scheduling state without mutating
	// anything.
	ExecutionState() StateKind

	// SelectNext atomically moves a ready node out of the ready set and
	// returns it. An error here is a Source failure (§7): the core
	// responds by aborting every other live plan.
	SelectNext() (Selection, error)

	// AllExecutionComplete reports whether every node has reached a
	// terminal state (done, failed, or skipped).
	AllExecutionComplete() bool

	// FinishedExecuting reports the outcome of a previously selected node.
	// failure is nil on success. Called exactly once per node (§8).
	FinishedExecuting(node Node, failure error) error

	// CollectFailures appends this Source's accumulated failures to sink.
	CollectFailures(sink *[]error)

	// CancelExecution begins a graceful stop: no further nodes should be
	// scheduled, though nodes already running are left to finish normally.
	CancelExecution()

	// AbortAllAndFail fails every unstarted node with cause; used both for
	// a Source failure escalation and a liveness failure (§7).
	AbortAllAndFail(cause error)

	// HealthDiagnostics describes the current blocked state of this
	// Source's queued work, for the liveness reporter (§4.6).
	HealthDiagnostics() Diagnostics
}
