// Package diagnostics renders the tree-shaped failure report the health
// monitor attaches to a liveness failure (§4.6, §6), the Go counterpart of
// Gradle's TreeFormatter. Lines are word-wrapped and the root line is
// highlighted, the way a build tool's console reporter would style a fatal
// diagnostic.
package diagnostics

import (
	"strings"

	"github.com/gookit/color"
	"github.com/mitchellh/go-wordwrap"
)

// wrapWidth keeps long diagnostic lines readable in a terminal without
// depending on an actual terminal-size query, which is out of scope here.
const wrapWidth = 100

// Tree is a single node in a diagnostics report; it has a label and zero or
// more children.
type Tree struct {
	label    string
	children []*Tree
}

// NewTree creates a root node with the given label.
func NewTree(label string) *Tree {
	return &Tree{label: label}
}

// Child appends a new child with the given label and returns it, so callers
// can keep nesting.
func (t *Tree) Child(label string) *Tree {
	child := &Tree{label: label}
	t.children = append(t.children, child)
	return child
}

// String renders the tree with indentation, wrapping each label to
// wrapWidth and bolding the root line.
func (t *Tree) String() string {
	var b strings.Builder
	t.render(&b, 0, true)
	return b.String()
}

func (t *Tree) render(b *strings.Builder, depth int, root bool) {
	indent := strings.Repeat("  ", depth)
	label := wordwrap.WrapString(t.label, wrapWidth)
	label = strings.ReplaceAll(label, "\n", "\n"+indent+"  ")
	if root {
		b.WriteString(color.Bold.Sprint(indent + "- " + label))
	} else {
		b.WriteString(indent + "- " + label)
	}
	b.WriteByte('\n')
	for _, child := range t.children {
		child.render(b, depth+1, false)
	}
}
