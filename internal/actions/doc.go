// Package actions holds the concrete node actions a plan's tasks can name:
// the function run once a taskgraph.Task is selected for execution. Each action
// reads its arguments from the task's declared, already-evaluated cty.Value
// map.
package actions
