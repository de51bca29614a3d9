// Package depgraph expands a cell's formula into the directed graph of
// cells it transitively depends on. The graph is bounded three ways:
// cycles are cut where detected, recursion stops at a maximum depth, and
// the surrounding context carries the wall-clock deadline.
package depgraph

import (
	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

// Node is one cell in a dependency graph.
type Node struct {
	Ref        domain.CellRef
	Expression string
	RawValue   string
	// Value is the cell's cached numeric value; nil when the cell is
	// empty or non-numeric.
	Value *float64
	// Operands groups children by their position in this node's formula.
	// Position order is the formula's left-to-right reference order and
	// is what component pairing across workbook versions keys on.
	Operands []OperandGroup

	IsLeaf       bool
	IsExternal   bool
	Truncated    bool
	Circular     bool
	ParseWarning bool
}

// OperandGroup is the set of nodes one formula operand expands to. A
// single cell reference yields one node; a range yields one per cell.
type OperandGroup struct {
	Position int
	Nodes    []*Node
}

// Address returns the node's canonical graph key.
func (n *Node) Address() string { return n.Ref.Address() }

// HasFormula reports whether the node carries a parsed expression.
func (n *Node) HasFormula() bool { return n.Expression != "" }

// Graph is a dependency graph rooted at one cell. Nodes are shared: a
// cell referenced from two formulas appears once.
type Graph struct {
	Root  *Node
	nodes map[string]*Node

	// Circular is set when any cycle was cut during construction.
	Circular bool
	// Warnings lists human-readable findings (cycles, truncations,
	// formulas that would not parse) with their cell locations.
	Warnings []string
}

// Node returns the graph node for a cell address, or nil.
func (g *Graph) Node(address string) *Node { return g.nodes[address] }

// Size returns the number of distinct cells in the graph.
func (g *Graph) Size() int { return len(g.nodes) }
