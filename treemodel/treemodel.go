// Package treemodel defines the external tree-ensemble representation that
// the fil importer consumes and the trainer produces. It is a plain data
// boundary: per-node comparison operators are arbitrary (<, <=, >, >=),
// categorical splits carry explicit left-category lists, and children are
// referenced by index within the tree's node slice.
package treemodel

import (
	"math"

	"github.com/forestml/grove/pkg/errors"
)

// Operator is the comparison applied at a numerical split. The split
// routes to the left child when `value Op threshold` holds.
type Operator int

const (
	OpLT Operator = iota // value <  threshold
	OpLE                 // value <= threshold
	OpGT                 // value >  threshold
	OpGE                 // value >= threshold
)

func (op Operator) String() string {
	switch op {
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	default:
		return "?"
	}
}

// Node is one split or leaf in an external tree. A node is categorical
// when LeftCategories is non-nil (values listed there route left) or when
// its threshold is NaN. Leaves may carry either a scalar LeafValue
// (regression, binary margin, or class index depending on the model's
// leaf semantics) or a per-class LeafVector.
type Node struct {
	IsLeaf bool

	// Split fields.
	Feature        int
	Threshold      float64
	Op             Operator
	LeftCategories []int
	DefaultLeft    bool
	LeftChild      int
	RightChild     int

	// Leaf fields.
	LeafValue  float64
	LeafVector []float64
}

// IsCategorical reports whether the node performs a category-set test.
func (n *Node) IsCategorical() bool {
	return !n.IsLeaf && (n.LeftCategories != nil || math.IsNaN(n.Threshold))
}

// Tree is a single decision tree. Node 0 is the root.
type Tree struct {
	Nodes []Node
}

// AddLeaf appends a scalar leaf and returns its index.
func (t *Tree) AddLeaf(value float64) int {
	t.Nodes = append(t.Nodes, Node{IsLeaf: true, LeafValue: value})
	return len(t.Nodes) - 1
}

// AddVectorLeaf appends a leaf carrying a per-class vector and returns its index.
func (t *Tree) AddVectorLeaf(vector []float64) int {
	t.Nodes = append(t.Nodes, Node{IsLeaf: true, LeafVector: vector})
	return len(t.Nodes) - 1
}

// AddSplit appends a numerical split with unresolved children and returns
// its index. Children are patched in by the caller once they exist.
func (t *Tree) AddSplit(feature int, threshold float64, op Operator, defaultLeft bool) int {
	t.Nodes = append(t.Nodes, Node{
		Feature:     feature,
		Threshold:   threshold,
		Op:          op,
		DefaultLeft: defaultLeft,
		LeftChild:   -1,
		RightChild:  -1,
	})
	return len(t.Nodes) - 1
}

// AddCategoricalSplit appends a categorical split whose listed categories
// route left, and returns its index.
func (t *Tree) AddCategoricalSplit(feature int, leftCategories []int, defaultLeft bool) int {
	t.Nodes = append(t.Nodes, Node{
		Feature:        feature,
		Threshold:      math.NaN(),
		LeftCategories: leftCategories,
		DefaultLeft:    defaultLeft,
		LeftChild:      -1,
		RightChild:     -1,
	})
	return len(t.Nodes) - 1
}

// Depth returns the maximum root-to-leaf depth of the tree (a lone leaf
// has depth 0).
func (t *Tree) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	return t.depthFrom(0)
}

func (t *Tree) depthFrom(idx int) int {
	n := &t.Nodes[idx]
	if n.IsLeaf {
		return 0
	}
	left := t.depthFrom(n.LeftChild)
	right := t.depthFrom(n.RightChild)
	if right > left {
		left = right
	}
	return left + 1
}

// Model is a complete externally-built ensemble plus the global output
// configuration the inference engine needs.
type Model struct {
	Trees []Tree

	NumFeatures int
	NumClasses  int // 1 for regression / binary-margin models

	// CategoryCounts holds, per feature, the number of distinct categories
	// the feature can take; 0 marks a numeric-only feature. Only features
	// with a positive count may appear in categorical splits.
	CategoryCounts []int

	GlobalBias         float64
	AveragePredictions bool // divide the summed tree outputs by the tree count
	Sigmoid            bool
	Softmax            bool
}

// Validate checks structural integrity: child indices in range, operators
// known, categorical splits only on categorical-capable features, and
// leaf vectors sized to NumClasses.
func (m *Model) Validate() error {
	if m.NumFeatures <= 0 {
		return errors.NewValidationError("NumFeatures", "must be positive", m.NumFeatures)
	}
	for ti := range m.Trees {
		t := &m.Trees[ti]
		for ni := range t.Nodes {
			n := &t.Nodes[ni]
			if n.IsLeaf {
				if n.LeafVector != nil && len(n.LeafVector) != m.NumClasses {
					return errors.NewDimensionError("treemodel.Validate", m.NumClasses, len(n.LeafVector), 1)
				}
				continue
			}
			if n.LeftChild < 0 || n.LeftChild >= len(t.Nodes) ||
				n.RightChild < 0 || n.RightChild >= len(t.Nodes) {
				return errors.Newf("treemodel: tree %d node %d: child index out of range", ti, ni)
			}
			if n.Feature < 0 || n.Feature >= m.NumFeatures {
				return errors.Newf("treemodel: tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			if n.Op < OpLT || n.Op > OpGE {
				return errors.Newf("treemodel: tree %d node %d: unknown operator", ti, ni)
			}
			if n.IsCategorical() {
				if m.CategoryCounts == nil || m.CategoryCounts[n.Feature] <= 0 {
					return errors.Newf("treemodel: tree %d node %d: categorical split on numeric feature %d", ti, ni, n.Feature)
				}
			}
		}
	}
	return nil
}
