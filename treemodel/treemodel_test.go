package treemodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildStump(op Operator) Tree {
	var tr Tree
	root := tr.AddSplit(0, 0.5, op, true)
	tr.Nodes[root].LeftChild = tr.AddLeaf(1)
	tr.Nodes[root].RightChild = tr.AddLeaf(2)
	return tr
}

func TestTreeBuilders(t *testing.T) {
	var tr Tree
	root := tr.AddSplit(3, 1.5, OpLE, false)
	assert.Equal(t, 0, root)
	l := tr.AddLeaf(0.25)
	r := tr.AddVectorLeaf([]float64{0.1, 0.9})
	tr.Nodes[root].LeftChild = l
	tr.Nodes[root].RightChild = r

	assert.True(t, tr.Nodes[l].IsLeaf)
	assert.Equal(t, []float64{0.1, 0.9}, tr.Nodes[r].LeafVector)
	assert.False(t, tr.Nodes[root].IsCategorical())
	assert.Equal(t, 1, tr.Depth())
}

func TestCategoricalSplit(t *testing.T) {
	var tr Tree
	root := tr.AddCategoricalSplit(1, []int{0, 3}, true)
	tr.Nodes[root].LeftChild = tr.AddLeaf(1)
	tr.Nodes[root].RightChild = tr.AddLeaf(2)

	assert.True(t, tr.Nodes[root].IsCategorical())
	assert.Equal(t, []int{0, 3}, tr.Nodes[root].LeftCategories)
}

func TestDepth(t *testing.T) {
	var leaf Tree
	leaf.AddLeaf(5)
	assert.Equal(t, 0, leaf.Depth())

	// chain of 3 splits
	var tr Tree
	n0 := tr.AddSplit(0, 1, OpLT, true)
	n1 := tr.AddSplit(0, 2, OpLT, true)
	n2 := tr.AddSplit(0, 3, OpLT, true)
	tr.Nodes[n0].LeftChild = tr.AddLeaf(0)
	tr.Nodes[n0].RightChild = n1
	tr.Nodes[n1].LeftChild = tr.AddLeaf(0)
	tr.Nodes[n1].RightChild = n2
	tr.Nodes[n2].LeftChild = tr.AddLeaf(0)
	tr.Nodes[n2].RightChild = tr.AddLeaf(1)
	assert.Equal(t, 3, tr.Depth())
}

func TestModelValidate(t *testing.T) {
	valid := &Model{
		Trees:       []Tree{buildStump(OpLT)},
		NumFeatures: 2,
		NumClasses:  1,
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Model)
	}{
		{"no features", func(m *Model) { m.NumFeatures = 0 }},
		{"child out of range", func(m *Model) { m.Trees[0].Nodes[0].RightChild = 9 }},
		{"feature out of range", func(m *Model) { m.Trees[0].Nodes[0].Feature = 5 }},
		{"unknown operator", func(m *Model) { m.Trees[0].Nodes[0].Op = Operator(42) }},
		{"categorical on numeric feature", func(m *Model) {
			m.Trees[0].Nodes[0].LeftCategories = []int{1}
		}},
		{"leaf vector wrong width", func(m *Model) {
			m.NumClasses = 3
			m.Trees[0].Nodes[1] = Node{IsLeaf: true, LeafVector: []float64{1, 2}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &Model{
				Trees:       []Tree{buildStump(OpLT)},
				NumFeatures: 2,
				NumClasses:  1,
			}
			tc.mutate(m)
			assert.Error(t, m.Validate())
		})
	}

	// categorical splits pass once the feature is declared categorical
	m := &Model{
		Trees:          []Tree{buildStump(OpLT)},
		NumFeatures:    2,
		NumClasses:     1,
		CategoryCounts: []int{4, 0},
	}
	m.Trees[0].Nodes[0].LeftCategories = []int{1, 2}
	assert.NoError(t, m.Validate())
}
