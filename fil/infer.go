package fil

import (
	"github.com/forestml/grove/core/parallel"
	"github.com/forestml/grove/pkg/log"
)

// chooseAlgo picks a traversal strategy when the caller left Algo on
// auto. Small workloads stay on the naive per-row walk; deep forests and
// larger batches benefit from walking one tree across a row tile at a
// time; wide forests on large batches additionally interleave tree
// groups so partial sums stay small and hot.
func (f *Forest) chooseAlgo(numRows int) Algo {
	if f.cfg.Algo != AlgoAuto {
		return f.cfg.Algo
	}
	work := numRows * f.cfg.NumTrees
	switch {
	case work < 1<<14:
		return AlgoNaive
	case f.cfg.NumTrees >= 64 && numRows >= 256:
		return AlgoBatchTreeReorg
	default:
		return AlgoTreeReorg
	}
}

func (f *Forest) infer(raw, data []float32, numRows int) {
	algo := f.chooseAlgo(numRows)
	log.GetLoggerWithName("fil").Debug("running inference",
		"algo", algo.String(),
		"storage", f.kind.String(),
		"rows", numRows,
		"trees", f.cfg.NumTrees)

	switch f.kind {
	case StorageDense:
		inferForest(f, f.dense, denseRoots{stride: f.denseStride}, algo, raw, data, numRows)
	case StorageSparse16:
		inferForest(f, f.sparse16, sparseRoots(f.treeRoots), algo, raw, data, numRows)
	case StorageSparse8:
		inferForest(f, f.sparse8, sparseRoots(f.treeRoots), algo, raw, data, numRows)
	}
}

// rootIndex abstracts where tree t starts inside the shared node array.
type rootIndex interface {
	root(tree int) int
}

type denseRoots struct{ stride int }

func (d denseRoots) root(tree int) int { return tree * d.stride }

type sparseRoots []int32

func (s sparseRoots) root(tree int) int { return int(s[tree]) }

func inferForest[N nodeAccessor, R rootIndex](f *Forest, nodes []N, roots R, algo Algo, raw, data []float32, numRows int) {
	switch algo {
	case AlgoTreeReorg:
		inferTreeReorg(f, nodes, roots, raw, data, numRows)
	case AlgoBatchTreeReorg:
		inferBatchTreeReorg(f, nodes, roots, raw, data, numRows)
	default:
		inferNaive(f, nodes, roots, raw, data, numRows)
	}
}

// inferNaive assigns each worker a span of rows; every row walks all
// trees serially.
func inferNaive[N nodeAccessor, R rootIndex](f *Forest, nodes []N, roots R, raw, data []float32, numRows int) {
	cols := f.cfg.NumCols
	w := f.accWidth()
	parallel.Parallelize(numRows, func(start, end int) {
		for i := start; i < end; i++ {
			row := data[i*cols : (i+1)*cols]
			acc := raw[i*w : (i+1)*w]
			for t := 0; t < f.cfg.NumTrees; t++ {
				leaf := walkTree(nodes, roots.root(t), row, &f.cats)
				f.accumulateLeaf(acc, leaf, t)
			}
		}
	})
}

// inferTreeReorg tiles the batch and, within each tile, walks one tree at
// a time across all rows of the tile. Keeping a single tree's nodes hot
// across many rows amortizes memory latency the same way the batched
// tree reorganization does on device.
func inferTreeReorg[N nodeAccessor, R rootIndex](f *Forest, nodes []N, roots R, raw, data []float32, numRows int) {
	cols := f.cfg.NumCols
	w := f.accWidth()
	tile := f.cfg.RowsPerTile
	numTiles := (numRows + tile - 1) / tile
	parallel.Launch(numTiles, func(block int) {
		lo := block * tile
		hi := lo + tile
		if hi > numRows {
			hi = numRows
		}
		for t := 0; t < f.cfg.NumTrees; t++ {
			base := roots.root(t)
			for i := lo; i < hi; i++ {
				leaf := walkTree(nodes, base, data[i*cols:(i+1)*cols], &f.cats)
				f.accumulateLeaf(raw[i*w:(i+1)*w], leaf, t)
			}
		}
	})
}

// treesPerGroup is the tree-group granularity of the cross-tree batched
// strategy.
const treesPerGroup = 32

// inferBatchTreeReorg interleaves tree groups with row tiles: each block
// owns one (tile, tree-group) pair and writes a group-partial
// accumulator, reduced across groups once all blocks finish.
func inferBatchTreeReorg[N nodeAccessor, R rootIndex](f *Forest, nodes []N, roots R, raw, data []float32, numRows int) {
	cols := f.cfg.NumCols
	w := f.accWidth()
	tile := f.cfg.RowsPerTile
	numTiles := (numRows + tile - 1) / tile
	numGroups := (f.cfg.NumTrees + treesPerGroup - 1) / treesPerGroup

	// One partial accumulator per (tile, group); distinct blocks never alias.
	partials := make([]float32, numTiles*numGroups*tile*w)

	parallel.Launch(numTiles*numGroups, func(block int) {
		tileIdx := block / numGroups
		group := block % numGroups
		lo := tileIdx * tile
		hi := lo + tile
		if hi > numRows {
			hi = numRows
		}
		tlo := group * treesPerGroup
		thi := tlo + treesPerGroup
		if thi > f.cfg.NumTrees {
			thi = f.cfg.NumTrees
		}
		part := partials[block*tile*w : (block+1)*tile*w]
		for t := tlo; t < thi; t++ {
			base := roots.root(t)
			for i := lo; i < hi; i++ {
				leaf := walkTree(nodes, base, data[i*cols:(i+1)*cols], &f.cats)
				f.accumulateLeaf(part[(i-lo)*w:(i-lo+1)*w], leaf, t)
			}
		}
	})

	parallel.Parallelize(numRows, func(start, end int) {
		for i := start; i < end; i++ {
			tileIdx := i / tile
			off := i % tile
			acc := raw[i*w : (i+1)*w]
			for g := 0; g < numGroups; g++ {
				part := partials[((tileIdx*numGroups)+g)*tile*w:]
				for k := 0; k < w; k++ {
					acc[k] += part[off*w+k]
				}
			}
		}
	})
}

// walkTree descends from the tree rooted at nodes[base] to a leaf.
// Comparison semantics are canonical: numeric splits test value <
// threshold, NaN values fail the comparison and take the node's default
// direction, categorical matches route right.
func walkTree[N nodeAccessor](nodes []N, base int, row []float32, cats *CatSets) N {
	cur := 0
	for {
		n := nodes[base+cur]
		if n.IsLeaf() {
			return n
		}
		v := row[n.Feature()]
		var goLeft bool
		if n.IsCategorical() {
			count := cats.FeatureCounts[n.Feature()]
			if !catValueInRange(v, count) {
				goLeft = n.DefaultLeft()
			} else {
				goLeft = !cats.contains(n.SetOffset(), v)
			}
		} else {
			if v != v { // NaN
				goLeft = n.DefaultLeft()
			} else {
				goLeft = v < n.Thresh()
			}
		}
		l := n.left(cur)
		if goLeft {
			cur = l
		} else {
			cur = l + 1
		}
	}
}

// accumulateLeaf folds one tree's leaf output into the row accumulator
// according to the forest's leaf algorithm.
func (f *Forest) accumulateLeaf(acc []float32, leaf nodeAccessor, tree int) {
	switch f.cfg.LeafAlgo {
	case LeafFloat:
		acc[0] += leaf.OutputFloat()
	case LeafGrovePerClass:
		acc[tree%f.cfg.NumClasses] += leaf.OutputFloat()
	case LeafCategorical:
		acc[leaf.OutputIndex()]++
	case LeafVector:
		vec := f.vectorLeaves[leaf.OutputIndex()*f.cfg.NumClasses:]
		for c := 0; c < f.cfg.NumClasses; c++ {
			acc[c] += vec[c]
		}
	}
}
