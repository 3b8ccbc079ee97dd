package train

// NodeWorkItem is one active tree node at the current level: its
// tree-relative id, depth, and the contiguous instance range it owns
// inside the shared row-id permutation array.
type NodeWorkItem struct {
	NodeID int
	Depth  int
	Begin  int
	Count  int
}

// Split is the selected split of one work item. Feature is -1 when no
// acceptable candidate was found; the builder then turns the node into a
// leaf.
type Split struct {
	Feature   int
	Bin       int
	Threshold float32
	Gain      float64
	LeftCount int
}

// Valid reports whether any candidate was recorded at all. A valid split
// must still pass the minimum-gain test to be accepted.
func (s *Split) Valid() bool { return s.Feature >= 0 }

// blockInfo maps one launched block to its share of a level's work.
// Nodes with large row counts are sharded across several row blocks: all
// row blocks of one (item, feature-block) pair accumulate into a shared
// histogram, and the last block to arrive reduces it. Single-block pairs
// keep everything in block-local memory.
type blockInfo struct {
	item      int
	featBlock int
	rowBlock  int
	rowBlocks int

	// largeIdx indexes the shared histogram of a sharded pair, -1 for
	// single-block pairs.
	largeIdx int
}

// buildWorkload lays out the block grid for one level. The row-count
// distribution across nodes is highly skewed at shallow depths, so block
// counts are derived per node rather than uniformly.
func buildWorkload(items []NodeWorkItem, featBlocks, rowsPerBlock int) (blocks []blockInfo, numLarge int) {
	for i := range items {
		rowBlocks := (items[i].Count + rowsPerBlock - 1) / rowsPerBlock
		if rowBlocks < 1 {
			rowBlocks = 1
		}
		for fb := 0; fb < featBlocks; fb++ {
			largeIdx := -1
			if rowBlocks > 1 {
				largeIdx = numLarge
				numLarge++
			}
			for rb := 0; rb < rowBlocks; rb++ {
				blocks = append(blocks, blockInfo{
					item:      i,
					featBlock: fb,
					rowBlock:  rb,
					rowBlocks: rowBlocks,
					largeIdx:  largeIdx,
				})
			}
		}
	}
	return blocks, numLarge
}
