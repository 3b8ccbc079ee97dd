package train

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/forestml/grove/core/parallel"
	groveerrors "github.com/forestml/grove/pkg/errors"
)

// LevelBuilder computes the best split for every active node of one tree
// level. Histogram accumulation is blocked over (node, feature block,
// row block); nodes spanning several row blocks share a global histogram
// updated with atomic adds, and the last block to finish a (node,
// feature block) pair performs the gain sweep.
type LevelBuilder struct {
	params Params
	obj    objective
}

func NewLevelBuilder(p Params) (*LevelBuilder, error) {
	p = p.withDefaults()
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &LevelBuilder{params: p, obj: newObjective(&p)}, nil
}

// ComputeSplits returns one Split per work item. Items for which no
// candidate satisfies the minimum-leaf-size constraint come back with
// Feature == -1.
func (lb *LevelBuilder) ComputeSplits(in *Input, items []NodeWorkItem, tree int) ([]Split, error) {
	if in.Quantiles == nil {
		return nil, groveerrors.WithStack(&groveerrors.ValidationError{
			ParamName: "Quantiles",
			Reason:    "input has no bin boundaries; call BuildQuantiles first",
		})
	}
	splits := make([]Split, len(items))
	for i := range splits {
		splits[i] = Split{Feature: -1, Gain: math.Inf(-1)}
	}
	if len(items) == 0 {
		return splits, nil
	}

	sampled := in.SampledCols
	if sampled <= 0 || sampled > in.NumCols {
		sampled = in.NumCols
	}
	colsPerBlock := lb.params.ColsPerBlock
	if colsPerBlock > sampled {
		colsPerBlock = sampled
	}
	featBlocks := (sampled + colsPerBlock - 1) / colsPerBlock
	blocks, numLarge := buildWorkload(items, featBlocks, lb.params.RowsPerBlock)

	binSize := lb.obj.binSize()
	histLen := colsPerBlock * lb.params.MaxBins * binSize

	// Shared state for sharded (node, feature block) pairs. Histogram
	// cells hold float64 bit patterns so they can be updated with CAS
	// adds from many blocks at once.
	shared := make([][]uint64, numLarge)
	done := make([]int32, numLarge)
	for i := range shared {
		shared[i] = make([]uint64, histLen)
	}
	locks := make([]sync.Mutex, len(items))

	parallel.Launch(len(blocks), func(b int) {
		bi := blocks[b]
		item := items[bi.item]

		lo := item.Begin + bi.rowBlock*lb.params.RowsPerBlock
		hi := lo + lb.params.RowsPerBlock
		if end := item.Begin + item.Count; hi > end {
			hi = end
		}
		cLo := bi.featBlock * colsPerBlock
		cHi := cLo + colsPerBlock
		if cHi > sampled {
			cHi = sampled
		}

		// Resolve the sampled candidate indices of this feature block to
		// dataset column ids once per block.
		cols := make([]int, cHi-cLo)
		for k := cLo; k < cHi; k++ {
			cols[k-cLo] = sampledFeature(k, in, tree, item.NodeID, lb.params.Seed)
		}

		local := make([]float64, histLen)
		stride := lb.params.MaxBins * binSize
		for r := lo; r < hi; r++ {
			row := int(in.Rows[r])
			label := in.Labels[row]
			for ci, f := range cols {
				bin := in.Quantiles.Bin(f, in.At(row, f))
				lb.obj.accumulate(local[ci*stride:(ci+1)*stride], bin, label)
			}
		}

		if bi.largeIdx < 0 {
			lb.sweep(in, local, cols, bi.item, items, splits, locks)
			return
		}

		global := shared[bi.largeIdx]
		for i, v := range local {
			if v != 0 {
				atomicAddFloat64(&global[i], v)
			}
		}
		// The last arriver owns the completed histogram and runs the
		// gain sweep for this pair.
		if atomic.AddInt32(&done[bi.largeIdx], 1) != int32(bi.rowBlocks) {
			return
		}
		combined := make([]float64, histLen)
		for i := range global {
			combined[i] = math.Float64frombits(atomic.LoadUint64(&global[i]))
		}
		lb.sweep(in, combined, cols, bi.item, items, splits, locks)
	})

	return splits, nil
}

// sweep scans one feature block's finished histogram, evaluates every
// split candidate, and publishes the block-local best into the shared
// per-node slot.
func (lb *LevelBuilder) sweep(in *Input, hist []float64, cols []int, itemIdx int, items []NodeWorkItem, splits []Split, locks []sync.Mutex) {
	binSize := lb.obj.binSize()
	stride := lb.params.MaxBins * binSize
	item := items[itemIdx]

	best := Split{Feature: -1, Gain: math.Inf(-1)}
	cum := make([]float64, lb.params.MaxBins*binSize)

	for ci, f := range cols {
		nBins := in.Quantiles.NumBins(f)
		if nBins < 2 {
			continue
		}
		h := hist[ci*stride:]

		// Inclusive scan: cum[b] aggregates bins 0..b, so cum[nBins-1]
		// holds the node totals used for the right side of each split.
		copy(cum[:binSize], h[:binSize])
		for b := 1; b < nBins; b++ {
			for s := 0; s < binSize; s++ {
				cum[b*binSize+s] = cum[(b-1)*binSize+s] + h[b*binSize+s]
			}
		}

		for split := 0; split < nBins-1; split++ {
			gain, leftCount := lb.obj.gain(cum, nBins, split)
			rightCount := item.Count - leftCount
			if leftCount < lb.params.MinSamplesLeaf || rightCount < lb.params.MinSamplesLeaf {
				continue
			}
			if better(gain, f, split, &best) {
				best = Split{
					Feature:   f,
					Bin:       split,
					Threshold: in.Quantiles.Threshold(f, split),
					Gain:      gain,
					LeftCount: leftCount,
				}
			}
		}
	}

	if best.Feature < 0 {
		return
	}
	locks[itemIdx].Lock()
	if better(best.Gain, best.Feature, best.Bin, &splits[itemIdx]) {
		splits[itemIdx] = best
	}
	locks[itemIdx].Unlock()
}

// better orders candidates by gain, breaking exact ties toward the lower
// feature id and then the lower bin so concurrent publishers converge on
// the same winner regardless of arrival order.
func better(gain float64, feature, bin int, cur *Split) bool {
	if gain != cur.Gain {
		return gain > cur.Gain
	}
	if feature != cur.Feature {
		return cur.Feature < 0 || feature < cur.Feature
	}
	return bin < cur.Bin
}

func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		upd := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(addr, old, upd) {
			return
		}
	}
}
