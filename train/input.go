package train

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/forestml/grove/core/parallel"
)

// Input is the descriptor consumed by the level builder: the feature
// matrix, labels, the shared row-id permutation the partitioner reorders
// in place, and the per-feature quantile table that defines histogram
// bin boundaries.
type Input struct {
	Data     []float32
	RowMajor bool
	NumRows  int
	NumCols  int

	Labels []float32

	// Rows is the row-id permutation array. Work-item ranges index into
	// it; children always occupy contiguous sub-slices of their parent's
	// range.
	Rows []int32

	Quantiles *Quantiles

	// SampledCols is how many columns each node considers per level.
	SampledCols int
}

// At returns the feature value of row r, column c.
func (in *Input) At(r, c int) float32 {
	if in.RowMajor {
		return in.Data[r*in.NumCols+c]
	}
	return in.Data[c*in.NumRows+r]
}

// Quantiles is the precomputed per-feature candidate-threshold table.
// Feature f owns maxBins slots; used[f] of them are meaningful, and
// bound[f*maxBins+b] is the inclusive upper edge of bin b.
type Quantiles struct {
	maxBins int
	bounds  []float32
	used    []int32
}

// NumBins returns the bin count of feature f.
func (q *Quantiles) NumBins(f int) int { return int(q.used[f]) }

// Threshold returns the inclusive upper edge of bin b of feature f.
// Rows land left of a split at bin b exactly when value <= Threshold(f, b).
func (q *Quantiles) Threshold(f, b int) float32 { return q.bounds[f*q.maxBins+b] }

// Bin maps a value to its bin for feature f. NaN maps to bin 0, the same
// bin the emitted default-left direction routes missing values to at
// inference time. Values above the last boundary map to the last bin.
func (q *Quantiles) Bin(f int, v float32) int {
	if v != v { // NaN
		return 0
	}
	bounds := q.bounds[f*q.maxBins : f*q.maxBins+int(q.used[f])]
	lo := sort.Search(len(bounds), func(i int) bool { return v <= bounds[i] })
	if lo == len(bounds) {
		return len(bounds) - 1
	}
	return lo
}

// BuildQuantiles computes per-feature bin boundaries from the empirical
// distribution of each column. Features with few distinct values get one
// bin per value; the rest get maxBins equal-frequency bins.
func BuildQuantiles(in *Input, maxBins int) *Quantiles {
	q := &Quantiles{
		maxBins: maxBins,
		bounds:  make([]float32, in.NumCols*maxBins),
		used:    make([]int32, in.NumCols),
	}

	parallel.Parallelize(in.NumCols, func(start, end int) {
		values := make([]float64, 0, in.NumRows)
		for f := start; f < end; f++ {
			values = values[:0]
			for r := 0; r < in.NumRows; r++ {
				v := in.At(r, f)
				if v != v {
					continue
				}
				values = append(values, float64(v))
			}
			q.used[f] = int32(featureBounds(values, q.bounds[f*maxBins:(f+1)*maxBins]))
		}
	})
	return q
}

// featureBounds fills dst with ascending candidate thresholds and
// returns how many were produced (at least 1).
func featureBounds(values []float64, dst []float32) int {
	if len(values) == 0 {
		dst[0] = 0
		return 1
	}
	sort.Float64s(values)

	unique := values[:1]
	for _, v := range values[1:] {
		if v != unique[len(unique)-1] {
			unique = append(unique, v)
		}
	}

	if len(unique) <= len(dst) {
		for i, v := range unique {
			dst[i] = float32(v)
		}
		return len(unique)
	}

	n := 0
	prev := float32(0)
	for b := 0; b < len(dst); b++ {
		p := float64(b+1) / float64(len(dst))
		bound := float32(stat.Quantile(p, stat.Empirical, unique, nil))
		if n > 0 && bound == prev {
			continue
		}
		dst[n] = bound
		prev = bound
		n++
	}
	return n
}
