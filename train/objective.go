package train

import "math"

// objective abstracts the split criterion over the shared histogram
// layout: each bin owns binSize() consecutive float64 slots, and gains
// are evaluated on the cumulative (inclusive-scanned) form, where
// cum[bin b] holds the statistics of all bins <= b and the last bin
// holds the node totals.
type objective interface {
	binSize() int
	accumulate(bins []float64, bin int, label float32)
	// gain returns the impurity decrease of splitting after bin `split`
	// plus the left-side row count, evaluated on cumulative statistics.
	gain(cum []float64, nBins, split int) (float64, int)
}

// giniObjective accumulates per-class counts per bin.
type giniObjective struct {
	numClasses int
}

func (o giniObjective) binSize() int { return o.numClasses }

func (o giniObjective) accumulate(bins []float64, bin int, label float32) {
	bins[bin*o.numClasses+int(label)]++
}

func (o giniObjective) gain(cum []float64, nBins, split int) (float64, int) {
	return classificationGain(cum, nBins, split, o.numClasses, giniImpurity)
}

// entropyObjective shares the count layout with gini.
type entropyObjective struct {
	numClasses int
}

func (o entropyObjective) binSize() int { return o.numClasses }

func (o entropyObjective) accumulate(bins []float64, bin int, label float32) {
	bins[bin*o.numClasses+int(label)]++
}

func (o entropyObjective) gain(cum []float64, nBins, split int) (float64, int) {
	return classificationGain(cum, nBins, split, o.numClasses, entropyImpurity)
}

func giniImpurity(counts []float64, total float64) float64 {
	imp := 1.0
	for _, c := range counts {
		p := c / total
		imp -= p * p
	}
	return imp
}

func entropyImpurity(counts []float64, total float64) float64 {
	imp := 0.0
	for _, c := range counts {
		if c <= 0 {
			continue
		}
		p := c / total
		imp -= p * math.Log2(p)
	}
	return imp
}

func classificationGain(cum []float64, nBins, split, numClasses int, impurity func([]float64, float64) float64) (float64, int) {
	left := cum[split*numClasses : (split+1)*numClasses]
	total := cum[(nBins-1)*numClasses : nBins*numClasses]

	var nLeft, n float64
	for c := 0; c < numClasses; c++ {
		nLeft += left[c]
		n += total[c]
	}
	nRight := n - nLeft
	if nLeft == 0 || nRight == 0 || n == 0 {
		return 0, int(nLeft)
	}

	right := make([]float64, numClasses)
	for c := 0; c < numClasses; c++ {
		right[c] = total[c] - left[c]
	}

	parent := impurity(total, n)
	g := parent - (nLeft/n)*impurity(left, nLeft) - (nRight/n)*impurity(right, nRight)
	return g, int(nLeft)
}

// mseObjective accumulates count, label sum and label sum-of-squares per
// bin; the gain is the variance reduction of the split.
type mseObjective struct{}

const mseBinSize = 3 // count, sum, sum of squares

func (mseObjective) binSize() int { return mseBinSize }

func (mseObjective) accumulate(bins []float64, bin int, label float32) {
	y := float64(label)
	bins[bin*mseBinSize]++
	bins[bin*mseBinSize+1] += y
	bins[bin*mseBinSize+2] += y * y
}

func (mseObjective) gain(cum []float64, nBins, split int) (float64, int) {
	lc := cum[split*mseBinSize]
	ls := cum[split*mseBinSize+1]
	lq := cum[split*mseBinSize+2]
	tc := cum[(nBins-1)*mseBinSize]
	ts := cum[(nBins-1)*mseBinSize+1]
	tq := cum[(nBins-1)*mseBinSize+2]

	rc := tc - lc
	if lc == 0 || rc == 0 {
		return 0, int(lc)
	}
	rs := ts - ls
	rq := tq - lq

	variance := func(n, s, q float64) float64 {
		m := s / n
		v := q/n - m*m
		if v < 0 { // numeric noise
			v = 0
		}
		return v
	}
	parent := variance(tc, ts, tq)
	g := parent - (lc/tc)*variance(lc, ls, lq) - (rc/tc)*variance(rc, rs, rq)
	return g, int(lc)
}

func newObjective(p *Params) objective {
	switch p.Objective {
	case ObjectiveEntropy:
		return entropyObjective{numClasses: p.NumClasses}
	case ObjectiveMSE:
		return mseObjective{}
	default:
		return giniObjective{numClasses: p.NumClasses}
	}
}
