package fil

import "math"

// finalize applies the output transform pipeline to the raw per-row
// accumulators and writes the requested representation to dst. The order
// is fixed: averaging, global bias, sigmoid, softmax, class conversion.
func (f *Forest) finalize(dst, raw []float32, numRows int, proba bool) {
	w := f.accWidth()
	div := float32(1)
	if f.cfg.Average {
		div = float32(f.cfg.NumTrees)
		if f.cfg.LeafAlgo == LeafGrovePerClass {
			// each class bucket only receives every numClasses-th tree
			div = float32(f.cfg.NumTrees / f.cfg.NumClasses)
		}
	}

	outCols := 1
	if proba {
		outCols = f.numOutputClasses()
	}

	for i := 0; i < numRows; i++ {
		acc := raw[i*w : (i+1)*w]
		for k := range acc {
			acc[k] = acc[k]/div + f.cfg.GlobalBias
		}
		if f.cfg.Sigmoid {
			for k := range acc {
				acc[k] = sigmoid32(acc[k])
			}
		}
		if f.cfg.Softmax {
			softmax32(acc)
		}

		out := dst[i*outCols : (i+1)*outCols]
		if proba {
			if w == 1 {
				// binary: complement the positive-class score
				out[0] = 1 - acc[0]
				out[1] = acc[0]
			} else {
				copy(out, acc)
			}
			continue
		}
		switch {
		case f.cfg.NumClasses <= 1:
			out[0] = acc[0]
		case w == 1:
			if f.cfg.ClassOutput {
				if acc[0] > f.cfg.Threshold {
					out[0] = 1
				} else {
					out[0] = 0
				}
			} else {
				out[0] = acc[0]
			}
		default:
			out[0] = float32(argmax32(acc))
		}
	}
}

// sigmoid32 is a numerically stable logistic function.
func sigmoid32(x float32) float32 {
	if x >= 0 {
		e := math.Exp(-float64(x))
		return float32(1 / (1 + e))
	}
	e := math.Exp(float64(x))
	return float32(e / (1 + e))
}

// softmax32 normalizes in place, shifting by the max for stability.
func softmax32(x []float32) {
	maxVal := x[0]
	for _, v := range x[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for i, v := range x {
		e := math.Exp(float64(v - maxVal))
		x[i] = float32(e)
		sum += e
	}
	if sum > 0 {
		for i := range x {
			x[i] = float32(float64(x[i]) / sum)
		}
	}
}

// argmax32 returns the index of the largest element, preferring the
// lowest index on ties.
func argmax32(x []float32) int {
	best := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[best] {
			best = i
		}
	}
	return best
}
