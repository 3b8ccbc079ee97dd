package train

// Feature subsampling uses a deterministic permutation derived from a
// 32-bit FNV-1a hash of (candidate index, tree id, node id, seed). The
// k-th sampled column is the candidate whose hash rank equals k, found by
// recomputing ranks on demand: no per-node permutation storage, at the
// cost of rescanning the candidates per lookup. Given a fixed seed the
// selection is reproducible regardless of scheduling.

const (
	fnvOffset32 = 2166136261
	fnvPrime32  = 16777619
)

func fnv1a32(words ...uint32) uint32 {
	h := uint32(fnvOffset32)
	for _, w := range words {
		for s := 0; s < 32; s += 8 {
			h ^= (w >> s) & 0xff
			h *= fnvPrime32
		}
	}
	return h
}

// featureHash keys the permutation for one candidate column.
func featureHash(candidate, tree, node int, seed int64) uint32 {
	return fnv1a32(uint32(candidate), uint32(tree), uint32(node), uint32(seed), uint32(seed>>32))
}

// selectFeature returns the k-th column of the deterministic permutation
// of nCols candidates for (tree, node, seed). Hash collisions fall back
// to candidate order, so the permutation is total.
func selectFeature(k, nCols, tree, node int, seed int64) int {
	for i := 0; i < nCols; i++ {
		hi := featureHash(i, tree, node, seed)
		rank := 0
		for j := 0; j < nCols; j++ {
			if j == i {
				continue
			}
			hj := featureHash(j, tree, node, seed)
			if hj < hi || (hj == hi && j < i) {
				rank++
			}
		}
		if rank == k {
			return i
		}
	}
	// unreachable: ranks form a permutation of [0, nCols)
	return nCols - 1
}

// sampledFeature resolves the column considered at position k of a node's
// feature batch. With a full feature fraction the identity mapping keeps
// candidates in natural order.
func sampledFeature(k int, in *Input, tree, node int, seed int64) int {
	if in.SampledCols >= in.NumCols {
		return k
	}
	return selectFeature(k, in.NumCols, tree, node, seed)
}
