package train

// Partition reorders rows[begin:begin+count] in place so that every row
// whose split condition holds (goLeft true) precedes every row for which
// it does not, and returns the number of left rows. Only misplaced rows
// are touched: rows already on their side keep their slot, and each
// misplaced left row is swapped with a misplaced right row.
func Partition(rows []int32, begin, count int, goLeft func(row int32) bool) int {
	seg := rows[begin : begin+count]

	left := 0
	for _, r := range seg {
		if goLeft(r) {
			left++
		}
	}

	// Misfits pair up exactly: a right-bound row sitting in the left
	// region corresponds to a left-bound row sitting in the right region.
	i, j := 0, left
	for i < left {
		if goLeft(seg[i]) {
			i++
			continue
		}
		for !goLeft(seg[j]) {
			j++
		}
		seg[i], seg[j] = seg[j], seg[i]
		i++
		j++
	}
	return left
}

// partitionSplit routes one node's rows by its chosen split. Rows are
// compared against the split threshold with the same convention the
// emitted tree nodes use: value <= threshold goes left, and missing
// values (quantile bin 0) go left as well.
func partitionSplit(in *Input, item NodeWorkItem, sp Split) int {
	bin := sp.Bin
	f := sp.Feature
	return Partition(in.Rows, item.Begin, item.Count, func(row int32) bool {
		return in.Quantiles.Bin(f, in.At(int(row), f)) <= bin
	})
}
