package train

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionPermutationProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(64)
		begin := rng.Intn(8)
		rows := make([]int32, begin+n+rng.Intn(8))
		for i := range rows {
			rows[i] = int32(i * 3)
		}
		before := append([]int32(nil), rows...)

		mask := make(map[int32]bool)
		for _, r := range rows[begin : begin+n] {
			mask[r] = rng.Float64() < 0.5
		}

		left := Partition(rows, begin, n, func(r int32) bool { return mask[r] })

		wantLeft := 0
		for _, r := range before[begin : begin+n] {
			if mask[r] {
				wantLeft++
			}
		}
		require.Equal(t, wantLeft, left)

		// outside the range nothing moves
		assert.Equal(t, before[:begin], rows[:begin])
		assert.Equal(t, before[begin+n:], rows[begin+n:])

		// left rows first, right rows after
		for i := begin; i < begin+left; i++ {
			assert.True(t, mask[rows[i]], "trial %d index %d", trial, i)
		}
		for i := begin + left; i < begin+n; i++ {
			assert.False(t, mask[rows[i]], "trial %d index %d", trial, i)
		}

		// same multiset
		gotSeg := append([]int32(nil), rows[begin:begin+n]...)
		wantSeg := append([]int32(nil), before[begin:begin+n]...)
		sort.Slice(gotSeg, func(i, j int) bool { return gotSeg[i] < gotSeg[j] })
		sort.Slice(wantSeg, func(i, j int) bool { return wantSeg[i] < wantSeg[j] })
		assert.Equal(t, wantSeg, gotSeg)
	}
}

func TestPartitionEdges(t *testing.T) {
	rows := []int32{4, 3, 2, 1}

	left := Partition(rows, 0, 4, func(int32) bool { return true })
	assert.Equal(t, 4, left)
	assert.Equal(t, []int32{4, 3, 2, 1}, rows) // already in place

	left = Partition(rows, 0, 4, func(int32) bool { return false })
	assert.Equal(t, 0, left)
	assert.Equal(t, []int32{4, 3, 2, 1}, rows)

	left = Partition(rows, 1, 0, func(int32) bool { return true })
	assert.Equal(t, 0, left)
}
