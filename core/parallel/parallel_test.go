package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelizeCoversRangeOnce(t *testing.T) {
	for _, items := range []int{0, 1, 3, 100, 1001} {
		hits := make([]int32, items)
		Parallelize(items, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			assert.Equal(t, int32(1), h, "items=%d index %d", items, i)
		}
	}
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	var calls int32
	ParallelizeWithThreshold(5, 10, func(start, end int) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, 0, start)
		assert.Equal(t, 5, end)
	})
	assert.Equal(t, int32(1), calls)
}

func TestLaunchRunsEveryBlockOnce(t *testing.T) {
	for _, blocks := range []int{0, 1, 7, 512} {
		hits := make([]int32, blocks)
		Launch(blocks, func(b int) {
			atomic.AddInt32(&hits[b], 1)
		})
		for b, h := range hits {
			assert.Equal(t, int32(1), h, "blocks=%d block %d", blocks, b)
		}
	}
}
