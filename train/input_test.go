package train

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inputFromColumns(cols [][]float32) *Input {
	numRows := len(cols[0])
	numCols := len(cols)
	data := make([]float32, numRows*numCols)
	for c, col := range cols {
		copy(data[c*numRows:(c+1)*numRows], col)
	}
	return &Input{Data: data, RowMajor: false, NumRows: numRows, NumCols: numCols}
}

func TestBuildQuantilesSmallDomain(t *testing.T) {
	in := inputFromColumns([][]float32{{2, 1, 3, 2, 1, 3}})
	q := BuildQuantiles(in, 8)

	require.Equal(t, 3, q.NumBins(0))
	assert.Equal(t, float32(1), q.Threshold(0, 0))
	assert.Equal(t, float32(2), q.Threshold(0, 1))
	assert.Equal(t, float32(3), q.Threshold(0, 2))

	assert.Equal(t, 0, q.Bin(0, 0.5))
	assert.Equal(t, 0, q.Bin(0, 1))
	assert.Equal(t, 1, q.Bin(0, 1.5))
	assert.Equal(t, 1, q.Bin(0, 2))
	assert.Equal(t, 2, q.Bin(0, 3))
	assert.Equal(t, 2, q.Bin(0, 99)) // clamps to the last bin
}

func TestQuantileBinNaN(t *testing.T) {
	in := inputFromColumns([][]float32{{1, 2, 3}})
	q := BuildQuantiles(in, 4)
	assert.Equal(t, 0, q.Bin(0, float32(math.NaN())))
}

func TestBuildQuantilesEqualFrequency(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	col := make([]float32, 1000)
	for i := range col {
		col[i] = float32(rng.Float64() * 100)
	}
	in := inputFromColumns([][]float32{col})

	const maxBins = 16
	q := BuildQuantiles(in, maxBins)
	n := q.NumBins(0)
	require.Greater(t, n, 1)
	require.LessOrEqual(t, n, maxBins)

	// boundaries strictly increase and the last covers the maximum
	for b := 1; b < n; b++ {
		assert.Greater(t, q.Threshold(0, b), q.Threshold(0, b-1))
	}
	var maxVal float32
	for _, v := range col {
		if v > maxVal {
			maxVal = v
		}
	}
	assert.GreaterOrEqual(t, q.Threshold(0, n-1), maxVal)

	// every value maps to a bin whose boundary bounds it from above
	for _, v := range col[:100] {
		b := q.Bin(0, v)
		assert.LessOrEqual(t, v, q.Threshold(0, b))
		if b > 0 {
			assert.Greater(t, v, q.Threshold(0, b-1))
		}
	}
}

func TestBuildQuantilesSkipsNaN(t *testing.T) {
	nan := float32(math.NaN())
	in := inputFromColumns([][]float32{{nan, 1, nan, 2}})
	q := BuildQuantiles(in, 4)
	assert.Equal(t, 2, q.NumBins(0))
}

func TestBuildQuantilesAllMissing(t *testing.T) {
	nan := float32(math.NaN())
	in := inputFromColumns([][]float32{{nan, nan}})
	q := BuildQuantiles(in, 4)
	// degenerate single bin so the column is never split on
	assert.Equal(t, 1, q.NumBins(0))
}

func TestInputAt(t *testing.T) {
	rowMajor := &Input{Data: []float32{1, 2, 3, 4, 5, 6}, RowMajor: true, NumRows: 2, NumCols: 3}
	colMajor := &Input{Data: []float32{1, 4, 2, 5, 3, 6}, RowMajor: false, NumRows: 2, NumCols: 3}
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			assert.Equal(t, rowMajor.At(r, c), colMajor.At(r, c))
		}
	}
}
