package train

import (
	"io"
	"math"
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/forestml/grove/fil"
	groveerrors "github.com/forestml/grove/pkg/errors"
	"github.com/forestml/grove/pkg/log"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// twoBlobs builds a linearly separable binary dataset: class 0 around
// the origin, class 1 around (4, 4).
func twoBlobs(rng *rand.Rand, n int) (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		cls := i % 2
		cx := float64(cls) * 4
		X.Set(i, 0, cx+rng.NormFloat64()*0.5)
		X.Set(i, 1, cx+rng.NormFloat64()*0.5)
		y.Set(i, 0, float64(cls))
	}
	return X, y
}

func TestBuilderBinaryClassification(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	X, y := twoBlobs(rng, 200)

	b, err := NewBuilder(Params{NumTrees: 10, MaxDepth: 6, Seed: 1})
	require.NoError(t, err)
	require.NoError(t, b.Fit(X, y))

	model, err := b.Model()
	require.NoError(t, err)
	assert.Equal(t, 10, len(model.Trees))
	assert.Equal(t, 2, model.NumClasses)
	assert.True(t, model.AveragePredictions)

	f, err := b.Forest(fil.ImportOptions{})
	require.NoError(t, err)

	pred, err := f.Predict(X, false)
	require.NoError(t, err)
	correct := 0
	for i := 0; i < 200; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	assert.GreaterOrEqual(t, correct, 196, "separable blobs should be nearly perfectly fit")

	proba, err := f.Predict(X, true)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		sum := proba.At(i, 0) + proba.At(i, 1)
		assert.InDelta(t, 1, sum, 1e-5, "row %d", i)
	}
}

func TestBuilderMulticlass(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const n = 300
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	centers := [][2]float64{{0, 0}, {5, 0}, {0, 5}}
	for i := 0; i < n; i++ {
		cls := i % 3
		X.Set(i, 0, centers[cls][0]+rng.NormFloat64()*0.4)
		X.Set(i, 1, centers[cls][1]+rng.NormFloat64()*0.4)
		y.Set(i, 0, float64(cls))
	}

	b, err := NewBuilder(Params{NumTrees: 20, MaxDepth: 8, Objective: ObjectiveEntropy, Seed: 3})
	require.NoError(t, err)
	require.NoError(t, b.Fit(X, y))

	f, err := b.Forest(fil.ImportOptions{})
	require.NoError(t, err)
	pred, err := f.Predict(X, false)
	require.NoError(t, err)
	correct := 0
	for i := 0; i < n; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	assert.GreaterOrEqual(t, correct, n-5)
}

func TestBuilderRegression(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	const n = 400
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		v := rng.Float64()
		X.Set(i, 0, v)
		if v > 0.5 {
			y.Set(i, 0, 3)
		} else {
			y.Set(i, 0, 1)
		}
	}

	b, err := NewBuilder(Params{NumTrees: 5, MaxDepth: 4, Objective: ObjectiveMSE, Seed: 2})
	require.NoError(t, err)
	require.NoError(t, b.Fit(X, y))

	model, err := b.Model()
	require.NoError(t, err)
	assert.Equal(t, 1, model.NumClasses)

	f, err := b.Forest(fil.ImportOptions{})
	require.NoError(t, err)
	pred, err := f.Predict(X, false)
	require.NoError(t, err)

	var mse float64
	for i := 0; i < n; i++ {
		d := pred.At(i, 0) - y.At(i, 0)
		mse += d * d
	}
	mse /= n
	assert.Less(t, mse, 0.05, "a step function should be fit almost exactly")
}

func TestBuilderConstantLabelsGrowsLeaf(t *testing.T) {
	X := mat.NewDense(8, 1, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	y := mat.NewDense(8, 1, []float64{1, 1, 1, 1, 1, 1, 1, 1})

	b, err := NewBuilder(Params{NumTrees: 2, MaxDepth: 5})
	require.NoError(t, err)
	require.NoError(t, b.Fit(X, y))

	model, err := b.Model()
	require.NoError(t, err)
	for _, tr := range model.Trees {
		// zero impurity decrease everywhere: the root never splits
		require.Len(t, tr.Nodes, 1)
		assert.True(t, tr.Nodes[0].IsLeaf)
	}
}

func TestBuilderRefitInfersClasses(t *testing.T) {
	// The class count inferred from one fit must not stick to the
	// builder: refitting on labels with more classes re-infers.
	b, err := NewBuilder(Params{NumTrees: 3, MaxDepth: 4})
	require.NoError(t, err)

	X2 := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	require.NoError(t, b.Fit(X2, mat.NewDense(4, 1, []float64{0, 0, 1, 1})))
	model, err := b.Model()
	require.NoError(t, err)
	assert.Equal(t, 2, model.NumClasses)

	X3 := mat.NewDense(6, 1, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, b.Fit(X3, mat.NewDense(6, 1, []float64{0, 0, 1, 1, 2, 2})))
	model, err = b.Model()
	require.NoError(t, err)
	assert.Equal(t, 3, model.NumClasses)
	for _, tr := range model.Trees {
		for _, n := range tr.Nodes {
			if n.IsLeaf {
				assert.Len(t, n.LeafVector, 3)
			}
		}
	}

	// an explicitly configured count still caps the labels
	b, err = NewBuilder(Params{NumTrees: 2, MaxDepth: 3, NumClasses: 2})
	require.NoError(t, err)
	err = b.Fit(X3, mat.NewDense(6, 1, []float64{0, 0, 1, 1, 2, 2}))
	require.Error(t, err)
	var val *groveerrors.ValidationError
	assert.ErrorAs(t, err, &val)
}

func TestBuilderNotTrained(t *testing.T) {
	b, err := NewBuilder(Params{})
	require.NoError(t, err)

	_, err = b.Model()
	require.Error(t, err)
	var nt *groveerrors.NotTrainedError
	assert.ErrorAs(t, err, &nt)

	_, err = b.Forest(fil.ImportOptions{})
	assert.ErrorAs(t, err, &nt)
}

func TestBuilderRejectsBadLabels(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{1, 2})

	b, err := NewBuilder(Params{Objective: ObjectiveGini})
	require.NoError(t, err)
	err = b.Fit(X, mat.NewDense(2, 1, []float64{0, 1.5}))
	require.Error(t, err)
	var val *groveerrors.ValidationError
	assert.ErrorAs(t, err, &val)

	err = b.Fit(X, mat.NewDense(2, 1, []float64{0, -1}))
	assert.ErrorAs(t, err, &val)
}

func TestBuilderDimensionMismatch(t *testing.T) {
	b, err := NewBuilder(Params{})
	require.NoError(t, err)
	err = b.Fit(mat.NewDense(3, 2, nil), mat.NewDense(2, 1, nil))
	require.Error(t, err)
	var dim *groveerrors.DimensionError
	assert.ErrorAs(t, err, &dim)
}

func TestBuilderDeterministicWithSeed(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	X, y := twoBlobs(rng, 120)

	run := func() *mat.Dense {
		b, err := NewBuilder(Params{NumTrees: 8, MaxDepth: 5, Bootstrap: true, Seed: 77})
		require.NoError(t, err)
		require.NoError(t, b.Fit(X, y))
		f, err := b.Forest(fil.ImportOptions{})
		require.NoError(t, err)
		out, err := f.Predict(X, true)
		require.NoError(t, err)
		return out
	}

	a := run()
	e := run()
	d, _ := a.Dims()
	for i := 0; i < d; i++ {
		assert.Equal(t, a.At(i, 0), e.At(i, 0))
		assert.Equal(t, a.At(i, 1), e.At(i, 1))
	}
}

func TestBuilderHandlesMissingValues(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	X, y := twoBlobs(rng, 200)
	// knock out 5% of one feature
	for i := 0; i < 200; i += 20 {
		X.Set(i, 1, math.NaN())
	}

	b, err := NewBuilder(Params{NumTrees: 10, MaxDepth: 6, Seed: 5})
	require.NoError(t, err)
	require.NoError(t, b.Fit(X, y))

	f, err := b.Forest(fil.ImportOptions{})
	require.NoError(t, err)
	pred, err := f.Predict(X, false)
	require.NoError(t, err)
	correct := 0
	for i := 0; i < 200; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	// feature 0 alone separates the blobs, so missing values in feature 1
	// barely hurt
	assert.GreaterOrEqual(t, correct, 190)
}
