package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsupportedModelError(t *testing.T) {
	err := NewUnsupportedModelError("fil.Import", "model has no trees")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fil.Import")
	assert.Contains(t, err.Error(), "model has no trees")

	var unsup *UnsupportedModelError
	require.True(t, As(err, &unsup))
	assert.Equal(t, "fil.Import", unsup.Op)

	err = NewUnsupportedModelErrorf("fil.Import", "feature %d exceeds limit %d", 5000, 4096)
	require.True(t, As(err, &unsup))
	assert.Contains(t, unsup.Reason, "5000")
}

func TestDimensionError(t *testing.T) {
	err := NewDimensionError("fil.Predict", 10, 7, 1)
	var dim *DimensionError
	require.True(t, As(err, &dim))
	assert.Equal(t, 10, dim.Expected)
	assert.Equal(t, 7, dim.Got)
	assert.Contains(t, err.Error(), "features")

	err = NewDimensionError("train.Fit", 100, 99, 0)
	assert.Contains(t, err.Error(), "rows")
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("MaxBins", "need at least 2 bins", 1)
	var val *ValidationError
	require.True(t, As(err, &val))
	assert.Equal(t, "MaxBins", val.ParamName)
	assert.Contains(t, err.Error(), "MaxBins")
	assert.Contains(t, err.Error(), "got: 1")
}

func TestNotTrainedError(t *testing.T) {
	err := NewNotTrainedError("train.Builder", "Model")
	var nt *NotTrainedError
	require.True(t, As(err, &nt))
	assert.Contains(t, err.Error(), "Fit()")
}

func TestWrapKeepsType(t *testing.T) {
	base := NewValidationError("Depth", "must be non-negative", -1)
	wrapped := Wrap(base, "building forest")
	var val *ValidationError
	assert.True(t, As(wrapped, &val))
	assert.Contains(t, wrapped.Error(), "building forest")
}
