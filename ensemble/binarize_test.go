package ensemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/treestat/treestat/pkg/errors"
)

func TestBinarize(t *testing.T) {
	model := &Model{
		Splits:      []Split{{Feature: 0, Border: 0.5}, {Feature: 1, Border: 2.0}},
		Trees:       []Tree{{SplitIndices: []int{0, 1}}},
		NumFeatures: 2,
	}
	x := mat.NewDense(3, 2, []float64{
		0.0, 3.0,
		1.0, 1.0,
		0.5, 2.0, // values equal to the border do not pass
	})
	pool, err := NewPool(x, []float64{0, 0, 0}, nil)
	require.NoError(t, err)

	binarized, err := Binarize(model, pool)
	require.NoError(t, err)
	assert.Equal(t, 3, binarized.DocCount())
	assert.Equal(t, 2, binarized.SplitCount())

	expected := [][]uint8{
		{0, 1},
		{1, 0},
		{0, 0},
	}
	for docID, row := range expected {
		for splitID, bit := range row {
			assert.Equal(t, bit, binarized.At(docID, splitID), "doc %d split %d", docID, splitID)
		}
	}
}

func TestBinarizeDimensionMismatch(t *testing.T) {
	model := &Model{
		Splits:      []Split{{Feature: 0, Border: 0.5}},
		NumFeatures: 2,
	}
	pool, err := NewPool(mat.NewDense(2, 1, []float64{0, 1}), []float64{0, 1}, nil)
	require.NoError(t, err)

	_, err = Binarize(model, pool)
	require.Error(t, err)
	var dimErr *errors.DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 2, dimErr.Expected)
	assert.Equal(t, 1, dimErr.Got)
	assert.Equal(t, 1, dimErr.Axis)
}

func TestBuildLeafIndices(t *testing.T) {
	// Depth-2 tree: bit 0 from split 0, bit 1 from split 1.
	model := &Model{
		Splits:      []Split{{Feature: 0, Border: 0.5}, {Feature: 1, Border: 0.5}},
		Trees:       []Tree{{SplitIndices: []int{0, 1}}},
		NumFeatures: 2,
	}
	x := mat.NewDense(4, 2, []float64{
		0, 0, // leaf 0
		1, 0, // leaf 1
		0, 1, // leaf 2
		1, 1, // leaf 3
	})
	pool, err := NewPool(x, make([]float64, 4), nil)
	require.NoError(t, err)
	binarized, err := Binarize(model, pool)
	require.NoError(t, err)

	indices := BuildLeafIndices(model, binarized, 0)
	assert.Equal(t, []int{0, 1, 2, 3}, indices)

	leafCount := model.Trees[0].LeafCount()
	for _, index := range indices {
		assert.GreaterOrEqual(t, index, 0)
		assert.Less(t, index, leafCount)
	}
}

func TestNewPoolValidation(t *testing.T) {
	x := mat.NewDense(2, 1, []float64{0, 1})

	_, err := NewPool(x, []float64{1}, nil)
	assert.Error(t, err, "label count must match document count")

	_, err = NewPool(x, []float64{1, 2}, []float64{1})
	assert.Error(t, err, "weight count must match document count when present")

	pool, err := NewPool(x, []float64{1, 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, pool.Weight(0), "absent weights mean weight 1")

	weighted, err := NewPool(x, []float64{1, 2}, []float64{0.5, 2})
	require.NoError(t, err)
	assert.Equal(t, 0.5, weighted.Weight(0))
}
