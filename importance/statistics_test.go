package importance

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/treestat/treestat/ensemble"
	"github.com/treestat/treestat/pkg/errors"
)

func paramsJSON(loss, method string, iterations int, learningRate, l2LeafReg float64) string {
	return fmt.Sprintf(
		`{"loss_function":{"type":%q},"tree_learner_options":{"leaf_estimation_method":%q,"leaf_estimation_iterations":%d,"l2_leaf_reg":%g},"boosting_options":{"learning_rate":%g}}`,
		loss, method, iterations, l2LeafReg, learningRate,
	)
}

// depth1Model builds trees of depth 1 splitting feature 0 at the border.
func depth1Model(border float64, treeCount int, params string) *ensemble.Model {
	trees := make([]ensemble.Tree, treeCount)
	for i := range trees {
		trees[i] = ensemble.Tree{SplitIndices: []int{0}}
	}
	return &ensemble.Model{
		Splits:      []ensemble.Split{{Feature: 0, Border: border}},
		Trees:       trees,
		NumFeatures: 1,
		Info:        map[string]string{"params": params},
	}
}

func column(t *testing.T, values, labels, weights []float64) *ensemble.Pool {
	t.Helper()
	pool, err := ensemble.NewPool(mat.NewDense(len(values), 1, values), labels, weights)
	require.NoError(t, err)
	return pool
}

// One Newton step on RMSE with a correct leaf partition converges exactly:
// the reconstructed approximation matches the labels after a single tree.
func TestNewtonExactStepOnRMSE(t *testing.T) {
	model := depth1Model(2.5, 1, paramsJSON("RMSE", "Newton", 1, 1.0, 0))
	pool := column(t, []float64{1, 2, 3, 4}, []float64{1, 1, 5, 5}, nil)

	statistics, err := EvaluateTreeStatistics(model, pool)
	require.NoError(t, err)
	require.Len(t, statistics, 1)

	stats := statistics[0]
	assert.Equal(t, 2, stats.LeafCount)
	assert.Equal(t, []int{0, 0, 1, 1}, stats.LeafIndices)
	assert.Equal(t, [][]int{{0, 1}, {2, 3}}, stats.LeavesDocID)

	require.Len(t, stats.LeafValues, 1)
	// leaf 0: -(-2)/2 = 1, leaf 1: -(-10)/2 = 5, scaled by learning rate 1
	assert.InDeltaSlice(t, []float64{1, 5}, stats.LeafValues[0], 1e-12)
	assert.InDeltaSlice(t, []float64{2, 2}, stats.FormulaDenominators[0], 1e-12)

	// adding = value*der2 + der1 = value - label = 0 for every document
	assert.InDeltaSlice(t, []float64{0, 0, 0, 0}, stats.FormulaNumeratorAdding[0], 1e-12)
	// multiplier = value*der3 + der2 = 1 for every document
	assert.InDeltaSlice(t, []float64{1, 1, 1, 1}, stats.FormulaNumeratorMultiplier[0], 1e-12)
}

// The global approximation accumulates each completed tree's scaled leaf
// values, so a later tree's leaf values reflect every prior tree.
func TestApproximationCarriesAcrossTrees(t *testing.T) {
	model := depth1Model(2.5, 2, paramsJSON("RMSE", "Newton", 1, 0.5, 0))
	pool := column(t, []float64{1, 2, 3, 4}, []float64{0.5, 1.5, 2.0, 4.0}, nil)

	statistics, err := EvaluateTreeStatistics(model, pool)
	require.NoError(t, err)
	require.Len(t, statistics, 2)

	// tree 0: leaf means 1.0 and 3.0, scaled to 0.5 and 1.5
	assert.InDeltaSlice(t, []float64{0.5, 1.5}, statistics[0].LeafValues[0], 1e-12)
	// tree 1 sees approx [0.5 0.5 1.5 1.5]: residual means halve again
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, statistics[1].LeafValues[0], 1e-12)

	// Accumulation identity: rebuilding the approximation from the
	// recorded (already scaled) leaf values reproduces what tree 1 saw.
	approx := make([]float64, pool.DocCount())
	for _, values := range statistics[0].LeafValues {
		for docID, leaf := range statistics[0].LeafIndices {
			approx[docID] += values[leaf]
		}
	}
	for leafID, docs := range statistics[1].LeavesDocID {
		var numerator, denominator float64
		for _, docID := range docs {
			numerator += approx[docID] - pool.Labels[docID]
			denominator++
		}
		expected := -numerator / denominator * 0.5
		assert.InDelta(t, expected, statistics[1].LeafValues[0][leafID], 1e-12, "leaf %d", leafID)
	}
}

func TestRecordShapesAndPartition(t *testing.T) {
	model := &ensemble.Model{
		Splits: []ensemble.Split{
			{Feature: 0, Border: 0.5},
			{Feature: 1, Border: 0.5},
		},
		Trees: []ensemble.Tree{
			{SplitIndices: []int{0, 1}},
			{SplitIndices: []int{1}},
		},
		NumFeatures: 2,
		Info:        map[string]string{"params": paramsJSON("Logloss", "Newton", 3, 0.1, 1.0)},
	}
	x := mat.NewDense(6, 2, []float64{
		0, 0,
		1, 0,
		0, 1,
		1, 1,
		1, 0,
		0, 1,
	})
	pool, err := ensemble.NewPool(x, []float64{0, 1, 0, 1, 1, 0}, nil)
	require.NoError(t, err)

	statistics, err := EvaluateTreeStatistics(model, pool)
	require.NoError(t, err)
	require.Len(t, statistics, 2)

	docCount := pool.DocCount()
	for treeID, stats := range statistics {
		assert.Equal(t, model.Trees[treeID].LeafCount(), stats.LeafCount)
		assert.Len(t, stats.LeafIndices, docCount)
		for _, index := range stats.LeafIndices {
			assert.GreaterOrEqual(t, index, 0)
			assert.Less(t, index, stats.LeafCount)
		}

		// LeavesDocID partitions the documents: every doc exactly once,
		// ascending within each leaf.
		seen := make(map[int]bool)
		for leafID, docs := range stats.LeavesDocID {
			for i, docID := range docs {
				assert.False(t, seen[docID], "doc %d in more than one leaf", docID)
				seen[docID] = true
				assert.Equal(t, leafID, stats.LeafIndices[docID])
				if i > 0 {
					assert.Less(t, docs[i-1], docID, "doc ids must ascend within a leaf")
				}
			}
		}
		assert.Len(t, seen, docCount)

		require.Len(t, stats.LeafValues, 3)
		for it := 0; it < 3; it++ {
			assert.Len(t, stats.LeafValues[it], stats.LeafCount)
			assert.Len(t, stats.FormulaDenominators[it], stats.LeafCount)
			assert.Len(t, stats.FormulaNumeratorAdding[it], docCount)
			assert.Len(t, stats.FormulaNumeratorMultiplier[it], docCount)
		}
	}
}

// An all-ones weight vector must be indistinguishable from an absent one.
func TestWeightEquivalence(t *testing.T) {
	for _, method := range []string{"Gradient", "Newton"} {
		t.Run(method, func(t *testing.T) {
			params := paramsJSON("Logloss", method, 2, 0.3, 2.0)
			values := []float64{1, 2, 3, 4, 5}
			labels := []float64{0, 1, 0, 1, 1}

			unweighted, err := EvaluateTreeStatistics(
				depth1Model(2.5, 2, params), column(t, values, labels, nil))
			require.NoError(t, err)

			ones, err := EvaluateTreeStatistics(
				depth1Model(2.5, 2, params), column(t, values, labels, []float64{1, 1, 1, 1, 1}))
			require.NoError(t, err)

			assert.Equal(t, unweighted, ones)
		})
	}
}

// With a constant second derivative and no regularization, Newton's leaf
// denominators degenerate to Gradient's document counts.
func TestNewtonMatchesGradientDenominatorsOnConstantCurvature(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	labels := []float64{0.5, 1.0, 2.0, 3.5}

	gradient, err := EvaluateTreeStatistics(
		depth1Model(2.5, 1, paramsJSON("RMSE", "Gradient", 2, 0.1, 0)),
		column(t, values, labels, nil))
	require.NoError(t, err)

	newton, err := EvaluateTreeStatistics(
		depth1Model(2.5, 1, paramsJSON("RMSE", "Newton", 2, 0.1, 0)),
		column(t, values, labels, nil))
	require.NoError(t, err)

	for it := range gradient[0].FormulaDenominators {
		assert.Equal(t, gradient[0].FormulaDenominators[it], newton[0].FormulaDenominators[it])
	}
}

// An empty leaf under l2_leaf_reg = 0 is 0/0 and resolves to leaf value 0.
func TestEmptyLeafGetsZeroValue(t *testing.T) {
	// Border above every feature value: all documents land in leaf 0.
	model := depth1Model(100, 1, paramsJSON("RMSE", "Newton", 1, 1.0, 0))
	pool := column(t, []float64{1, 2, 3}, []float64{2, 2, 2}, nil)

	statistics, err := EvaluateTreeStatistics(model, pool)
	require.NoError(t, err)
	require.Len(t, statistics, 1)

	assert.Empty(t, statistics[0].LeavesDocID[1])
	assert.Equal(t, 0.0, statistics[0].LeafValues[0][1])
	assert.Equal(t, 0.0, statistics[0].FormulaDenominators[0][1])
	assert.InDelta(t, 2.0, statistics[0].LeafValues[0][0], 1e-12)
}

// A zero denominator with a surviving gradient is a hard error, never NaN.
func TestZeroDenominatorWithGradientFails(t *testing.T) {
	model := depth1Model(100, 1, paramsJSON("RMSE", "Gradient", 1, 1.0, 0))
	// Weights cancel: leaf weight sum is 0 while the gradient sum is not.
	pool := column(t, []float64{1, 2}, []float64{1, 2}, []float64{1, -1})

	_, err := EvaluateTreeStatistics(model, pool)
	require.Error(t, err)
	var degErr *errors.NumericDegeneracyError
	require.True(t, errors.As(err, &degErr), "expected NumericDegeneracyError, got %v", err)
	assert.Equal(t, 0, degErr.Tree)
	assert.Equal(t, 0, degErr.Leaf)
}

func TestPreconditionFailures(t *testing.T) {
	t.Run("missing params", func(t *testing.T) {
		model := depth1Model(2.5, 1, "")
		model.Info = map[string]string{}
		_, err := EvaluateTreeStatistics(model, column(t, []float64{1}, []float64{1}, nil))
		var cfgErr *errors.ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
	})

	t.Run("first-order loss under newton", func(t *testing.T) {
		model := depth1Model(2.5, 1, paramsJSON("Quantile", "Newton", 1, 0.1, 0))
		_, err := EvaluateTreeStatistics(model, column(t, []float64{1}, []float64{1}, nil))
		var cfgErr *errors.ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
	})

	t.Run("feature dimension mismatch", func(t *testing.T) {
		model := depth1Model(2.5, 1, paramsJSON("RMSE", "Newton", 1, 0.1, 0))
		model.NumFeatures = 2
		model.Splits = []ensemble.Split{{Feature: 1, Border: 2.5}}
		_, err := EvaluateTreeStatistics(model, column(t, []float64{1}, []float64{1}, nil))
		var dimErr *errors.DimensionError
		require.True(t, errors.As(err, &dimErr))
	})
}

// Weighted documents shift both numerators and the Gradient denominator.
func TestWeightedStatistics(t *testing.T) {
	model := depth1Model(2.5, 1, paramsJSON("RMSE", "Gradient", 1, 1.0, 0))
	pool := column(t, []float64{1, 2, 3, 4}, []float64{1, 1, 5, 5}, []float64{2, 2, 1, 1})

	statistics, err := EvaluateTreeStatistics(model, pool)
	require.NoError(t, err)

	stats := statistics[0]
	// leaf 0: num = 2*(-1) + 2*(-1) = -4, den = 4 -> value 1
	// leaf 1: num = -5 + -5 = -10, den = 2 -> value 5
	assert.InDeltaSlice(t, []float64{4, 2}, stats.FormulaDenominators[0], 1e-12)
	assert.InDeltaSlice(t, []float64{1, 5}, stats.LeafValues[0], 1e-12)
	// multiplier = weight * der2
	assert.InDeltaSlice(t, []float64{2, 2, 1, 1}, stats.FormulaNumeratorMultiplier[0], 1e-12)
}

// Gradient and Newton differ in the denominator under non-constant
// curvature: Logloss with spread-out approximations.
func TestNewtonUsesCurvatureDenominator(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	labels := []float64{0, 1, 1, 1}

	gradient, err := EvaluateTreeStatistics(
		depth1Model(2.5, 1, paramsJSON("Logloss", "Gradient", 1, 0.1, 0)),
		column(t, values, labels, nil))
	require.NoError(t, err)

	newton, err := EvaluateTreeStatistics(
		depth1Model(2.5, 1, paramsJSON("Logloss", "Newton", 1, 0.1, 0)),
		column(t, values, labels, nil))
	require.NoError(t, err)

	// Gradient counts documents; Newton sums p(1-p) = 0.25 at approx 0.
	assert.InDeltaSlice(t, []float64{2, 2}, gradient[0].FormulaDenominators[0], 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, newton[0].FormulaDenominators[0], 1e-12)
}
