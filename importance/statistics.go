// Package importance replays the leaf-value-fitting procedure of a trained
// oblivious-tree ensemble over its training pool, producing the per-tree
// statistics a document-importance estimator needs: reconstructed leaf
// values per refinement iteration together with per-document sensitivity
// terms the original training pass discarded.
package importance

import (
	"gonum.org/v1/gonum/floats"

	"github.com/treestat/treestat/core/parallel"
	"github.com/treestat/treestat/ensemble"
	"github.com/treestat/treestat/pkg/errors"
	"github.com/treestat/treestat/pkg/log"
)

// docThreshold is the document count below which per-document vector
// updates run sequentially.
const docThreshold = 1024

// TreeStatistics holds everything reconstructed for one tree. The outer
// dimension of the per-iteration fields is the leaf estimation iteration.
// FormulaNumeratorAdding and FormulaNumeratorMultiplier are sensitivity
// terms consumed downstream; their shapes and formulas are a fixed
// contract and are not reinterpreted here. Records are immutable once
// returned.
type TreeStatistics struct {
	LeafCount   int     `json:"leaf_count"`
	LeafIndices []int   `json:"leaf_indices"`
	LeavesDocID [][]int `json:"leaves_doc_id"`

	LeafValues                 [][]float64 `json:"leaf_values"`
	FormulaDenominators        [][]float64 `json:"formula_denominators"`
	FormulaNumeratorAdding     [][]float64 `json:"formula_numerator_adding"`
	FormulaNumeratorMultiplier [][]float64 `json:"formula_numerator_multiplier"`
}

// treeContext carries the per-tree, per-iteration state the variant
// formulas read. It is rebuilt for every tree and threaded through calls
// explicitly, keeping the evaluation reentrant.
type treeContext struct {
	docCount    int
	leafCount   int
	leafIndices []int
	weights     []float64

	der1, der2, der3 []float64

	// leafValues holds the current iteration's unscaled values; set after
	// the numerator/denominator step, read by the formula vectors.
	leafValues []float64
}

func (c *treeContext) weighted() bool {
	return len(c.weights) != 0
}

// leafEstimator supplies the four formulas that distinguish the Gradient
// and Newton leaf estimation variants. The implementation is selected once
// from the model configuration, never re-dispatched per document.
type leafEstimator interface {
	LeafNumerators(c *treeContext) []float64
	LeafDenominators(c *treeContext, l2LeafReg float64) []float64
	FormulaNumeratorAdding(c *treeContext) []float64
	FormulaNumeratorMultiplier(c *treeContext) []float64
}

func newLeafEstimator(method ensemble.LeafEstimationMethod) (leafEstimator, error) {
	switch method {
	case ensemble.EstimationGradient:
		return gradientEstimator{}, nil
	case ensemble.EstimationNewton:
		return newtonEstimator{}, nil
	default:
		return nil, errors.NewConfigurationError("leaf_estimation_method", "unknown method", string(method))
	}
}

// EvaluateTreeStatistics replays leaf value fitting for every tree of the
// model over the pool, in ensemble order, and returns one statistics
// record per tree.
//
// The global approximation starts at zero and accumulates each completed
// tree's learning-rate-scaled leaf values, so every tree's derivatives are
// evaluated at exactly the approximation the original training pass saw.
// Trees are therefore processed strictly sequentially; only the
// per-document vector fills inside one tree fan out, over fixed chunk
// boundaries, keeping results reproducible.
//
// A leaf whose denominator is exactly zero gets value zero when its
// numerator is also zero (an empty leaf under l2_leaf_reg = 0); a zero
// denominator with documents still pushing a gradient is reported as
// NumericDegeneracyError rather than letting NaN propagate.
func EvaluateTreeStatistics(model *ensemble.Model, pool *ensemble.Pool) ([]TreeStatistics, error) {
	cfg, err := model.Config()
	if err != nil {
		return nil, err
	}
	estimator, err := newLeafEstimator(cfg.Method)
	if err != nil {
		return nil, err
	}
	binarized, err := ensemble.Binarize(model, pool)
	if err != nil {
		return nil, err
	}

	docCount := pool.DocCount()
	logger := log.GetLoggerWithName("importance.evaluator")
	logger.Info("evaluating tree statistics",
		"trees", model.TreeCount(),
		"documents", docCount,
		"loss", string(cfg.Loss),
		"method", string(cfg.Method),
		"iterations", cfg.LeafEstimationIterations,
	)

	approxes := make([]float64, docCount)
	statistics := make([]TreeStatistics, 0, model.TreeCount())

	for treeID := 0; treeID < model.TreeCount(); treeID++ {
		tree := &model.Trees[treeID]
		leafCount := tree.LeafCount()
		leafIndices := ensemble.BuildLeafIndices(model, binarized, treeID)

		// Inverse mapping; doc ids stay ascending within each leaf.
		leavesDocID := make([][]int, leafCount)
		for docID, leaf := range leafIndices {
			leavesDocID[leaf] = append(leavesDocID[leaf], docID)
		}

		ctx := &treeContext{
			docCount:    docCount,
			leafCount:   leafCount,
			leafIndices: leafIndices,
			weights:     pool.Weights,
		}

		leafValues := make([][]float64, cfg.LeafEstimationIterations)
		denominators := make([][]float64, cfg.LeafEstimationIterations)
		numeratorAdding := make([][]float64, cfg.LeafEstimationIterations)
		numeratorMultiplier := make([][]float64, cfg.LeafEstimationIterations)

		localApproxes := append([]float64(nil), approxes...)
		for it := 0; it < cfg.LeafEstimationIterations; it++ {
			ctx.der1, ctx.der2, ctx.der3, err = ensemble.EvaluateDerivatives(cfg, localApproxes, pool)
			if err != nil {
				return nil, errors.Wrapf(err, "tree %d iteration %d", treeID, it)
			}

			nums := estimator.LeafNumerators(ctx)
			dens := estimator.LeafDenominators(ctx, cfg.L2LeafReg)
			values := make([]float64, leafCount)
			for leafID := 0; leafID < leafCount; leafID++ {
				if dens[leafID] == 0 {
					if nums[leafID] == 0 {
						continue
					}
					return nil, errors.NewNumericDegeneracyError(treeID, it, leafID, nums[leafID])
				}
				values[leafID] = -nums[leafID] / dens[leafID]
			}
			ctx.leafValues = values

			numeratorAdding[it] = estimator.FormulaNumeratorAdding(ctx)
			numeratorMultiplier[it] = estimator.FormulaNumeratorMultiplier(ctx)
			denominators[it] = dens
			leafValues[it] = values

			parallel.ForWithThreshold(docCount, docThreshold, func(start, end int) {
				for docID := start; docID < end; docID++ {
					localApproxes[docID] += values[leafIndices[docID]]
				}
			})
		}

		// Learning rate is applied once per tree, after the refinement
		// loop, and only then folded into the global approximation.
		for _, values := range leafValues {
			floats.Scale(cfg.LearningRate, values)
			parallel.ForWithThreshold(docCount, docThreshold, func(start, end int) {
				for docID := start; docID < end; docID++ {
					approxes[docID] += values[leafIndices[docID]]
				}
			})
		}

		statistics = append(statistics, TreeStatistics{
			LeafCount:                  leafCount,
			LeafIndices:                leafIndices,
			LeavesDocID:                leavesDocID,
			LeafValues:                 leafValues,
			FormulaDenominators:        denominators,
			FormulaNumeratorAdding:     numeratorAdding,
			FormulaNumeratorMultiplier: numeratorMultiplier,
		})
		logger.Debug("tree processed", "tree", treeID, "leaves", leafCount)
	}

	logger.Info("tree statistics ready", "trees", len(statistics))
	return statistics, nil
}
