package importance

import (
	"github.com/treestat/treestat/core/parallel"
)

// gradientEstimator fits leaves with a first-order loss approximation: the
// denominator is the leaf's total document weight, independent of
// curvature.
type gradientEstimator struct{}

// weightedGradientSums is the leaf numerator shared by both variants:
// the weighted sum of first derivatives over each leaf's documents,
// accumulated in ascending document order.
func weightedGradientSums(c *treeContext) []float64 {
	numerators := make([]float64, c.leafCount)
	if c.weighted() {
		for docID, leaf := range c.leafIndices {
			numerators[leaf] += c.weights[docID] * c.der1[docID]
		}
	} else {
		for docID, leaf := range c.leafIndices {
			numerators[leaf] += c.der1[docID]
		}
	}
	return numerators
}

func (gradientEstimator) LeafNumerators(c *treeContext) []float64 {
	return weightedGradientSums(c)
}

func (gradientEstimator) LeafDenominators(c *treeContext, l2LeafReg float64) []float64 {
	denominators := make([]float64, c.leafCount)
	if c.weighted() {
		for docID, leaf := range c.leafIndices {
			denominators[leaf] += c.weights[docID]
		}
	} else {
		for _, leaf := range c.leafIndices {
			denominators[leaf]++
		}
	}
	for leafID := range denominators {
		denominators[leafID] += l2LeafReg
	}
	return denominators
}

func (gradientEstimator) FormulaNumeratorAdding(c *treeContext) []float64 {
	adding := make([]float64, c.docCount)
	parallel.ForWithThreshold(c.docCount, docThreshold, func(start, end int) {
		for docID := start; docID < end; docID++ {
			adding[docID] = c.leafValues[c.leafIndices[docID]] + c.der1[docID]
		}
	})
	return adding
}

func (gradientEstimator) FormulaNumeratorMultiplier(c *treeContext) []float64 {
	multiplier := make([]float64, c.docCount)
	parallel.ForWithThreshold(c.docCount, docThreshold, func(start, end int) {
		for docID := start; docID < end; docID++ {
			if c.weighted() {
				multiplier[docID] = c.weights[docID] * c.der2[docID]
			} else {
				multiplier[docID] = c.der2[docID]
			}
		}
	})
	return multiplier
}
