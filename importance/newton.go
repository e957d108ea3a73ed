package importance

import (
	"github.com/treestat/treestat/core/parallel"
)

// newtonEstimator fits leaves with a second-order loss approximation: the
// denominator is the leaf's weighted curvature sum, and the sensitivity
// vectors pick up second- and third-derivative terms.
type newtonEstimator struct{}

func (newtonEstimator) LeafNumerators(c *treeContext) []float64 {
	return weightedGradientSums(c)
}

func (newtonEstimator) LeafDenominators(c *treeContext, l2LeafReg float64) []float64 {
	denominators := make([]float64, c.leafCount)
	if c.weighted() {
		for docID, leaf := range c.leafIndices {
			denominators[leaf] += c.weights[docID] * c.der2[docID]
		}
	} else {
		for docID, leaf := range c.leafIndices {
			denominators[leaf] += c.der2[docID]
		}
	}
	for leafID := range denominators {
		denominators[leafID] += l2LeafReg
	}
	return denominators
}

func (newtonEstimator) FormulaNumeratorAdding(c *treeContext) []float64 {
	adding := make([]float64, c.docCount)
	parallel.ForWithThreshold(c.docCount, docThreshold, func(start, end int) {
		for docID := start; docID < end; docID++ {
			adding[docID] = c.leafValues[c.leafIndices[docID]]*c.der2[docID] + c.der1[docID]
		}
	})
	return adding
}

func (newtonEstimator) FormulaNumeratorMultiplier(c *treeContext) []float64 {
	multiplier := make([]float64, c.docCount)
	parallel.ForWithThreshold(c.docCount, docThreshold, func(start, end int) {
		for docID := start; docID < end; docID++ {
			term := c.leafValues[c.leafIndices[docID]]*c.der3[docID] + c.der2[docID]
			if c.weighted() {
				term *= c.weights[docID]
			}
			multiplier[docID] = term
		}
	})
	return multiplier
}
