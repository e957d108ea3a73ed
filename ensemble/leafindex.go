package ensemble

import (
	"github.com/treestat/treestat/core/parallel"
)

// BuildLeafIndices assigns every document to a leaf of the given tree.
// The oblivious layout makes the leaf index a bit string: bit d is the
// document's binarized value for the tree's depth-d split, so every index
// lies in [0, 2^depth).
func BuildLeafIndices(model *Model, binarized *BinarizedFeatures, treeID int) []int {
	tree := &model.Trees[treeID]
	indices := make([]int, binarized.DocCount())
	parallel.ForWithThreshold(binarized.DocCount(), binarizeThreshold, func(start, end int) {
		for docID := start; docID < end; docID++ {
			index := 0
			for depth, splitIdx := range tree.SplitIndices {
				index |= int(binarized.At(docID, splitIdx)) << depth
			}
			indices[docID] = index
		}
	})
	return indices
}
