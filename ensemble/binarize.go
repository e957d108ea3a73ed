package ensemble

import (
	"github.com/treestat/treestat/core/parallel"
	"github.com/treestat/treestat/pkg/errors"
)

// binarizeThreshold is the document count below which binarization runs
// sequentially.
const binarizeThreshold = 256

// BinarizedFeatures is the per-document, per-split binary matrix produced
// by Binarize. It is computed once per model/pool pair and shared
// read-only by every tree.
type BinarizedFeatures struct {
	docCount   int
	splitCount int
	bits       []uint8
}

// At returns 1 when the document passes the split condition (feature value
// strictly above the border), 0 otherwise.
func (b *BinarizedFeatures) At(docID, splitID int) uint8 {
	return b.bits[docID*b.splitCount+splitID]
}

// DocCount returns the number of documents in the matrix.
func (b *BinarizedFeatures) DocCount() int {
	return b.docCount
}

// SplitCount returns the number of split conditions in the matrix.
func (b *BinarizedFeatures) SplitCount() int {
	return b.splitCount
}

// Binarize evaluates every model split condition against every document.
// The pool's feature count must match the model's.
func Binarize(model *Model, pool *Pool) (*BinarizedFeatures, error) {
	if pool.FeatureCount() != model.NumFeatures {
		return nil, errors.NewDimensionError("Binarize", model.NumFeatures, pool.FeatureCount(), 1)
	}

	docCount := pool.DocCount()
	splitCount := len(model.Splits)
	bits := make([]uint8, docCount*splitCount)
	parallel.ForWithThreshold(docCount, binarizeThreshold, func(start, end int) {
		for docID := start; docID < end; docID++ {
			row := bits[docID*splitCount : (docID+1)*splitCount]
			for splitID, split := range model.Splits {
				if pool.X.At(docID, split.Feature) > split.Border {
					row[splitID] = 1
				}
			}
		}
	})
	return &BinarizedFeatures{docCount: docCount, splitCount: splitCount, bits: bits}, nil
}
