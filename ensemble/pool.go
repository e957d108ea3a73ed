package ensemble

import (
	"gonum.org/v1/gonum/mat"

	"github.com/treestat/treestat/pkg/errors"
)

// Pool is the ordered document collection the ensemble was trained on:
// a dense feature matrix (documents by features), one label per document
// and optional per-document weights. An empty weight slice means every
// document has weight 1. The pool is immutable during evaluation.
type Pool struct {
	X       *mat.Dense
	Labels  []float64
	Weights []float64
}

// NewPool validates label and weight lengths against the feature matrix.
func NewPool(x *mat.Dense, labels, weights []float64) (*Pool, error) {
	rows, _ := x.Dims()
	if len(labels) != rows {
		return nil, errors.NewDimensionError("NewPool", rows, len(labels), 0)
	}
	if len(weights) != 0 && len(weights) != rows {
		return nil, errors.NewDimensionError("NewPool", rows, len(weights), 0)
	}
	return &Pool{X: x, Labels: labels, Weights: weights}, nil
}

// DocCount returns the number of documents.
func (p *Pool) DocCount() int {
	rows, _ := p.X.Dims()
	return rows
}

// FeatureCount returns the number of features per document.
func (p *Pool) FeatureCount() int {
	_, cols := p.X.Dims()
	return cols
}

// Weight returns the weight of a document, defaulting to 1 when the pool
// carries no weight vector.
func (p *Pool) Weight(docID int) float64 {
	if len(p.Weights) == 0 {
		return 1
	}
	return p.Weights[docID]
}
