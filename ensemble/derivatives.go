package ensemble

import (
	"math"

	"github.com/treestat/treestat/core/parallel"
	"github.com/treestat/treestat/pkg/errors"
)

// derivativeThreshold is the document count below which derivative
// evaluation runs sequentially.
const derivativeThreshold = 512

// lossDerivatives supplies pointwise derivatives of a loss with respect to
// the current approximation. All orders follow the minimization
// convention: for RMSE the first derivative is approx - label.
type lossDerivatives interface {
	Der1(approx, target float64) float64
	Der2(approx, target float64) float64
	Der3(approx, target float64) float64
}

type rmseDerivatives struct{}

func (rmseDerivatives) Der1(approx, target float64) float64 { return approx - target }
func (rmseDerivatives) Der2(approx, target float64) float64 { return 1 }
func (rmseDerivatives) Der3(approx, target float64) float64 { return 0 }

// logitDerivatives covers Logloss and CrossEntropy. Logloss thresholds the
// target at 0.5 into a hard {0, 1} label; CrossEntropy keeps soft targets.
type logitDerivatives struct {
	soft bool
}

func (d logitDerivatives) target(target float64) float64 {
	if d.soft {
		return target
	}
	if target > 0.5 {
		return 1
	}
	return 0
}

func (d logitDerivatives) Der1(approx, target float64) float64 {
	return sigmoid(approx) - d.target(target)
}

func (d logitDerivatives) Der2(approx, target float64) float64 {
	p := sigmoid(approx)
	return p * (1 - p)
}

func (d logitDerivatives) Der3(approx, target float64) float64 {
	p := sigmoid(approx)
	return p * (1 - p) * (1 - 2*p)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// quantileDerivatives covers Quantile and, with alpha 0.5 and doubled
// magnitude, MAE. Both are first-order only: zero curvature everywhere the
// loss is differentiable.
type quantileDerivatives struct {
	alpha float64
	scale float64
}

func (d quantileDerivatives) Der1(approx, target float64) float64 {
	switch {
	case approx > target:
		return d.scale * (1 - d.alpha)
	case approx < target:
		return d.scale * -d.alpha
	default:
		return 0
	}
}

func (d quantileDerivatives) Der2(approx, target float64) float64 { return 0 }
func (d quantileDerivatives) Der3(approx, target float64) float64 { return 0 }

func newLossDerivatives(cfg Config) (lossDerivatives, error) {
	switch cfg.Loss {
	case LossRMSE:
		return rmseDerivatives{}, nil
	case LossLogloss:
		return logitDerivatives{soft: false}, nil
	case LossCrossEntropy:
		return logitDerivatives{soft: true}, nil
	case LossQuantile:
		return quantileDerivatives{alpha: cfg.QuantileAlpha, scale: 1}, nil
	case LossMAE:
		return quantileDerivatives{alpha: 0.5, scale: 2}, nil
	default:
		return nil, errors.NewConfigurationError("loss_function", "unknown loss function", string(cfg.Loss))
	}
}

// EvaluateDerivatives computes the first, second and third derivative of
// the configured loss at the current approximation, one value per
// document. The third derivative is only evaluated under Newton
// estimation; Gradient estimation never reads it and receives zeros.
func EvaluateDerivatives(cfg Config, approx []float64, pool *Pool) (der1, der2, der3 []float64, err error) {
	if len(approx) != pool.DocCount() {
		return nil, nil, nil, errors.NewDimensionError("EvaluateDerivatives", pool.DocCount(), len(approx), 0)
	}
	loss, err := newLossDerivatives(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	docCount := pool.DocCount()
	der1 = make([]float64, docCount)
	der2 = make([]float64, docCount)
	der3 = make([]float64, docCount)
	wantThird := cfg.Method == EstimationNewton
	parallel.ForWithThreshold(docCount, derivativeThreshold, func(start, end int) {
		for docID := start; docID < end; docID++ {
			a, t := approx[docID], pool.Labels[docID]
			der1[docID] = loss.Der1(a, t)
			der2[docID] = loss.Der2(a, t)
			if wantThird {
				der3[docID] = loss.Der3(a, t)
			}
		}
	})

	if err := errors.CheckNumericalStability("first derivatives", der1, 0); err != nil {
		return nil, nil, nil, err
	}
	return der1, der2, der3, nil
}
