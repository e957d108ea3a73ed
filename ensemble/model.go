// Package ensemble defines the trained oblivious-tree model, the document
// pool it was trained on, and the collaborators shared by every per-tree
// computation: feature binarization, leaf index building and loss
// derivative evaluation.
package ensemble

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/treestat/treestat/pkg/errors"
)

// Loss identifies the objective the ensemble was trained with.
type Loss string

const (
	LossRMSE         Loss = "RMSE"
	LossLogloss      Loss = "Logloss"
	LossCrossEntropy Loss = "CrossEntropy"
	LossQuantile     Loss = "Quantile"
	LossMAE          Loss = "MAE"
)

// LeafEstimationMethod selects how leaf values were fitted during training.
type LeafEstimationMethod string

const (
	// EstimationGradient fits leaves with a first-order loss approximation.
	EstimationGradient LeafEstimationMethod = "Gradient"
	// EstimationNewton fits leaves with a second-order loss approximation.
	EstimationNewton LeafEstimationMethod = "Newton"
)

// Split is one binary split condition: a document goes right when its
// value for Feature exceeds Border.
type Split struct {
	Feature int     `json:"feature"`
	Border  float64 `json:"border"`
}

// Tree is one oblivious tree: a single split per depth level, referenced
// by index into the model-level split pool. Leaf count is 2^depth.
type Tree struct {
	SplitIndices []int `json:"split_indices"`
}

// Depth returns the number of split levels.
func (t *Tree) Depth() int {
	return len(t.SplitIndices)
}

// LeafCount returns the number of leaves, 2^depth.
func (t *Tree) LeafCount() int {
	return 1 << t.Depth()
}

// Model is a trained additive ensemble of oblivious trees. It is read-only
// for the lifetime of any computation that consumes it.
type Model struct {
	Splits      []Split           `json:"splits"`
	Trees       []Tree            `json:"trees"`
	NumFeatures int               `json:"num_features"`
	Info        map[string]string `json:"info"`
}

// TreeCount returns the number of trees in the ensemble.
func (m *Model) TreeCount() int {
	return len(m.Trees)
}

// Validate checks the structural integrity of the model: split features
// inside the feature range and tree split indices inside the split pool.
func (m *Model) Validate() error {
	if m.NumFeatures <= 0 {
		return errors.NewConfigurationError("num_features", "must be positive", m.NumFeatures)
	}
	for i, s := range m.Splits {
		if s.Feature < 0 || s.Feature >= m.NumFeatures {
			return errors.Newf("treestat: split %d references feature %d outside [0, %d)", i, s.Feature, m.NumFeatures)
		}
	}
	for treeID := range m.Trees {
		for _, splitIdx := range m.Trees[treeID].SplitIndices {
			if splitIdx < 0 || splitIdx >= len(m.Splits) {
				return errors.Newf("treestat: tree %d references split %d outside [0, %d)", treeID, splitIdx, len(m.Splits))
			}
		}
	}
	return nil
}

// Config is the parsed and validated training configuration bundle.
type Config struct {
	Loss                     Loss
	QuantileAlpha            float64
	Method                   LeafEstimationMethod
	LeafEstimationIterations int
	LearningRate             float64
	L2LeafReg                float64
}

// paramsDocument mirrors the layout of the params JSON stored in the model
// info. Pointer fields distinguish absent hyperparameters from zero values.
type paramsDocument struct {
	LossFunction struct {
		Type string `json:"type"`
	} `json:"loss_function"`
	TreeLearnerOptions struct {
		LeafEstimationMethod     string   `json:"leaf_estimation_method"`
		LeafEstimationIterations *int     `json:"leaf_estimation_iterations"`
		L2LeafReg                *float64 `json:"l2_leaf_reg"`
	} `json:"tree_learner_options"`
	BoostingOptions struct {
		LearningRate *float64 `json:"learning_rate"`
	} `json:"boosting_options"`
}

// Config parses the params JSON attached to the model and validates every
// hyperparameter the statistics evaluator depends on. All failures are
// ConfigurationError.
func (m *Model) Config() (Config, error) {
	raw, ok := m.Info["params"]
	if !ok {
		return Config{}, errors.NewConfigurationError("params", "missing entry in model info", nil)
	}
	var doc paramsDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Config{}, errors.NewConfigurationError("params", "unparseable params JSON", err.Error())
	}

	loss, alpha, err := parseLoss(doc.LossFunction.Type)
	if err != nil {
		return Config{}, err
	}
	method := LeafEstimationMethod(doc.TreeLearnerOptions.LeafEstimationMethod)
	switch method {
	case EstimationGradient, EstimationNewton:
	case "":
		return Config{}, errors.NewConfigurationError("leaf_estimation_method", "missing", nil)
	default:
		return Config{}, errors.NewConfigurationError("leaf_estimation_method", "unknown method", string(method))
	}
	if method == EstimationNewton && (loss == LossQuantile || loss == LossMAE) {
		return Config{}, errors.NewConfigurationError("leaf_estimation_method",
			"first-order loss has no curvature to drive Newton estimation", string(loss))
	}

	if doc.TreeLearnerOptions.LeafEstimationIterations == nil {
		return Config{}, errors.NewConfigurationError("leaf_estimation_iterations", "missing", nil)
	}
	iterations := *doc.TreeLearnerOptions.LeafEstimationIterations
	if iterations < 1 {
		return Config{}, errors.NewConfigurationError("leaf_estimation_iterations", "must be at least 1", iterations)
	}

	if doc.BoostingOptions.LearningRate == nil {
		return Config{}, errors.NewConfigurationError("learning_rate", "missing", nil)
	}
	learningRate := *doc.BoostingOptions.LearningRate
	if learningRate <= 0 {
		return Config{}, errors.NewConfigurationError("learning_rate", "must be positive", learningRate)
	}

	if doc.TreeLearnerOptions.L2LeafReg == nil {
		return Config{}, errors.NewConfigurationError("l2_leaf_reg", "missing", nil)
	}
	l2LeafReg := *doc.TreeLearnerOptions.L2LeafReg
	if l2LeafReg < 0 {
		return Config{}, errors.NewConfigurationError("l2_leaf_reg", "must be non-negative", l2LeafReg)
	}

	return Config{
		Loss:                     loss,
		QuantileAlpha:            alpha,
		Method:                   method,
		LeafEstimationIterations: iterations,
		LearningRate:             learningRate,
		L2LeafReg:                l2LeafReg,
	}, nil
}

// parseLoss resolves a loss id, including the "Quantile:alpha=0.7" form.
func parseLoss(id string) (Loss, float64, error) {
	if id == "" {
		return "", 0, errors.NewConfigurationError("loss_function", "missing", nil)
	}
	name, params, hasParams := strings.Cut(id, ":")
	alpha := 0.5
	if hasParams {
		key, value, ok := strings.Cut(params, "=")
		if !ok || key != "alpha" {
			return "", 0, errors.NewConfigurationError("loss_function", "unsupported loss parameter", params)
		}
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed <= 0 || parsed >= 1 {
			return "", 0, errors.NewConfigurationError("loss_function", "alpha must be in (0, 1)", value)
		}
		alpha = parsed
	}
	loss := Loss(name)
	switch loss {
	case LossRMSE, LossLogloss, LossCrossEntropy, LossMAE:
		if hasParams {
			return "", 0, errors.NewConfigurationError("loss_function", "loss takes no parameters", id)
		}
	case LossQuantile:
	default:
		return "", 0, errors.NewConfigurationError("loss_function", "unknown loss function", name)
	}
	return loss, alpha, nil
}
