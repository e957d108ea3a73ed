// Package errors provides the typed error system used across treestat.
// Every error produced by the library carries a stack trace (via
// cockroachdb/errors) and knows how to serialize itself as a structured
// zerolog object.
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ConfigurationError reports a missing or unparseable model configuration:
// an unknown loss function or leaf estimation method, a non-numeric
// hyperparameter, or a loss/method combination the evaluator cannot run.
// It is always raised before any tree is processed.
type ConfigurationError struct {
	Param  string
	Reason string
	Value  interface{}
}

func (e *ConfigurationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("treestat: invalid model configuration '%s': %s (got: %v)", e.Param, e.Reason, e.Value)
	}
	return fmt.Sprintf("treestat: invalid model configuration '%s': %s", e.Param, e.Reason)
}

// MarshalZerologObject adds the structured configuration failure to a zerolog event.
func (e *ConfigurationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param", e.Param).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ConfigurationError")
}

// NewConfigurationError creates a ConfigurationError with a stack trace.
func NewConfigurationError(param, reason string, value interface{}) error {
	err := &ConfigurationError{Param: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// DimensionError reports a disagreement between the pool's dimensions and
// what the model expects. Axis 0 is documents, axis 1 is features.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "documents"
	}
	return fmt.Sprintf("treestat: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds the structured dimension mismatch to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("type", "DimensionError")
}

// NewDimensionError creates a DimensionError with a stack trace.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// NumericDegeneracyError reports a leaf whose value cannot be estimated:
// the leaf denominator collapsed to zero while the gradient sum did not,
// which happens under Newton estimation when the total curvature in a
// populated leaf vanishes and l2_leaf_reg is zero.
type NumericDegeneracyError struct {
	Tree      int
	Iteration int
	Leaf      int
	Numerator float64
}

func (e *NumericDegeneracyError) Error() string {
	return fmt.Sprintf("treestat: zero denominator for leaf %d (tree %d, iteration %d) with numerator %g; set l2_leaf_reg > 0 or use the Gradient estimation method",
		e.Leaf, e.Tree, e.Iteration, e.Numerator)
}

// MarshalZerologObject adds the structured degeneracy report to a zerolog event.
func (e *NumericDegeneracyError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("tree", e.Tree).
		Int("iteration", e.Iteration).
		Int("leaf", e.Leaf).
		Float64("numerator", e.Numerator).
		Str("type", "NumericDegeneracyError")
}

// NewNumericDegeneracyError creates a NumericDegeneracyError with a stack trace.
func NewNumericDegeneracyError(tree, iteration, leaf int, numerator float64) error {
	err := &NumericDegeneracyError{Tree: tree, Iteration: iteration, Leaf: leaf, Numerator: numerator}
	return errors.WithStack(err)
}

// NumericalInstabilityError reports NaN or Inf appearing in a computed
// vector, identified by the operation that produced it.
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
	Iteration int
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("treestat: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// MarshalZerologObject adds the structured instability report to a zerolog event.
func (e *NumericalInstabilityError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Operation).
		Int("iteration", e.Iteration).
		Floats64("values", e.Values).
		Str("type", "NumericalInstabilityError")
}

// NewNumericalInstabilityError creates a NumericalInstabilityError with a stack trace.
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	err := &NumericalInstabilityError{Operation: operation, Values: values, Iteration: iteration}
	return errors.WithStack(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an existing error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an existing error with a format string.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates err with a stack trace at the point of the call.
func WithStack(err error) error {
	return errors.WithStack(err)
}
