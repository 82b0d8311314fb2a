package envflags

import (
	"errors"
	"fmt"
	"strings"
)

// EvaluationError captures rule metadata alongside the originating error.
type EvaluationError struct {
	Engine  string
	Expr    string
	Feature string
	Err     error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("envflags: %s evaluator %s feature=%s: %v", e.Engine, describeExpression(e.Expr), describeFeature(e.Feature), e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func describeFeature(feature string) string {
	if feature == "" {
		return "unknown"
	}
	return feature
}

func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "envflags:") {
		return err
	}
	return fmt.Errorf("envflags: %s evaluator: %w", engine, err)
}

func wrapEvaluationError(engine, expr, feature string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Feature == "" {
			evalErr.Feature = feature
		}
		return evalErr
	}

	return &EvaluationError{
		Engine:  engine,
		Expr:    expr,
		Feature: feature,
		Err:     err,
	}
}
