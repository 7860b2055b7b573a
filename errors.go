package matdb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrParameterNotFound indicates a lookup for a parameter name the
	// record does not carry.
	ErrParameterNotFound = errors.New("matdb: parameter not found")
	// ErrReferenceNotFound indicates a lookup for a reference key the record
	// does not carry.
	ErrReferenceNotFound = errors.New("matdb: reference not found")
	// ErrNoEvaluator indicates a query was attempted without a usable
	// evaluator.
	ErrNoEvaluator = errors.New("matdb: evaluator not configured")
)

// EvaluationError captures evaluator metadata alongside the originating error.
type EvaluationError struct {
	Engine   string
	Expr     string
	Material string
	Err      error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("matdb: %s evaluator %s material=%s: %v", e.Engine, describeExpression(e.Expr), e.Material, e.Err)
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

func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "matdb:") {
		return err
	}
	return fmt.Errorf("matdb: %s evaluator: %w", engine, err)
}

func wrapEvaluationError(engine, expr, material string, err error) error {
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
		if evalErr.Material == "" {
			evalErr.Material = material
		}
		return evalErr
	}

	return &EvaluationError{
		Engine:   engine,
		Expr:     expr,
		Material: material,
		Err:      err,
	}
}
