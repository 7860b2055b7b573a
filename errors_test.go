package matdb

import (
	"errors"
	"strings"
	"testing"
)

func TestEvaluationErrorMessage(t *testing.T) {
	cause := errors.New("boom")
	err := &EvaluationError{Engine: "expr", Expr: "density.x", Material: "copper", Err: cause}

	msg := err.Error()
	if !strings.Contains(msg, "expr evaluator") || !strings.Contains(msg, `expr="density.x"`) || !strings.Contains(msg, "material=copper") {
		t.Fatalf("unexpected message: %s", msg)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected Unwrap to expose the cause")
	}

	empty := &EvaluationError{Engine: "cel", Err: cause}
	if !strings.Contains(empty.Error(), "expr=<empty>") {
		t.Fatalf("expected empty expression marker, got %s", empty.Error())
	}
}

func TestWrapEvaluationErrorFillsMissingFields(t *testing.T) {
	cause := errors.New("boom")

	wrapped := wrapEvaluationError("expr", "1 + 1", "copper", cause)
	var evalErr *EvaluationError
	if !errors.As(wrapped, &evalErr) {
		t.Fatalf("expected EvaluationError, got %T", wrapped)
	}
	if evalErr.Engine != "expr" || evalErr.Expr != "1 + 1" || evalErr.Material != "copper" {
		t.Fatalf("expected populated fields, got %+v", evalErr)
	}

	partial := &EvaluationError{Expr: "existing", Err: cause}
	rewrapped := wrapEvaluationError("cel", "ignored", "copper", partial)
	if !errors.As(rewrapped, &evalErr) {
		t.Fatalf("expected EvaluationError, got %T", rewrapped)
	}
	if evalErr.Engine != "cel" || evalErr.Expr != "existing" || evalErr.Material != "copper" {
		t.Fatalf("expected only empty fields filled, got %+v", evalErr)
	}

	if wrapEvaluationError("expr", "x", "copper", nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
}

func TestWrapEvaluatorErrorSkipsPrefixedErrors(t *testing.T) {
	already := errors.New("matdb: evaluator not configured")
	if got := wrapEvaluatorError("expr", already); got != already {
		t.Fatalf("expected prefixed error passthrough, got %v", got)
	}

	cause := errors.New("boom")
	got := wrapEvaluatorError("expr", cause)
	if !errors.Is(got, cause) {
		t.Fatalf("expected wrapped cause, got %v", got)
	}
	if !strings.HasPrefix(got.Error(), "matdb: expr evaluator:") {
		t.Fatalf("expected package prefix, got %s", got.Error())
	}
}
