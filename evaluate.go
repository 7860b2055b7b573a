package matdb

import (
	"fmt"
	"time"
)

// Evaluate executes expr against the record's data snapshot using the
// configured evaluator and wraps the result.
func (r *Record) Evaluate(expr string) (Response[any], error) {
	if expr == "" {
		return Response[any]{}, fmt.Errorf("expression must not be empty")
	}
	evaluator, err := r.resolveEvaluator()
	if err != nil {
		return Response[any]{}, err
	}
	ctx := RuleContext{
		Snapshot: r.Snapshot(),
		Material: r.ID,
		Source:   r.cfg.source.clone(),
	}.withDefaults()
	return r.runEvaluation(evaluator, ctx, expr)
}

// EvaluateWith executes expr using ctx, falling back to the record's own
// snapshot when ctx.Snapshot is nil.
func (r *Record) EvaluateWith(ctx RuleContext, expr string) (Response[any], error) {
	if expr == "" {
		return Response[any]{}, fmt.Errorf("expression must not be empty")
	}
	evaluator, err := r.resolveEvaluator()
	if err != nil {
		return Response[any]{}, err
	}
	if ctx.Snapshot == nil {
		ctx.Snapshot = r.Snapshot()
	}
	if ctx.Material == "" {
		ctx.Material = r.ID
	}
	ctx = ctx.withDefaults()
	return r.runEvaluation(evaluator, ctx, expr)
}

func (r *Record) runEvaluation(evaluator Evaluator, ctx RuleContext, expr string) (Response[any], error) {
	engine := evaluatorEngineName(evaluator)
	start := time.Now()
	value, evalErr := evaluator.Evaluate(ctx, expr)
	duration := time.Since(start)
	evalErr = wrapEvaluationError(engine, expr, ctx.materialLabel(), evalErr)
	r.evaluatorLogger().LogEvaluation(EvaluatorLogEvent{
		Engine:   engine,
		Expr:     expr,
		Material: ctx.materialLabel(),
		Duration: duration,
		Err:      evalErr,
	})
	if evalErr != nil {
		return Response[any]{}, evalErr
	}
	return Response[any]{Value: value}, nil
}

func (r *Record) resolveEvaluator() (Evaluator, error) {
	evaluator := r.evaluator()
	if evaluator != nil {
		return evaluator, nil
	}
	var exprOpts []ExprEvaluatorOption
	if cache := r.programCache(); cache != nil {
		exprOpts = append(exprOpts, ExprWithProgramCache(cache))
	}
	if registry := r.functionRegistry(); registry != nil {
		exprOpts = append(exprOpts, ExprWithFunctionRegistry(registry))
	}
	defaultEvaluator := NewExprEvaluator(exprOpts...)
	if defaultEvaluator == nil {
		return nil, ErrNoEvaluator
	}
	r.withEvaluator(defaultEvaluator)
	return defaultEvaluator, nil
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	switch fmt.Sprintf("%T", e) {
	case "*matdb.exprEvaluator":
		return "expr"
	case "*matdb.celEvaluator":
		return "cel"
	case "*matdb.jsEvaluator":
		return "js"
	default:
		return "custom"
	}
}
