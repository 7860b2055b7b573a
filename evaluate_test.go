package matdb

import (
	"errors"
	"sync"
	"testing"
)

var engineFactories = []struct {
	name string
	new  func(cache ProgramCache, registry *FunctionRegistry) Evaluator
}{
	{
		name: "expr",
		new: func(cache ProgramCache, registry *FunctionRegistry) Evaluator {
			opts := []ExprEvaluatorOption{}
			if cache != nil {
				opts = append(opts, ExprWithProgramCache(cache))
			}
			if registry != nil {
				opts = append(opts, ExprWithFunctionRegistry(registry))
			}
			return NewExprEvaluator(opts...)
		},
	},
	{
		name: "cel",
		new: func(cache ProgramCache, registry *FunctionRegistry) Evaluator {
			opts := []CELEvaluatorOption{}
			if cache != nil {
				opts = append(opts, CELWithProgramCache(cache))
			}
			if registry != nil {
				opts = append(opts, CELWithFunctionRegistry(registry))
			}
			return NewCELEvaluator(opts...)
		},
	},
	{
		name: "js",
		new: func(cache ProgramCache, registry *FunctionRegistry) Evaluator {
			opts := []JSEvaluatorOption{}
			if cache != nil {
				opts = append(opts, JSWithProgramCache(cache))
			}
			if registry != nil {
				opts = append(opts, JSWithFunctionRegistry(registry))
			}
			return NewJSEvaluator(opts...)
		},
	},
}

type countingCache struct {
	mu       sync.Mutex
	programs map[string]any
	hits     int
	sets     int
}

func newCountingCache() *countingCache {
	return &countingCache{programs: map[string]any{}}
}

func (c *countingCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	program, ok := c.programs[key]
	if ok {
		c.hits++
	}
	return program, ok
}

func (c *countingCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.programs[key] = value
	c.sets++
}

func asFloat(t *testing.T, value any) float64 {
	t.Helper()
	f, err := toFloat(value)
	if err != nil {
		t.Fatalf("expected numeric result, got %T (%v)", value, value)
	}
	return f
}

func TestEvaluateSnapshotAcrossEngines(t *testing.T) {
	for _, factory := range engineFactories {
		t.Run(factory.name, func(t *testing.T) {
			if factory.name == "js" && !jsEvaluatorAvailable() {
				t.Skip("js engine not compiled in")
			}
			evaluator := factory.new(nil, nil)
			record := newTestRecord(t)
			record.withEvaluator(evaluator)

			response, err := record.Evaluate("density.ashby2011.value")
			if err != nil {
				t.Fatalf("expected evaluation to succeed, got %v", err)
			}
			if got := asFloat(t, response.Value); got != 8960 {
				t.Fatalf("expected snapshot lookup to yield 8960, got %v", got)
			}
		})
	}
}

func TestEvaluateRegistryFunctionsAcrossEngines(t *testing.T) {
	for _, factory := range engineFactories {
		t.Run(factory.name, func(t *testing.T) {
			if factory.name == "js" && !jsEvaluatorAvailable() {
				t.Skip("js engine not compiled in")
			}
			evaluator := factory.new(nil, NewMaterialFunctionRegistry())
			record := newTestRecord(t)
			record.withEvaluator(evaluator)

			response, err := record.Evaluate(`call("kelvin", 20.0)`)
			if err != nil {
				t.Fatalf("expected evaluation to succeed, got %v", err)
			}
			if got := asFloat(t, response.Value); got != 293.15 {
				t.Fatalf("expected kelvin conversion, got %v", got)
			}
		})
	}
}

func TestEvaluateDefaultsToExprEngine(t *testing.T) {
	record := newTestRecord(t)

	response, err := record.Evaluate("density.ashby2011.value * 2")
	if err != nil {
		t.Fatalf("expected default evaluator, got %v", err)
	}
	if got := asFloat(t, response.Value); got != 17920 {
		t.Fatalf("expected doubled density, got %v", got)
	}
}

func TestEvaluateUsesProgramCache(t *testing.T) {
	cache := newCountingCache()
	record := newTestRecord(t)
	record.withEvaluator(NewExprEvaluator(ExprWithProgramCache(cache)))

	for i := 0; i < 3; i++ {
		if _, err := record.Evaluate("density.ashby2011.value"); err != nil {
			t.Fatalf("expected evaluation %d to succeed, got %v", i, err)
		}
	}
	if cache.sets != 1 {
		t.Fatalf("expected one compilation, got %d", cache.sets)
	}
	if cache.hits != 2 {
		t.Fatalf("expected two cache hits, got %d", cache.hits)
	}
}

func TestEvaluateWrapsEngineErrors(t *testing.T) {
	record := NewRecord("copper", WithEvaluator(NewExprEvaluator()))

	_, err := record.Evaluate("density.(")
	if err == nil {
		t.Fatalf("expected malformed expression to fail")
	}
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError, got %T (%v)", err, err)
	}
	if evalErr.Engine != "expr" {
		t.Fatalf("expected engine name on error, got %q", evalErr.Engine)
	}
	if evalErr.Material != "copper" {
		t.Fatalf("expected material label on error, got %q", evalErr.Material)
	}
}

func TestEvaluateLogsEvents(t *testing.T) {
	var events []EvaluatorLogEvent
	record := newTestRecord(t)
	record.withEvaluator(NewExprEvaluator())
	record.cfg.logger = EvaluatorLoggerFunc(func(event EvaluatorLogEvent) {
		events = append(events, event)
	})

	if _, err := record.Evaluate("density.ashby2011.value"); err != nil {
		t.Fatalf("expected evaluation to succeed, got %v", err)
	}
	_, _ = record.Evaluate("density.(")

	if len(events) != 2 {
		t.Fatalf("expected two log events, got %d", len(events))
	}
	if events[0].Engine != "expr" || events[0].Err != nil {
		t.Fatalf("expected clean first event, got %+v", events[0])
	}
	if events[1].Err == nil {
		t.Fatalf("expected error on second event")
	}
	if events[0].Material != "copper" {
		t.Fatalf("expected material label on event, got %q", events[0].Material)
	}
}

func TestEvaluateWithCustomContext(t *testing.T) {
	record := newTestRecord(t)
	record.withEvaluator(NewExprEvaluator())

	response, err := record.EvaluateWith(RuleContext{
		Args: map[string]any{"factor": 2.0},
	}, "density.ashby2011.value * args.factor")
	if err != nil {
		t.Fatalf("expected evaluation with args, got %v", err)
	}
	if got := asFloat(t, response.Value); got != 17920 {
		t.Fatalf("expected doubled density, got %v", got)
	}
}

func TestCompiledRulesAreReusable(t *testing.T) {
	registry := NewMaterialFunctionRegistry()
	for _, factory := range engineFactories {
		t.Run(factory.name, func(t *testing.T) {
			if factory.name == "js" && !jsEvaluatorAvailable() {
				t.Skip("js engine not compiled in")
			}
			evaluator := factory.new(newCountingCache(), registry)
			rule, err := evaluator.Compile(`call("scale", 2.0, 3.0)`)
			if err != nil {
				t.Fatalf("expected compile to succeed, got %v", err)
			}

			record := newTestRecord(t)
			ctx := RuleContext{Snapshot: record.Snapshot(), Material: record.ID}.withDefaults()
			for i := 0; i < 2; i++ {
				value, err := rule.Evaluate(ctx)
				if err != nil {
					t.Fatalf("expected rule run %d to succeed, got %v", i, err)
				}
				if got := asFloat(t, value); got != 6 {
					t.Fatalf("expected scaled value, got %v", got)
				}
			}
		})
	}
}

func TestFunctionRegistry(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("Double", func(args ...any) (any, error) {
		f, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		return f * 2, nil
	}); err != nil {
		t.Fatalf("expected registration, got %v", err)
	}

	if err := registry.Register("double", func(args ...any) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}

	value, err := registry.Call("DOUBLE", 3)
	if err != nil {
		t.Fatalf("expected case-insensitive call, got %v", err)
	}
	if value != 6.0 {
		t.Fatalf("expected doubled value, got %v", value)
	}

	clone := registry.Clone()
	if err := clone.Register("triple", func(args ...any) (any, error) { return nil, nil }); err != nil {
		t.Fatalf("expected clone registration, got %v", err)
	}
	if _, err := registry.Call("triple"); err == nil {
		t.Fatalf("expected clone registration not to leak into the original")
	}
}
