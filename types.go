package matdb

import (
	"time"

	"github.com/goliatone/go-matdb/pkg/activity"
)

// RuleContext carries inputs needed when evaluating a query expression
// against a record snapshot.
type RuleContext struct {
	Snapshot   any
	Now        *time.Time
	Args       map[string]any
	Metadata   map[string]any
	Material   string
	Source     Source
	SourceName string
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) withDefaults() RuleContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

func (ctx RuleContext) materialLabel() string {
	if ctx.Material != "" {
		return ctx.Material
	}
	if ctx.Source.Name != "" {
		return ctx.Source.Name
	}
	if ctx.SourceName != "" {
		return ctx.SourceName
	}
	return "unknown"
}

func (ctx RuleContext) sourceBinding() map[string]any {
	if binding := sourceToBinding(ctx.Source); binding != nil {
		return binding
	}
	if ctx.SourceName == "" {
		return nil
	}
	return map[string]any{"name": ctx.SourceName}
}

// Evaluator executes query expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// Response stores a typed result produced by an evaluator.
type Response[T any] struct {
	Value T
}

// Option configures a Record at construction time.
type Option func(*recordConfig)

type recordConfig struct {
	evaluator       Evaluator
	programCache    ProgramCache
	functions       *FunctionRegistry
	logger          EvaluatorLogger
	schemaGenerator SchemaGenerator
	source          Source
	activityHooks   activity.Hooks
}

func applyOptions(opts []Option) recordConfig {
	cfg := recordConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEvaluator configures the query evaluator used by the record.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *recordConfig) {
		cfg.evaluator = e
	}
}

// WithSource configures the default source metadata applied to evaluator
// contexts.
func WithSource(source Source) Option {
	return func(cfg *recordConfig) {
		cfg.source = source.clone()
	}
}

// WithSchemaGenerator configures a custom schema generator implementation.
func WithSchemaGenerator(generator SchemaGenerator) Option {
	return func(cfg *recordConfig) {
		cfg.schemaGenerator = generator
	}
}

// WithActivityHooks attaches activity hooks to the record configuration.
// Hooks are cloned and nil entries dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *recordConfig) {
		cfg.activityHooks = normalized
	}
}

// ActivityHooks returns a cloned slice of the activity hooks configured on
// the record. The returned slice can be safely mutated by the caller.
func (r *Record) ActivityHooks() activity.Hooks {
	if r == nil {
		return nil
	}
	return cloneActivityHooks(r.cfg.activityHooks)
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.ActivityHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}

func (r *Record) evaluator() Evaluator {
	return r.cfg.evaluator
}

func (r *Record) withEvaluator(e Evaluator) {
	r.cfg.evaluator = e
}

func (r *Record) programCache() ProgramCache {
	return r.cfg.programCache
}

func (r *Record) functionRegistry() *FunctionRegistry {
	return r.cfg.functions
}

func (r *Record) evaluatorLogger() EvaluatorLogger {
	if r.cfg.logger != nil {
		return r.cfg.logger
	}
	return noopEvaluatorLogger{}
}

func (r *Record) schemaGenerator() SchemaGenerator {
	if r == nil {
		return DefaultSchemaGenerator()
	}
	if r.cfg.schemaGenerator != nil {
		return r.cfg.schemaGenerator
	}
	return DefaultSchemaGenerator()
}

func sourceToBinding(source Source) map[string]any {
	if source.isZero() {
		return nil
	}
	binding := map[string]any{
		"name":     source.Name,
		"label":    source.Label,
		"priority": source.Priority,
	}
	if len(source.Metadata) > 0 {
		binding["metadata"] = copyMetadata(source.Metadata)
	}
	return binding
}
