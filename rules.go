package envflags

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrNoEvaluator = errors.New("envflags: evaluator not configured")

// Snapshotter exposes a variant as the map flag rules are evaluated against.
type Snapshotter interface {
	Snapshot() map[string]any
}

// RuleScannerOption configures a RuleScanner.
type RuleScannerOption func(*ruleScannerConfig)

type ruleScannerConfig struct {
	evaluator Evaluator
	cache     ProgramCache
	functions *FunctionRegistry
	logger    EvaluatorLogger
	args      map[string]any
	metadata  map[string]any
	now       func() time.Time
	err       error
}

// WithRuleEvaluator selects the engine used to evaluate rules. The default is
// the expr-lang evaluator.
func WithRuleEvaluator(e Evaluator) RuleScannerOption {
	return func(cfg *ruleScannerConfig) {
		cfg.evaluator = e
	}
}

// WithRuleProgramCache shares a program cache with the default evaluator.
func WithRuleProgramCache(cache ProgramCache) RuleScannerOption {
	return func(cfg *ruleScannerConfig) {
		cfg.cache = cache
	}
}

// WithRuleFunctionRegistry exposes registry functions to the default
// evaluator.
func WithRuleFunctionRegistry(registry *FunctionRegistry) RuleScannerOption {
	return func(cfg *ruleScannerConfig) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

// WithRuleFunction registers fn under name for the default evaluator. A name
// the registry rejects makes NewRuleScanner fail.
func WithRuleFunction(name string, fn Function) RuleScannerOption {
	return func(cfg *ruleScannerConfig) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		if err := cfg.functions.Register(name, fn); err != nil && cfg.err == nil {
			cfg.err = err
		}
	}
}

// WithRuleLogger records every rule evaluation.
func WithRuleLogger(logger EvaluatorLogger) RuleScannerOption {
	return func(cfg *ruleScannerConfig) {
		if logger == nil {
			cfg.logger = noopEvaluatorLogger{}
			return
		}
		cfg.logger = logger
	}
}

// WithRuleArgs sets the value of the `args` binding.
func WithRuleArgs(args map[string]any) RuleScannerOption {
	return func(cfg *ruleScannerConfig) {
		cfg.args = cloneAnyMap(args)
	}
}

// WithRuleMetadata sets the value of the `metadata` binding.
func WithRuleMetadata(metadata map[string]any) RuleScannerOption {
	return func(cfg *ruleScannerConfig) {
		cfg.metadata = cloneAnyMap(metadata)
	}
}

// WithRuleClock overrides the clock backing the `now` binding.
func WithRuleClock(now func() time.Time) RuleScannerOption {
	return func(cfg *ruleScannerConfig) {
		cfg.now = now
	}
}

type compiledFlagRule struct {
	feature string
	rule    FlagRule
}

// RuleScanner derives flags by evaluating one boolean expression per feature
// against the variant snapshot. Rules are compiled once at construction.
type RuleScanner[T Variant] struct {
	rules  []compiledFlagRule
	engine string
	cfg    ruleScannerConfig
}

// NewRuleScanner compiles rules keyed by feature name.
func NewRuleScanner[T Variant](rules map[string]string, opts ...RuleScannerOption) (*RuleScanner[T], error) {
	cfg := ruleScannerConfig{logger: noopEvaluatorLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.err != nil {
		return nil, cfg.err
	}
	evaluator, err := resolveEvaluator(cfg)
	if err != nil {
		return nil, err
	}

	features := make([]string, 0, len(rules))
	for feature := range rules {
		features = append(features, feature)
	}
	sort.Strings(features)

	engine := evaluator.Engine()
	scanner := &RuleScanner[T]{engine: engine, cfg: cfg}
	for _, feature := range features {
		expr := strings.TrimSpace(rules[feature])
		name := strings.TrimSpace(feature)
		if name == "" {
			return nil, fmt.Errorf("envflags: rule feature name must not be empty")
		}
		compiled, err := evaluator.Compile(expr)
		if err != nil {
			return nil, wrapEvaluationError(engine, expr, name, err)
		}
		scanner.rules = append(scanner.rules, compiledFlagRule{
			feature: name,
			rule:    compiled,
		})
	}
	return scanner, nil
}

// Features returns the features covered by rules, sorted by name.
func (s *RuleScanner[T]) Features() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.rules))
	for i, rule := range s.rules {
		names[i] = rule.feature
	}
	return names
}

// ScanFlags implements Scanner. Rules only typed at run time can still fail
// here with ErrRuleNotBool.
func (s *RuleScanner[T]) ScanFlags(variant T) (FlagMap, error) {
	flags := FlagMap{}
	if s == nil {
		return flags, nil
	}
	snapshot, err := VariantSnapshot(variant)
	if err != nil {
		return nil, err
	}
	name := variant.VariantName()
	for _, rule := range s.rules {
		ctx := RuleContext{
			Snapshot: snapshot,
			Args:     s.cfg.args,
			Metadata: s.cfg.metadata,
			Variant:  name,
			Feature:  rule.feature,
		}
		if s.cfg.now != nil {
			now := s.cfg.now()
			ctx.Now = &now
		}
		start := time.Now()
		enabled, evalErr := rule.rule.Match(ctx)
		evalErr = wrapEvaluationError(s.engine, rule.rule.Rule(), rule.feature, evalErr)
		s.cfg.logger.LogEvaluation(EvaluatorLogEvent{
			Engine:   s.engine,
			Expr:     rule.rule.Rule(),
			Feature:  rule.feature,
			Variant:  name,
			Duration: time.Since(start),
			Err:      evalErr,
		})
		if evalErr != nil {
			return nil, evalErr
		}
		flags[rule.feature] = enabled
	}
	return flags, nil
}

func resolveEvaluator(cfg ruleScannerConfig) (Evaluator, error) {
	if cfg.evaluator != nil {
		return cfg.evaluator, nil
	}
	return NewEvaluator("", WithProgramCache(cfg.cache), WithFunctions(cfg.functions))
}

// NewEvaluator builds the named engine: "expr" (default), "cel" or "js".
func NewEvaluator(engine string, opts ...EvaluatorOption) (Evaluator, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", exprEngine:
		return NewExprEvaluator(opts...), nil
	case celEngine:
		return NewCELEvaluator(opts...), nil
	case "js":
		evaluator := NewJSEvaluator(opts...)
		if evaluator == nil {
			return nil, fmt.Errorf("%w: js engine requires the js_eval build tag", ErrNoEvaluator)
		}
		return evaluator, nil
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", ErrNoEvaluator, engine)
	}
}

// VariantSnapshot converts a variant into the map rules see. Snapshotter and
// map values are used directly; anything else goes through a JSON round trip.
func VariantSnapshot(variant any) (map[string]any, error) {
	switch typed := variant.(type) {
	case nil:
		return map[string]any{}, nil
	case Snapshotter:
		return typed.Snapshot(), nil
	case map[string]any:
		return typed, nil
	}
	payload, err := json.Marshal(variant)
	if err != nil {
		return nil, fmt.Errorf("envflags: snapshot variant: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("envflags: snapshot variant: %w", err)
	}
	return out, nil
}

func snapshotAsMap(value any) map[string]any {
	switch typed := value.(type) {
	case map[string]any:
		return typed
	case Snapshotter:
		return typed.Snapshot()
	default:
		return map[string]any{}
	}
}

func cloneAnyMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
