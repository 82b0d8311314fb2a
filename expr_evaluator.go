package envflags

import (
	"fmt"
	"strings"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

const exprEngine = "expr"

// exprEvaluator compiles flag rules with github.com/expr-lang/expr. Snapshot
// keys are free variables; a key the variant lacks reads as nil.
type exprEvaluator struct {
	cfg engineConfig
}

// NewExprEvaluator returns the default rule engine.
func NewExprEvaluator(opts ...EvaluatorOption) Evaluator {
	return &exprEvaluator{cfg: newEngineConfig(opts)}
}

func (e *exprEvaluator) Engine() string { return exprEngine }

// Compile type-checks rule as a boolean expression. A rule whose result type
// is known and is not bool, such as `1 + 1` or `'eu'`, fails here rather than
// on the first scan.
func (e *exprEvaluator) Compile(rule string) (FlagRule, error) {
	rule, err := prepareRule(exprEngine, rule)
	if err != nil {
		return nil, err
	}
	program, err := e.program(rule)
	if err != nil {
		return nil, err
	}
	return &exprFlagRule{rule: rule, program: program}, nil
}

func (e *exprEvaluator) program(rule string) (*exprvm.Program, error) {
	if cached, ok := e.cfg.cached(exprEngine, rule); ok {
		if program, ok := cached.(*exprvm.Program); ok {
			return program, nil
		}
	}
	options := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	}
	if functions := e.cfg.functions; functions != nil {
		for _, name := range functions.Names() {
			options = append(options, exprlang.Function(name, functions.bound(name)))
		}
		options = append(options, exprlang.Function("call", exprCall(functions)))
	}
	program, err := exprlang.Compile(rule, options...)
	if err != nil {
		if strings.Contains(err.Error(), "expected bool") {
			return nil, fmt.Errorf("%w: %v", ErrRuleNotBool, err)
		}
		return nil, err
	}
	e.cfg.remember(exprEngine, rule, program)
	return program, nil
}

func exprCall(functions *FunctionRegistry) func(args ...any) (any, error) {
	return func(args ...any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("envflags: call requires a function name")
		}
		name, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("envflags: call name must be a string, got %T", args[0])
		}
		return functions.Call(name, args[1:]...)
	}
}

type exprFlagRule struct {
	rule    string
	program *exprvm.Program
}

func (r *exprFlagRule) Rule() string { return r.rule }

// Match runs the program against the variant snapshot. Values only known at
// run time are still checked: a non-bool snapshot value fails with
// ErrRuleNotBool.
func (r *exprFlagRule) Match(ctx RuleContext) (bool, error) {
	result, err := exprlang.Run(r.program, ctx.bindings())
	if err != nil {
		if strings.Contains(err.Error(), "invalid operation: bool(") {
			return false, fmt.Errorf("%w: %v", ErrRuleNotBool, err)
		}
		return false, err
	}
	return flagValue(result)
}
