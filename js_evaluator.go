//go:build js_eval

package envflags

import (
	"fmt"

	"github.com/dop251/goja"
)

const jsEngine = "js"

// jsEvaluator compiles flag rules as JavaScript expressions with goja. The
// language is untyped, so a non-bool result is only reported by Match.
type jsEvaluator struct {
	cfg engineConfig
}

// NewJSEvaluator constructs an Evaluator backed by goja.
func NewJSEvaluator(opts ...EvaluatorOption) Evaluator {
	return &jsEvaluator{cfg: newEngineConfig(opts)}
}

func (e *jsEvaluator) Engine() string { return jsEngine }

func (e *jsEvaluator) Compile(rule string) (FlagRule, error) {
	rule, err := prepareRule(jsEngine, rule)
	if err != nil {
		return nil, err
	}
	if cached, ok := e.cfg.cached(jsEngine, rule); ok {
		if program, ok := cached.(*goja.Program); ok {
			return &jsFlagRule{rule: rule, program: program, functions: e.cfg.functions}, nil
		}
	}
	program, err := goja.Compile("rule", fmt.Sprintf("(function(){ return (%s); })()", rule), true)
	if err != nil {
		return nil, err
	}
	e.cfg.remember(jsEngine, rule, program)
	return &jsFlagRule{rule: rule, program: program, functions: e.cfg.functions}, nil
}

type jsFlagRule struct {
	rule      string
	program   *goja.Program
	functions *FunctionRegistry
}

func (r *jsFlagRule) Rule() string { return r.rule }

// Match runs the rule in a fresh runtime, so variants never observe each
// other's globals.
func (r *jsFlagRule) Match(ctx RuleContext) (bool, error) {
	vm := goja.New()
	for key, value := range ctx.bindings() {
		if err := vm.Set(key, value); err != nil {
			return false, err
		}
	}
	if r.functions != nil {
		if err := vm.Set("call", func(name string, args ...any) (any, error) {
			return r.functions.Call(name, args...)
		}); err != nil {
			return false, err
		}
		for _, name := range r.functions.Names() {
			if err := vm.Set(name, r.functions.bound(name)); err != nil {
				return false, err
			}
		}
	}
	value, err := vm.RunProgram(r.program)
	if err != nil {
		return false, err
	}
	return flagValue(value.Export())
}

// JSEvaluatorAvailable reports whether the binary was built with js_eval.
func JSEvaluatorAvailable() bool {
	return true
}
