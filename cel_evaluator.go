package envflags

import (
	"fmt"
	"sort"

	celgo "github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

const celEngine = "cel"

// celMaxArgs bounds the arity of registry function overloads.
const celMaxArgs = 4

// celTypeNames are identifiers CEL resolves to types, never to snapshot keys.
var celTypeNames = map[string]struct{}{
	"bool": {}, "bytes": {}, "double": {}, "dyn": {}, "int": {}, "list": {},
	"map": {}, "null_type": {}, "string": {}, "type": {}, "uint": {},
}

// celEvaluator compiles flag rules with cel-go. Free identifiers in a rule
// are declared as dyn snapshot keys, so a rule is type-checked once without
// knowing any variant.
type celEvaluator struct {
	cfg engineConfig
}

// NewCELEvaluator constructs an Evaluator backed by cel-go.
func NewCELEvaluator(opts ...EvaluatorOption) Evaluator {
	return &celEvaluator{cfg: newEngineConfig(opts)}
}

func (e *celEvaluator) Engine() string { return celEngine }

// Compile rejects rules whose checked output type is neither bool nor dyn.
func (e *celEvaluator) Compile(rule string) (FlagRule, error) {
	rule, err := prepareRule(celEngine, rule)
	if err != nil {
		return nil, err
	}
	if cached, ok := e.cfg.cached(celEngine, rule); ok {
		if compiled, ok := cached.(*celFlagRule); ok {
			return compiled, nil
		}
	}

	env, err := e.baseEnv()
	if err != nil {
		return nil, err
	}
	parsed, issues := env.Parse(rule)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	keys := celSnapshotKeys(parsed, e.cfg.functions)
	declarations := make([]celgo.EnvOption, 0, len(keys))
	for _, key := range keys {
		declarations = append(declarations, celgo.Variable(key, celgo.DynType))
	}
	env, err = env.Extend(declarations...)
	if err != nil {
		return nil, err
	}
	checked, issues := env.Check(parsed)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if out := checked.OutputType(); !out.IsExactType(celgo.BoolType) && out.Kind() != types.DynKind {
		return nil, fmt.Errorf("%w, got %s", ErrRuleNotBool, out)
	}
	program, err := env.Program(checked)
	if err != nil {
		return nil, err
	}

	compiled := &celFlagRule{rule: rule, program: program, keys: keys}
	e.cfg.remember(celEngine, rule, compiled)
	return compiled, nil
}

func (e *celEvaluator) baseEnv() (*celgo.Env, error) {
	opts := []celgo.EnvOption{
		celgo.Variable("now", celgo.TimestampType),
		celgo.Variable("args", celgo.DynType),
		celgo.Variable("metadata", celgo.DynType),
		celgo.Variable("variant", celgo.StringType),
		celgo.Variable("feature", celgo.StringType),
	}
	functions := e.cfg.functions
	if functions == nil {
		return celgo.NewEnv(opts...)
	}
	opts = append(opts, celgo.Function("call", celCallOverloads(functions)...))
	for _, name := range functions.Names() {
		opts = append(opts, celgo.Function(name, celFunctionOverloads(functions, name)...))
	}
	return celgo.NewEnv(opts...)
}

// celSnapshotKeys lists the free identifiers of a parsed rule, sorted.
func celSnapshotKeys(parsed *celgo.Ast, functions *FunctionRegistry) []string {
	registered := map[string]struct{}{}
	for _, name := range functions.Names() {
		registered[name] = struct{}{}
	}
	seen := map[string]struct{}{}
	celast.PreOrderVisit(parsed.NativeRep().Expr(), celast.NewExprVisitor(func(expr celast.Expr) {
		if expr.Kind() != celast.IdentKind {
			return
		}
		name := expr.AsIdent()
		if !isIdentifier(name) || isReservedBinding(name) {
			return
		}
		if _, ok := celTypeNames[name]; ok {
			return
		}
		if _, ok := registered[name]; ok {
			return
		}
		seen[name] = struct{}{}
	}))
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

type celFlagRule struct {
	rule    string
	program celgo.Program
	keys    []string
}

func (r *celFlagRule) Rule() string { return r.rule }

// Match binds every declared key, using null for keys the variant lacks.
func (r *celFlagRule) Match(ctx RuleContext) (bool, error) {
	activation := ctx.bindings()
	for _, key := range r.keys {
		if _, ok := activation[key]; !ok {
			activation[key] = types.NullValue
		}
	}
	out, _, err := r.program.Eval(activation)
	if err != nil {
		return false, err
	}
	if out.Type() == types.NullType {
		return false, nil
	}
	return flagValue(out.Value())
}

func celCallOverloads(functions *FunctionRegistry) []celgo.FunctionOpt {
	overloads := make([]celgo.FunctionOpt, 0, celMaxArgs+1)
	for arity := 0; arity <= celMaxArgs; arity++ {
		argTypes := []*celgo.Type{celgo.StringType}
		for i := 0; i < arity; i++ {
			argTypes = append(argTypes, celgo.DynType)
		}
		overloads = append(overloads, celgo.Overload(
			fmt.Sprintf("call_string_dyn%d", arity),
			argTypes,
			celgo.DynType,
			celgo.FunctionBinding(func(values ...ref.Val) ref.Val {
				name, ok := values[0].Value().(string)
				if !ok {
					return types.NewErr("envflags: call name must be a string")
				}
				return celInvoke(functions, name, values[1:])
			}),
		))
	}
	return overloads
}

func celFunctionOverloads(functions *FunctionRegistry, name string) []celgo.FunctionOpt {
	overloads := make([]celgo.FunctionOpt, 0, celMaxArgs+1)
	for arity := 0; arity <= celMaxArgs; arity++ {
		argTypes := make([]*celgo.Type, arity)
		for i := range argTypes {
			argTypes[i] = celgo.DynType
		}
		overloads = append(overloads, celgo.Overload(
			fmt.Sprintf("%s_dyn%d", name, arity),
			argTypes,
			celgo.DynType,
			celgo.FunctionBinding(func(values ...ref.Val) ref.Val {
				return celInvoke(functions, name, values)
			}),
		))
	}
	return overloads
}

func celInvoke(functions *FunctionRegistry, name string, values []ref.Val) ref.Val {
	args := make([]any, 0, len(values))
	for _, val := range values {
		args = append(args, val.Value())
	}
	result, err := functions.Call(name, args...)
	if err != nil {
		return types.NewErr("%s", err.Error())
	}
	if result == nil {
		return types.NullValue
	}
	return types.DefaultTypeAdapter.NativeToValue(result)
}
