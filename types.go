package envflags

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// RuleContext carries the inputs a flag rule is evaluated against.
type RuleContext struct {
	Snapshot any
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
	Variant  string
	Feature  string
}

func (ctx RuleContext) withDefaults() RuleContext {
	if ctx.Now == nil {
		now := time.Now()
		ctx.Now = &now
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) featureLabel() string {
	if ctx.Feature != "" {
		return ctx.Feature
	}
	return "unknown"
}

// bindings returns the reserved names every engine exposes, overlaid with the
// snapshot keys that do not collide with them.
func (ctx RuleContext) bindings() map[string]any {
	ctx = ctx.withDefaults()
	env := map[string]any{
		"now":      *ctx.Now,
		"args":     ctx.Args,
		"metadata": ctx.Metadata,
		"variant":  ctx.Variant,
		"feature":  ctx.Feature,
	}
	for key, value := range snapshotAsMap(ctx.Snapshot) {
		if isReservedBinding(key) {
			continue
		}
		env[key] = value
	}
	return env
}

// Evaluator compiles flag rules for one expression engine.
type Evaluator interface {
	// Engine names the expression language, e.g. "expr".
	Engine() string
	// Compile checks rule and prepares it for repeated matching. Rules that
	// can never produce a bool fail with ErrRuleNotBool.
	Compile(rule string) (FlagRule, error)
}

// FlagRule is a compiled rule deciding one feature's flag per variant.
type FlagRule interface {
	Rule() string
	Match(ctx RuleContext) (bool, error)
}

// reservedBindings are names every engine binds itself. Snapshot keys and
// rule functions cannot take them.
var reservedBindings = map[string]struct{}{
	"now": {}, "args": {}, "metadata": {}, "variant": {}, "feature": {}, "call": {},
}

func isReservedBinding(name string) bool {
	_, ok := reservedBindings[name]
	return ok
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

func prepareRule(engine, rule string) (string, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return "", wrapEvaluatorError(engine, ErrEmptyRule)
	}
	return rule, nil
}

// flagValue converts an engine result into a flag. A nil result comes from
// a rule reading a key the variant does not define and counts as unset.
func flagValue(value any) (bool, error) {
	switch typed := value.(type) {
	case nil:
		return false, nil
	case bool:
		return typed, nil
	}
	return false, fmt.Errorf("%w, got %T", ErrRuleNotBool, value)
}
