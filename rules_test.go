package envflags

import (
	"errors"
	"testing"
	"time"
)

func gameVariants() []MapVariant {
	return []MapVariant{
		{Name: "Dev", Values: map[string]any{"log_verbose": true, "region": "eu", "max_players": 4}},
		{Name: "Prod", Values: map[string]any{"log_verbose": false, "region": "us", "max_players": 64}},
	}
}

func TestRuleScannerExpr(t *testing.T) {
	var events []EvaluatorLogEvent
	scanner, err := NewRuleScanner[MapVariant](map[string]string{
		"Logging":   "log_verbose == true",
		"Analytics": "variant != 'Dev' && max_players > 8",
	}, WithRuleLogger(EvaluatorLoggerFunc(func(e EvaluatorLogEvent) { events = append(events, e) })))
	if err != nil {
		t.Fatalf("scanner: %v", err)
	}
	if got := scanner.Features(); len(got) != 2 || got[0] != "Analytics" {
		t.Fatalf("expected sorted features, got %v", got)
	}

	variants := gameVariants()
	dev, err := scanner.ScanFlags(variants[0])
	if err != nil {
		t.Fatalf("scan dev: %v", err)
	}
	if !dev["Logging"] || dev["Analytics"] {
		t.Fatalf("unexpected dev flags %v", dev)
	}
	prod, err := scanner.ScanFlags(variants[1])
	if err != nil {
		t.Fatalf("scan prod: %v", err)
	}
	if prod["Logging"] || !prod["Analytics"] {
		t.Fatalf("unexpected prod flags %v", prod)
	}
	if len(events) != 4 || events[0].Engine != "expr" || events[0].Variant != "Dev" {
		t.Fatalf("expected one log event per rule evaluation, got %+v", events)
	}
}

func TestRuleScannerRejectsNonBoolRulesAtConstruction(t *testing.T) {
	cases := []struct {
		name   string
		engine string
		rule   string
	}{
		{name: "expr arithmetic", engine: "expr", rule: "1 + 1"},
		{name: "expr string literal", engine: "expr", rule: "'eu'"},
		{name: "cel string literal", engine: "cel", rule: "'eu'"},
		{name: "cel size", engine: "cel", rule: "size(region)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evaluator, err := NewEvaluator(tc.engine)
			if err != nil {
				t.Fatalf("evaluator: %v", err)
			}
			_, err = NewRuleScanner[MapVariant](map[string]string{"Logging": tc.rule}, WithRuleEvaluator(evaluator))
			if !errors.Is(err, ErrRuleNotBool) {
				t.Fatalf("expected ErrRuleNotBool from NewRuleScanner, got %v", err)
			}
			var evalErr *EvaluationError
			if !errors.As(err, &evalErr) || evalErr.Feature != "Logging" || evalErr.Engine != tc.engine {
				t.Fatalf("expected evaluation error naming the feature, got %v", err)
			}
		})
	}
}

func TestRuleScannerRejectsNonBoolSnapshotValues(t *testing.T) {
	scanner, err := NewRuleScanner[MapVariant](map[string]string{"Logging": "max_players"})
	if err != nil {
		t.Fatalf("untyped rule should compile: %v", err)
	}
	_, err = scanner.ScanFlags(gameVariants()[0])
	var evalErr *EvaluationError
	if !errors.Is(err, ErrRuleNotBool) || !errors.As(err, &evalErr) || evalErr.Feature != "Logging" {
		t.Fatalf("expected ErrRuleNotBool for int snapshot value, got %v", err)
	}
}

func TestRuleScannerMissingKeysReadAsUnset(t *testing.T) {
	for _, engine := range []string{"expr", "cel"} {
		t.Run(engine, func(t *testing.T) {
			evaluator, err := NewEvaluator(engine)
			if err != nil {
				t.Fatalf("evaluator: %v", err)
			}
			scanner, err := NewRuleScanner[MapVariant](map[string]string{
				"Tracing": "tracing_enabled == true",
			}, WithRuleEvaluator(evaluator))
			if err != nil {
				t.Fatalf("scanner: %v", err)
			}
			flags, err := scanner.ScanFlags(gameVariants()[0])
			if err != nil {
				t.Fatalf("scan: %v", err)
			}
			if enabled, ok := flags["Tracing"]; !ok || enabled {
				t.Fatalf("expected Tracing to be reported off, got %v", flags)
			}
		})
	}
}

func TestRuleScannerCompileErrorsSurfaceEarly(t *testing.T) {
	_, err := NewRuleScanner[MapVariant](map[string]string{"Logging": "log_verbose =="})
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) || evalErr.Engine != "expr" {
		t.Fatalf("expected compile error, got %v", err)
	}
	if _, err := NewRuleScanner[MapVariant](map[string]string{"Logging": "  "}); !errors.Is(err, ErrEmptyRule) {
		t.Fatalf("expected empty rule error, got %v", err)
	}
}

func TestRuleScannerFunctionsAndClock(t *testing.T) {
	fixed := time.Date(2024, 12, 24, 10, 0, 0, 0, time.UTC)
	scanner, err := NewRuleScanner[MapVariant](map[string]string{
		"Holiday": "now.Year() == 2024 && inregion(region, 'eu')",
	},
		WithRuleClock(func() time.Time { return fixed }),
		WithRuleFunction("inregion", func(args ...any) (any, error) {
			return len(args) == 2 && args[0] == args[1], nil
		}),
	)
	if err != nil {
		t.Fatalf("scanner: %v", err)
	}
	flags, err := scanner.ScanFlags(gameVariants()[0])
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !flags["Holiday"] {
		t.Fatalf("expected holiday rule to hold, got %v", flags)
	}
}

func TestRuleScannerCEL(t *testing.T) {
	evaluator, err := NewEvaluator("cel", WithProgramCache(NewMemoryProgramCache()))
	if err != nil {
		t.Fatalf("evaluator: %v", err)
	}
	scanner, err := NewRuleScanner[MapVariant](map[string]string{
		"Logging": "log_verbose == true && region == 'eu'",
	}, WithRuleEvaluator(evaluator))
	if err != nil {
		t.Fatalf("scanner: %v", err)
	}
	variants := gameVariants()
	dev, err := scanner.ScanFlags(variants[0])
	if err != nil || !dev["Logging"] {
		t.Fatalf("expected Logging for Dev, got %v err=%v", dev, err)
	}
	prod, err := scanner.ScanFlags(variants[1])
	if err != nil || prod["Logging"] {
		t.Fatalf("expected no Logging for Prod, got %v err=%v", prod, err)
	}
}

func TestNewEvaluatorEngines(t *testing.T) {
	evaluator, err := NewEvaluator("")
	if err != nil || evaluator.Engine() != "expr" {
		t.Fatalf("expected expr default engine, got %v err=%v", evaluator, err)
	}
	if _, err := NewEvaluator("lua"); !errors.Is(err, ErrNoEvaluator) {
		t.Fatalf("expected unknown engine error, got %v", err)
	}
	_, err = NewEvaluator("js")
	if JSEvaluatorAvailable() && err != nil {
		t.Fatalf("js engine: %v", err)
	}
	if !JSEvaluatorAvailable() && !errors.Is(err, ErrNoEvaluator) {
		t.Fatalf("expected js engine to require build tag, got %v", err)
	}
}

func TestRuleFunctionsAcrossEngines(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.RegisterPredicate("inregion", func(args ...any) bool {
		return len(args) == 2 && args[0] == args[1]
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	cache := NewMemoryProgramCache()
	rules := map[string]string{
		"Regional": "inregion(region, 'eu')",
		"Dispatch": "call('inregion', region, 'us')",
	}
	for _, engine := range []string{"expr", "cel"} {
		t.Run(engine, func(t *testing.T) {
			evaluator, err := NewEvaluator(engine, WithProgramCache(cache), WithFunctions(registry))
			if err != nil {
				t.Fatalf("evaluator: %v", err)
			}
			scanner, err := NewRuleScanner[MapVariant](rules, WithRuleEvaluator(evaluator))
			if err != nil {
				t.Fatalf("scanner: %v", err)
			}
			flags, err := scanner.ScanFlags(gameVariants()[0])
			if err != nil {
				t.Fatalf("scan: %v", err)
			}
			if !flags["Regional"] || flags["Dispatch"] {
				t.Fatalf("unexpected flags for Dev: %v", flags)
			}
		})
	}
}

func TestFunctionRegistryRejectsUnusableNames(t *testing.T) {
	registry := NewFunctionRegistry()
	noop := func(args ...any) (any, error) { return true, nil }
	for _, name := range []string{"", "in-region", "variant", "call"} {
		if err := registry.Register(name, noop); !errors.Is(err, ErrFunctionName) {
			t.Fatalf("expected ErrFunctionName for %q, got %v", name, err)
		}
	}
	if err := registry.Register("inregion", noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register("inregion", noop); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	_, err := NewRuleScanner[MapVariant](map[string]string{"Logging": "log_verbose"}, WithRuleFunction("now", noop))
	if !errors.Is(err, ErrFunctionName) {
		t.Fatalf("expected scanner construction to surface registry error, got %v", err)
	}
}

func TestVariantSnapshot(t *testing.T) {
	type settings struct {
		LogVerbose bool `json:"log_verbose"`
	}
	snapshot, err := VariantSnapshot(Named[settings]{Name: "Dev", Value: settings{LogVerbose: true}})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot["log_verbose"] != true {
		t.Fatalf("expected named value snapshot, got %v", snapshot)
	}

	snapshot, err = VariantSnapshot(settings{LogVerbose: true})
	if err != nil || snapshot["log_verbose"] != true {
		t.Fatalf("expected json snapshot, got %v err=%v", snapshot, err)
	}

	if _, err := VariantSnapshot(func() {}); err == nil {
		t.Fatalf("expected unserializable variant to fail")
	}
}
