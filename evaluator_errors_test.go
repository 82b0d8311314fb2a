package envflags

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapEvaluationErrorCreatesMetadata(t *testing.T) {
	base := errors.New("boom")
	err := wrapEvaluationError("expr", "debug && missing", "Logging", base)

	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError, got %T", err)
	}
	if evalErr.Engine != "expr" {
		t.Fatalf("expected engine expr, got %q", evalErr.Engine)
	}
	if evalErr.Expr != "debug && missing" {
		t.Fatalf("expected expression metadata, got %q", evalErr.Expr)
	}
	if evalErr.Feature != "Logging" {
		t.Fatalf("expected feature metadata, got %q", evalErr.Feature)
	}
	if !errors.Is(evalErr.Err, base) {
		t.Fatalf("wrapped error should unwrap to base error")
	}
	if !strings.Contains(err.Error(), `expr="debug && missing"`) {
		t.Fatalf("expected expression in message, got %q", err.Error())
	}
}

func TestWrapEvaluationErrorAugmentsExisting(t *testing.T) {
	base := errors.New("compile failure")
	existing := &EvaluationError{
		Engine: "expr",
		Err:    base,
	}

	err := wrapEvaluationError("cel", "rule", "Analytics", existing)
	if !errors.Is(err, base) {
		t.Fatalf("expected base error to unwrap")
	}
	if existing.Engine != "expr" {
		t.Fatalf("existing engine should not be overwritten, got %q", existing.Engine)
	}
	if existing.Expr != "rule" {
		t.Fatalf("expression should be filled, got %q", existing.Expr)
	}
	if existing.Feature != "Analytics" {
		t.Fatalf("feature should be filled, got %q", existing.Feature)
	}
}

func TestWrapEvaluatorErrorKeepsPrefixedErrors(t *testing.T) {
	prefixed := errors.New("envflags: already wrapped")
	if got := wrapEvaluatorError("expr", prefixed); got != prefixed {
		t.Fatalf("expected prefixed error to pass through, got %v", got)
	}
	got := wrapEvaluatorError("cel", errors.New("bad"))
	if got.Error() != "envflags: cel evaluator: bad" {
		t.Fatalf("unexpected wrapped message %q", got.Error())
	}
}

func TestConfigurationErrorMatchesSentinels(t *testing.T) {
	err := newConfigurationError(ErrDuplicateFeature, "feature %q declared twice", "Logging")

	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration match, got %v", err)
	}
	if !errors.Is(err, ErrDuplicateFeature) {
		t.Fatalf("expected ErrDuplicateFeature match, got %v", err)
	}
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %T", err)
	}
	if cfgErr.Error() != `envflags: configuration: feature "Logging" declared twice` {
		t.Fatalf("unexpected message %q", cfgErr.Error())
	}
}

func TestMissingFlagBindingMessage(t *testing.T) {
	missing := &MissingFlagBinding{Feature: "Logging", Variant: "Prod"}
	want := `envflags: no flag binding for feature "Logging" in variant "Prod"; declare a binding for "Logging"`
	if missing.Error() != want {
		t.Fatalf("unexpected message:\nwant %q\n got %q", want, missing.Error())
	}
}
