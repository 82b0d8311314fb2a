package envflags

import "fmt"

// Variant is any configuration record that carries a unique display name.
type Variant interface {
	VariantName() string
}

// Scanner reads the flag declarations of a variant. Implementations must be
// pure: the same variant always yields the same flags.
type Scanner[T any] interface {
	ScanFlags(variant T) (FlagMap, error)
}

// ScannerFunc adapts a function to Scanner.
type ScannerFunc[T any] func(variant T) (FlagMap, error)

// ScanFlags implements Scanner.
func (f ScannerFunc[T]) ScanFlags(variant T) (FlagMap, error) {
	if f == nil {
		return nil, nil
	}
	return f(variant)
}

// BindResult holds the target state of every registered feature and the
// features that had no binding in the variant.
type BindResult struct {
	Flags   FlagMap
	Missing []*MissingFlagBinding
}

// MissingNames returns the names of features without a binding.
func (r BindResult) MissingNames() []string {
	if len(r.Missing) == 0 {
		return nil
	}
	names := make([]string, len(r.Missing))
	for i, missing := range r.Missing {
		names[i] = missing.Feature
	}
	return names
}

// BinderOption configures a Binder.
type BinderOption func(*binderConfig)

type binderConfig struct {
	logger DiagnosticLogger
}

// WithBinderLogger routes missing binding warnings to logger.
func WithBinderLogger(logger DiagnosticLogger) BinderOption {
	return func(cfg *binderConfig) {
		cfg.logger = diagnosticLoggerOrNoop(logger)
	}
}

// Binder maps a variant's scanned flags onto registered feature names.
type Binder[T Variant] struct {
	scanner Scanner[T]
	logger  DiagnosticLogger
}

// NewBinder constructs a Binder around scanner.
func NewBinder[T Variant](scanner Scanner[T], opts ...BinderOption) *Binder[T] {
	cfg := binderConfig{logger: noopDiagnosticLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Binder[T]{
		scanner: scanner,
		logger:  cfg.logger,
	}
}

// withFallbackLogger returns a copy of b reporting to logger when b was built
// without one. b itself is left untouched so it can be shared.
func (b *Binder[T]) withFallbackLogger(logger DiagnosticLogger) *Binder[T] {
	if _, silent := b.logger.(noopDiagnosticLogger); !silent {
		return b
	}
	clone := *b
	clone.logger = logger
	return &clone
}

// Bind resolves the target enabled state for each feature. A feature without
// a binding resolves to false and produces exactly one MissingFlagBinding
// diagnostic. Scanner failures are returned as ConfigurationError.
func (b *Binder[T]) Bind(variant T, features []string) (BindResult, error) {
	name := variant.VariantName()
	if b == nil || b.scanner == nil {
		return BindResult{}, newConfigurationError(ErrScanFailed, "variant %q: flag scanner not configured", name)
	}
	scanned, err := b.scanner.ScanFlags(variant)
	if err != nil {
		return BindResult{}, &ConfigurationError{
			Reason:  fmt.Errorf("%w: %w", ErrScanFailed, err),
			Message: fmt.Sprintf("variant %q: scan flags: %v", name, err),
		}
	}

	result := BindResult{Flags: make(FlagMap, len(features))}
	for _, feature := range features {
		enabled, ok := scanned[feature]
		if ok {
			result.Flags[feature] = enabled
			continue
		}
		result.Flags[feature] = false
		missing := &MissingFlagBinding{Feature: feature, Variant: name}
		result.Missing = append(result.Missing, missing)
		b.logger.LogDiagnostic(Diagnostic{
			Level:   DiagnosticWarn,
			Code:    CodeMissingBinding,
			Variant: name,
			Feature: feature,
			Message: fmt.Sprintf("disabling feature %q because no flag binding was found; declare a binding for %q on variant %q", feature, feature, name),
			Err:     missing,
		})
	}
	return result, nil
}
