package envflags

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches every ConfigurationError.
	ErrConfiguration = errors.New("envflags: configuration error")
	// ErrNoVariants indicates an apply was requested without any variants.
	ErrNoVariants = errors.New("envflags: no environment variants configured")
	// ErrDuplicateFeature indicates two features share a name.
	ErrDuplicateFeature = errors.New("envflags: feature names must be unique")
	// ErrDuplicateVariant indicates two variants share a name.
	ErrDuplicateVariant = errors.New("envflags: variant names must be unique")
	// ErrFeatureNameRequired indicates a feature without a name.
	ErrFeatureNameRequired = errors.New("envflags: feature name must be provided")
	// ErrVariantNameRequired indicates a variant without a name.
	ErrVariantNameRequired = errors.New("envflags: variant name must be provided")
	// ErrInvalidSymbol indicates a malformed symbol entry.
	ErrInvalidSymbol = errors.New("envflags: invalid symbol")
	// ErrScanFailed indicates the flag scanner could not read a variant.
	ErrScanFailed = errors.New("envflags: flag scan failed")
	// ErrFeatureNotFound indicates a lookup for an unknown feature.
	ErrFeatureNotFound = errors.New("envflags: feature not found")
	// ErrVariantNotFound indicates a lookup for an unknown variant.
	ErrVariantNotFound = errors.New("envflags: variant not found")
	// ErrMissingDependency indicates a required collaborator was not supplied.
	ErrMissingDependency = errors.New("envflags: missing dependency")
	// ErrEmptyRule indicates a flag rule with no expression.
	ErrEmptyRule = errors.New("envflags: rule must not be empty")
	// ErrRuleNotBool indicates a flag rule that cannot produce a bool.
	ErrRuleNotBool = errors.New("envflags: rule must evaluate to bool")
	// ErrFunctionName indicates a rule function registered under a name rules
	// cannot call.
	ErrFunctionName = errors.New("envflags: invalid rule function name")
)

// ConfigurationError is fatal to the current apply attempt. No write-back
// happens once one has been raised.
type ConfigurationError struct {
	Reason  error
	Message string
}

func newConfigurationError(reason error, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return "envflags: configuration: " + e.Message
}

func (e *ConfigurationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Reason
}

// Is reports ErrConfiguration for every ConfigurationError so callers can
// branch on the category without knowing the reason.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// MissingFlagBinding is a recoverable diagnostic: the feature is disabled and
// the apply continues.
type MissingFlagBinding struct {
	Feature string
	Variant string
}

func (m *MissingFlagBinding) Error() string {
	if m == nil {
		return "<nil>"
	}
	return fmt.Sprintf("envflags: no flag binding for feature %q in variant %q; declare a binding for %q", m.Feature, m.Variant, m.Feature)
}

// SymbolOwnershipConflict reports a symbol declared by more than one feature.
// The last owner in registry order decides whether the symbol is present.
type SymbolOwnershipConflict struct {
	Symbol string
	Owners []string
	Winner string
}

func (c SymbolOwnershipConflict) String() string {
	return fmt.Sprintf("symbol %q owned by %v (resolved by %q)", c.Symbol, c.Owners, c.Winner)
}
