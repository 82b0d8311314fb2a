package envflags

import (
	"fmt"
	"strings"
)

// FlagMap maps a feature name to the enabled state a variant declares for it.
type FlagMap map[string]bool

// Clone returns a detached copy of m.
func (m FlagMap) Clone() FlagMap {
	if m == nil {
		return nil
	}
	out := make(FlagMap, len(m))
	for name, enabled := range m {
		out[name] = enabled
	}
	return out
}

// Feature is a named toggle owning the symbols it contributes while enabled.
// The enabled state and the contribution memory are owned by the Registry
// and only change during ApplyFlags and reconciliation.
type Feature struct {
	Name    string
	Symbols []string

	enabled     bool
	contributed []string
}

// NewFeature builds a disabled feature with an empty contribution memory.
func NewFeature(name string, symbols ...string) Feature {
	return Feature{
		Name:    name,
		Symbols: cloneStrings(symbols),
	}
}

// Enabled reports the state applied by the last ApplyFlags call.
func (f Feature) Enabled() bool {
	return f.enabled
}

// Contributed returns the symbols this feature added on its last successful
// reconciliation.
func (f Feature) Contributed() []string {
	return cloneStrings(f.contributed)
}

func (f Feature) clone() Feature {
	return Feature{
		Name:        f.Name,
		Symbols:     cloneStrings(f.Symbols),
		enabled:     f.enabled,
		contributed: cloneStrings(f.contributed),
	}
}

// normalizeFeature trims the name and validates and deduplicates symbols.
func normalizeFeature(f Feature) (Feature, error) {
	f = f.clone()
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return Feature{}, newConfigurationError(ErrFeatureNameRequired, "feature name must be provided")
	}
	symbols, err := normalizeDeclaredSymbols(f.Name, f.Symbols)
	if err != nil {
		return Feature{}, err
	}
	f.Symbols = symbols
	return f, nil
}

func normalizeDeclaredSymbols(feature string, symbols []string) ([]string, error) {
	for _, symbol := range symbols {
		if err := ValidateSymbol(symbol); err != nil {
			cfgErr := err.(*ConfigurationError)
			cfgErr.Message = fmt.Sprintf("feature %q: %s", feature, cfgErr.Message)
			return nil, cfgErr
		}
	}
	return NormalizeSymbols(symbols), nil
}
