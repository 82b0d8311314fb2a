package envflags

import (
	"strings"
	"unicode"
)

// SymbolSeparator delimits symbols in the textual define list format used by
// build settings stores.
const SymbolSeparator = ";"

// NormalizeSymbols trims entries, drops empty ones and removes duplicates
// while keeping first-seen order. Comparison is case-sensitive.
func NormalizeSymbols(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		out = append(out, symbol)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ParseSymbols splits a define list such as "A;B;;C" into normalized symbols.
func ParseSymbols(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return NormalizeSymbols(strings.Split(text, SymbolSeparator))
}

// FormatSymbols renders symbols as a define list without a trailing separator.
func FormatSymbols(symbols []string) string {
	return strings.Join(NormalizeSymbols(symbols), SymbolSeparator)
}

// SameSymbols reports whether a and b hold the same symbols, ignoring order,
// duplicates and blank entries.
func SameSymbols(a, b []string) bool {
	left := symbolIndex(NormalizeSymbols(a))
	right := symbolIndex(NormalizeSymbols(b))
	if len(left) != len(right) {
		return false
	}
	for symbol := range left {
		if _, ok := right[symbol]; !ok {
			return false
		}
	}
	return true
}

// ValidateSymbol rejects entries that cannot survive a round trip through the
// define list format.
func ValidateSymbol(symbol string) error {
	if strings.TrimSpace(symbol) == "" {
		return newConfigurationError(ErrInvalidSymbol, "symbol must not be empty")
	}
	if strings.Contains(symbol, SymbolSeparator) {
		return newConfigurationError(ErrInvalidSymbol, "symbol %q must not contain %q", symbol, SymbolSeparator)
	}
	if strings.IndexFunc(symbol, unicode.IsSpace) >= 0 {
		return newConfigurationError(ErrInvalidSymbol, "symbol %q must not contain whitespace", symbol)
	}
	return nil
}

func symbolIndex(symbols []string) map[string]struct{} {
	index := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		index[symbol] = struct{}{}
	}
	return index
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return append([]string(nil), values...)
}
