package envflags

import (
	"errors"
	"slices"
	"testing"
)

func TestParseSymbolsDropsBlankEntries(t *testing.T) {
	got := ParseSymbols("A;; B ;A;;C; ")
	want := []string{"A", "B", "C"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if ParseSymbols("  ") != nil {
		t.Fatalf("expected nil for blank text")
	}
}

func TestFormatSymbolsHasNoTrailingSeparator(t *testing.T) {
	if got := FormatSymbols([]string{"A", "", "B", "A"}); got != "A;B" {
		t.Fatalf("expected A;B, got %q", got)
	}
	if got := FormatSymbols(nil); got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
}

func TestSameSymbolsIgnoresOrderButNotCase(t *testing.T) {
	cases := []struct {
		name string
		a, b []string
		want bool
	}{
		{name: "reordered", a: []string{"A", "B"}, b: []string{"B", "A"}, want: true},
		{name: "blank entries", a: []string{"A", " ", ""}, b: []string{"A"}, want: true},
		{name: "case sensitive", a: []string{"log"}, b: []string{"LOG"}, want: false},
		{name: "subset", a: []string{"A"}, b: []string{"A", "B"}, want: false},
		{name: "both empty", a: nil, b: []string{""}, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SameSymbols(tc.a, tc.b); got != tc.want {
				t.Fatalf("SameSymbols(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestValidateSymbol(t *testing.T) {
	for _, bad := range []string{"", "  ", "A;B", "HAS SPACE", "TAB\tS"} {
		err := ValidateSymbol(bad)
		if !errors.Is(err, ErrInvalidSymbol) || !errors.Is(err, ErrConfiguration) {
			t.Fatalf("expected invalid symbol error for %q, got %v", bad, err)
		}
	}
	if err := ValidateSymbol("LOG_VERBOSE"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
