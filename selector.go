package envflags

import (
	"strings"

	"github.com/goliatone/go-envflags/layering"
)

// SelectorOption configures a Selector.
type SelectorOption[T Variant] func(*Selector[T])

// WithDefaults layers defaults beneath every variant. Fields a variant leaves
// nil (pointers, maps, slices, interfaces) are filled from defaults; map
// values merge key by key.
func WithDefaults[T Variant](defaults T) SelectorOption[T] {
	return func(s *Selector[T]) {
		s.defaults = &defaults
	}
}

// WithActiveIndex sets the initially active variant. Out-of-range values are
// ignored.
func WithActiveIndex[T Variant](index int) SelectorOption[T] {
	return func(s *Selector[T]) {
		if index >= 0 && index < len(s.variants) {
			s.active = index
		}
	}
}

// Selector owns the ordered variant list and the active index.
type Selector[T Variant] struct {
	variants []T
	names    []string
	index    map[string]int
	active   int
	pending  bool
	defaults *T
}

// NewSelector validates variants. Names must be non-empty and unique. An empty
// list is accepted; applying it fails.
func NewSelector[T Variant](variants []T, opts ...SelectorOption[T]) (*Selector[T], error) {
	s := &Selector[T]{
		variants: make([]T, 0, len(variants)),
		names:    make([]string, 0, len(variants)),
		index:    make(map[string]int, len(variants)),
	}
	for i, variant := range variants {
		name := strings.TrimSpace(variant.VariantName())
		if name == "" {
			return nil, newConfigurationError(ErrVariantNameRequired, "variant at index %d has no name", i)
		}
		if _, exists := s.index[name]; exists {
			return nil, newConfigurationError(ErrDuplicateVariant, "variant %q declared more than once", name)
		}
		s.index[name] = len(s.variants)
		s.variants = append(s.variants, variant)
		s.names = append(s.names, name)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.pending = len(s.variants) > 0
	return s, nil
}

// Len returns the number of variants.
func (s *Selector[T]) Len() int {
	return len(s.variants)
}

// Names returns variant names in order.
func (s *Selector[T]) Names() []string {
	return cloneStrings(s.names)
}

// ActiveIndex returns the active index. It is 0 when there are no variants.
func (s *Selector[T]) ActiveIndex() int {
	return s.active
}

// ActiveName returns the active variant's name, or "" when there are none.
func (s *Selector[T]) ActiveName() string {
	if len(s.names) == 0 {
		return ""
	}
	return s.names[s.active]
}

// Active returns the active variant with defaults layered in.
func (s *Selector[T]) Active() (T, error) {
	if len(s.variants) == 0 {
		var zero T
		return zero, newConfigurationError(ErrNoVariants, "no environment variants configured")
	}
	return s.resolve(s.variants[s.active]), nil
}

// Variant returns the named variant with defaults layered in.
func (s *Selector[T]) Variant(name string) (T, error) {
	i, ok := s.index[strings.TrimSpace(name)]
	if !ok {
		var zero T
		return zero, newConfigurationError(ErrVariantNotFound, "variant %q not found", name)
	}
	return s.resolve(s.variants[i]), nil
}

// SetActiveIndex selects variant i and returns the previous index. An
// out-of-range i is rejected: nothing changes and the current index is
// returned. Selecting a different variant marks an apply as required.
func (s *Selector[T]) SetActiveIndex(i int) int {
	previous := s.active
	if i < 0 || i >= len(s.variants) {
		return previous
	}
	if i != previous {
		s.active = i
		s.pending = true
	}
	return previous
}

// SelectByName selects the named variant and returns the previous index.
func (s *Selector[T]) SelectByName(name string) (int, error) {
	i, ok := s.index[strings.TrimSpace(name)]
	if !ok {
		return s.active, newConfigurationError(ErrVariantNotFound, "variant %q not found", name)
	}
	return s.SetActiveIndex(i), nil
}

// ApplyRequired reports whether the selection changed since the last
// successful apply.
func (s *Selector[T]) ApplyRequired() bool {
	return s.pending
}

// IndexOf returns the position of the named variant.
func (s *Selector[T]) IndexOf(name string) (int, bool) {
	i, ok := s.index[strings.TrimSpace(name)]
	return i, ok
}

func (s *Selector[T]) markApplied() {
	s.pending = false
}

func (s *Selector[T]) resolve(variant T) T {
	if s.defaults == nil {
		return variant
	}
	return layering.Merge(variant, *s.defaults)
}
