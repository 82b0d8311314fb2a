package envflags

// MapVariant is a variant backed by a dynamic value map, typically decoded
// from an environment document.
type MapVariant struct {
	Name   string         `json:"name" yaml:"name"`
	Values map[string]any `json:"values,omitempty" yaml:"values,omitempty"`
}

// VariantName implements Variant.
func (v MapVariant) VariantName() string {
	return v.Name
}

// Snapshot implements Snapshotter.
func (v MapVariant) Snapshot() map[string]any {
	if v.Values == nil {
		return map[string]any{}
	}
	return v.Values
}

// Lookup returns the value stored under key.
func (v MapVariant) Lookup(key string) (any, bool) {
	value, ok := v.Values[key]
	return value, ok
}

// Named attaches a variant name to a plain value, so types that do not
// implement Variant can still be selected.
type Named[V any] struct {
	Name  string
	Value V
}

// VariantName implements Variant.
func (n Named[V]) VariantName() string {
	return n.Name
}

// Snapshot implements Snapshotter.
func (n Named[V]) Snapshot() map[string]any {
	snapshot, err := VariantSnapshot(n.Value)
	if err != nil {
		return map[string]any{}
	}
	return snapshot
}
