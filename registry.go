package envflags

import (
	"sort"
	"strings"
)

// FeatureState is the persisted shape of a feature: its applied state and the
// symbols it contributed on the last successful reconciliation.
type FeatureState struct {
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Contributed []string `json:"contributed,omitempty" yaml:"contributed,omitempty"`
}

// RegistryState maps feature names to their persisted state.
type RegistryState map[string]FeatureState

// Registry holds the feature definitions in declaration order. Feature order
// only affects diagnostic ordering and ownership conflict resolution.
type Registry struct {
	features []Feature
	index    map[string]int
}

// NewRegistry validates features and builds a registry. Duplicate or empty
// names and malformed symbols fail with a ConfigurationError.
func NewRegistry(features ...Feature) (*Registry, error) {
	r := &Registry{
		features: make([]Feature, 0, len(features)),
		index:    make(map[string]int, len(features)),
	}
	for _, feature := range features {
		normalized, err := normalizeFeature(feature)
		if err != nil {
			return nil, err
		}
		if _, exists := r.index[normalized.Name]; exists {
			return nil, newConfigurationError(ErrDuplicateFeature, "feature %q declared more than once", normalized.Name)
		}
		r.index[normalized.Name] = len(r.features)
		r.features = append(r.features, normalized)
	}
	return r, nil
}

// Len returns the number of features.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.features)
}

// Names returns feature names in registry order.
func (r *Registry) Names() []string {
	if r == nil || len(r.features) == 0 {
		return nil
	}
	names := make([]string, len(r.features))
	for i := range r.features {
		names[i] = r.features[i].Name
	}
	return names
}

// Features returns detached copies of the features in registry order.
func (r *Registry) Features() []Feature {
	if r == nil || len(r.features) == 0 {
		return nil
	}
	out := make([]Feature, len(r.features))
	for i := range r.features {
		out[i] = r.features[i].clone()
	}
	return out
}

// Lookup returns a copy of the named feature.
func (r *Registry) Lookup(name string) (Feature, bool) {
	if r == nil {
		return Feature{}, false
	}
	i, ok := r.index[strings.TrimSpace(name)]
	if !ok {
		return Feature{}, false
	}
	return r.features[i].clone(), true
}

// ApplyFlags sets every feature's enabled state from flags. Features absent
// from flags are disabled. Symbols and contribution memory are untouched. The
// names of features whose state changed are returned in registry order.
func (r *Registry) ApplyFlags(flags FlagMap) []string {
	if r == nil {
		return nil
	}
	var toggled []string
	for i := range r.features {
		feature := &r.features[i]
		enabled := flags[feature.Name]
		if feature.enabled != enabled {
			toggled = append(toggled, feature.Name)
		}
		feature.enabled = enabled
	}
	return toggled
}

// SetSymbols replaces the declared symbols of a feature. The contribution
// memory is kept so the next reconciliation retracts the old symbols.
func (r *Registry) SetSymbols(name string, symbols ...string) error {
	if r == nil {
		return newConfigurationError(ErrFeatureNotFound, "feature %q not found", name)
	}
	i, ok := r.index[strings.TrimSpace(name)]
	if !ok {
		return newConfigurationError(ErrFeatureNotFound, "feature %q not found", name)
	}
	normalized, err := normalizeDeclaredSymbols(r.features[i].Name, symbols)
	if err != nil {
		return err
	}
	r.features[i].Symbols = normalized
	return nil
}

// State captures enabled flags and contribution memory for persistence.
func (r *Registry) State() RegistryState {
	if r == nil || len(r.features) == 0 {
		return RegistryState{}
	}
	state := make(RegistryState, len(r.features))
	for _, feature := range r.features {
		state[feature.Name] = FeatureState{
			Enabled:     feature.enabled,
			Contributed: cloneStrings(feature.contributed),
		}
	}
	return state
}

// Restore loads previously persisted state. Entries for unknown features are
// skipped and their names returned.
func (r *Registry) Restore(state RegistryState) []string {
	if r == nil {
		return nil
	}
	var unknown []string
	for name, entry := range state {
		i, ok := r.index[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		r.features[i].enabled = entry.Enabled
		r.features[i].contributed = NormalizeSymbols(entry.Contributed)
	}
	sort.Strings(unknown)
	return unknown
}

func (r *Registry) commitContributions(contributions map[string][]string) {
	for name, symbols := range contributions {
		if i, ok := r.index[name]; ok {
			r.features[i].contributed = cloneStrings(symbols)
		}
	}
}
