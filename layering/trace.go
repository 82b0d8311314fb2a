package layering

import (
	"encoding/json"
	"slices"
	"strings"
)

// Trace records how each layer contributed to a dotted path.
type Trace struct {
	Path   string       `json:"path"`
	Value  any          `json:"value,omitempty"`
	Source string       `json:"source,omitempty"`
	Found  bool         `json:"found"`
	Layers []Provenance `json:"layers"`
}

// Provenance is one layer's view of a traced path.
type Provenance struct {
	Level Level  `json:"level"`
	Layer string `json:"layer"`
	Value any    `json:"value,omitempty"`
	Found bool   `json:"found"`
}

// ToJSON serialises the trace for logs and CLI output.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.MarshalIndent(alias(t), "", "  ")
}

// TracePath looks path up in every layer, strongest first. The effective
// value is the first non-nil hit, which is what Resolve yields for a leaf.
func TracePath(path string, layers ...Layer[map[string]any]) Trace {
	trace := Trace{Path: path}
	segments := splitPath(path)

	ordered := slices.Clone(layers)
	ordered = slices.DeleteFunc(ordered, func(layer Layer[map[string]any]) bool {
		return layer.Level == LevelUnknown
	})
	slices.SortStableFunc(ordered, func(a, b Layer[map[string]any]) int {
		return int(b.Level) - int(a.Level)
	})

	for _, layer := range ordered {
		value, found := lookup(layer.Value, segments)
		trace.Layers = append(trace.Layers, Provenance{
			Level: layer.Level,
			Layer: layer.Name,
			Value: value,
			Found: found,
		})
		if found && value != nil && !trace.Found {
			trace.Found = true
			trace.Value = value
			trace.Source = layer.Name
		}
	}
	return trace
}

func splitPath(path string) []string {
	var segments []string
	for _, segment := range strings.Split(path, ".") {
		if segment = strings.TrimSpace(segment); segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

func lookup(values map[string]any, segments []string) (any, bool) {
	if len(segments) == 0 || values == nil {
		return nil, false
	}
	var current any = values
	for _, segment := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = node[segment]; !ok {
			return nil, false
		}
	}
	return current, true
}
