package layering

import (
	"slices"
	"strings"
)

// Level orders layers. Higher levels override lower levels.
type Level int

const (
	LevelUnknown Level = iota
	// LevelDefaults holds values shared by every environment.
	LevelDefaults
	// LevelEnvironment holds the values an environment declares.
	LevelEnvironment
	// LevelOverride holds local, machine-specific overrides.
	LevelOverride
)

func (l Level) String() string {
	switch l {
	case LevelDefaults:
		return "defaults"
	case LevelEnvironment:
		return "environment"
	case LevelOverride:
		return "override"
	default:
		return "unknown"
	}
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *Level) UnmarshalText(text []byte) error {
	*l = ParseLevel(string(text))
	return nil
}

// ParseLevel converts a string into a Level, returning LevelUnknown for
// unrecognised values.
func ParseLevel(value string) Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "defaults", "default":
		return LevelDefaults
	case "environment", "env":
		return LevelEnvironment
	case "override":
		return LevelOverride
	default:
		return LevelUnknown
	}
}

// Layer is one named snapshot at a level.
type Layer[T any] struct {
	Level Level
	Name  string
	Value T
}

// Resolve sorts layers from strongest to weakest, keeping the given order for
// peers, and merges them. Layers at LevelUnknown are skipped. The names of the
// layers that took part are returned strongest first.
func Resolve[T any](layers ...Layer[T]) (T, []string) {
	ordered := make([]Layer[T], 0, len(layers))
	for _, layer := range layers {
		if layer.Level == LevelUnknown {
			continue
		}
		ordered = append(ordered, layer)
	}
	slices.SortStableFunc(ordered, func(a, b Layer[T]) int {
		return int(b.Level) - int(a.Level)
	})

	values := make([]T, len(ordered))
	names := make([]string, len(ordered))
	for i, layer := range ordered {
		values[i] = layer.Value
		names[i] = layer.Name
	}
	return Merge(values...), names
}
