package envflags

import (
	"fmt"
	"reflect"
	"strings"
)

// Accessor reads one declared flag from a variant.
type Accessor[T any] func(variant T) bool

// BindingTable is an explicit registration table mapping feature names to
// flag accessors.
type BindingTable[T any] struct {
	order     []string
	accessors map[string]Accessor[T]
}

// NewBindingTable constructs an empty table.
func NewBindingTable[T any]() *BindingTable[T] {
	return &BindingTable[T]{accessors: map[string]Accessor[T]{}}
}

// Bind registers accessor for feature, guarding against duplicates.
func (t *BindingTable[T]) Bind(feature string, accessor Accessor[T]) error {
	feature = strings.TrimSpace(feature)
	if feature == "" {
		return fmt.Errorf("envflags: binding feature name must not be empty")
	}
	if accessor == nil {
		return fmt.Errorf("envflags: binding for %q is nil", feature)
	}
	if t.accessors == nil {
		t.accessors = map[string]Accessor[T]{}
	}
	if _, exists := t.accessors[feature]; exists {
		return fmt.Errorf("envflags: binding for %q already registered", feature)
	}
	t.accessors[feature] = accessor
	t.order = append(t.order, feature)
	return nil
}

// Features returns bound feature names in registration order.
func (t *BindingTable[T]) Features() []string {
	if t == nil {
		return nil
	}
	return cloneStrings(t.order)
}

// ScanFlags implements Scanner.
func (t *BindingTable[T]) ScanFlags(variant T) (FlagMap, error) {
	flags := FlagMap{}
	if t == nil {
		return flags, nil
	}
	for _, feature := range t.order {
		flags[feature] = t.accessors[feature](variant)
	}
	return flags, nil
}

// DefaultFlagTag is the struct tag TagScanner reads.
const DefaultFlagTag = "envflag"

// TagScanner reads bool struct fields tagged `envflag:"FeatureName"`.
// Unexported fields and embedded structs are included.
type TagScanner[T any] struct {
	Tag string
}

// ScanFlags implements Scanner.
func (s TagScanner[T]) ScanFlags(variant T) (FlagMap, error) {
	tag := s.Tag
	if tag == "" {
		tag = DefaultFlagTag
	}
	value := reflect.ValueOf(variant)
	for value.IsValid() && (value.Kind() == reflect.Pointer || value.Kind() == reflect.Interface) {
		if value.IsNil() {
			return nil, fmt.Errorf("envflags: cannot scan nil variant")
		}
		value = value.Elem()
	}
	if !value.IsValid() || value.Kind() != reflect.Struct {
		return nil, fmt.Errorf("envflags: tag scan requires a struct, got %T", variant)
	}
	flags := FlagMap{}
	if err := scanTaggedFields(value, tag, flags); err != nil {
		return nil, err
	}
	return flags, nil
}

func scanTaggedFields(value reflect.Value, tag string, flags FlagMap) error {
	typ := value.Type()
	for i := 0; i < value.NumField(); i++ {
		field := typ.Field(i)
		name, tagged := field.Tag.Lookup(tag)
		if !tagged {
			if field.Anonymous && value.Field(i).Kind() == reflect.Struct {
				if err := scanTaggedFields(value.Field(i), tag, flags); err != nil {
					return err
				}
			}
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" || name == "-" {
			continue
		}
		if field.Type.Kind() != reflect.Bool {
			return fmt.Errorf("envflags: field %s.%s tagged %q must be bool, got %s", typ.Name(), field.Name, name, field.Type)
		}
		if _, exists := flags[name]; exists {
			return fmt.Errorf("envflags: flag %q declared by more than one field on %s", name, typ.Name())
		}
		flags[name] = value.Field(i).Bool()
	}
	return nil
}

// ChainScanners merges the flags of several scanners. Later scanners
// override earlier ones for the same feature.
func ChainScanners[T any](scanners ...Scanner[T]) Scanner[T] {
	return ScannerFunc[T](func(variant T) (FlagMap, error) {
		merged := FlagMap{}
		for _, scanner := range scanners {
			if scanner == nil {
				continue
			}
			flags, err := scanner.ScanFlags(variant)
			if err != nil {
				return nil, err
			}
			for name, enabled := range flags {
				merged[name] = enabled
			}
		}
		return merged, nil
	})
}
