package envflags

import (
	"fmt"
	"sort"
	"sync"
)

// Function is a helper flag rules call by name, as in `inregion(region, "eu")`.
type Function func(args ...any) (any, error)

// Predicate is a Function whose answer is a flag.
type Predicate func(args ...any) bool

// FunctionRegistry holds the helpers exposed to flag rules. Every engine
// binds each function under its own name and through `call(name, ...)`.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{functions: make(map[string]Function)}
}

// Register adds fn under name. Names must be identifiers and may not shadow
// the rule bindings (now, args, metadata, variant, feature, call).
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("envflags: function %q is nil", name)
	}
	if !isIdentifier(name) || isReservedBinding(name) {
		return fmt.Errorf("%w: %q", ErrFunctionName, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	if _, exists := r.functions[name]; exists {
		return fmt.Errorf("envflags: function %q already registered", name)
	}
	r.functions[name] = fn
	return nil
}

// RegisterPredicate adds a boolean helper, the common case for flag rules.
func (r *FunctionRegistry) RegisterPredicate(name string, fn Predicate) error {
	if fn == nil {
		return fmt.Errorf("envflags: function %q is nil", name)
	}
	return r.Register(name, func(args ...any) (any, error) {
		return fn(args...), nil
	})
}

// Clone returns a copy that does not see later registrations.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{functions: make(map[string]Function, len(r.functions))}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Call runs the function registered under name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("envflags: function %q not registered", name)
	}
	r.mu.RLock()
	fn := r.functions[name]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("envflags: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns registered function names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// bound returns a closure calling name, for engines that bind functions as
// values.
func (r *FunctionRegistry) bound(name string) func(args ...any) (any, error) {
	return func(args ...any) (any, error) {
		return r.Call(name, args...)
	}
}
