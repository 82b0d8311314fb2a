// Package document loads environment documents: a YAML file declaring the
// features, the environments to choose between and how each environment
// binds its flags.
//
//	engine: expr
//	active: Dev
//	features:
//	  - name: Logging
//	    symbols: [LOG_VERBOSE]
//	defaults:
//	  log_verbose: false
//	environments:
//	  - name: Dev
//	    values: {log_verbose: true}
//	  - name: Prod
//	    flags: {Logging: false}
//	rules:
//	  Logging: log_verbose == true
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	envflags "github.com/goliatone/go-envflags"
	"github.com/goliatone/go-envflags/internal/hydrate"
	"github.com/goliatone/go-envflags/layering"
	"gopkg.in/yaml.v3"
)

var ErrInvalidDocument = errors.New("document: invalid environment document")

// FeatureSpec declares one feature.
type FeatureSpec struct {
	Name    string   `yaml:"name"`
	Symbols []string `yaml:"symbols"`
}

// EnvironmentSpec declares one environment. Flags bind features explicitly
// and take precedence over rules.
type EnvironmentSpec struct {
	Name   string          `yaml:"name"`
	Flags  map[string]bool `yaml:"flags,omitempty"`
	Values map[string]any  `yaml:"values,omitempty"`
}

// Document is a decoded environment document.
type Document struct {
	Source       string            `yaml:"-"`
	Engine       string            `yaml:"engine,omitempty"`
	Active       string            `yaml:"active,omitempty"`
	SymbolsFile  string            `yaml:"symbols_file,omitempty"`
	StateDir     string            `yaml:"state_dir,omitempty"`
	Features     []FeatureSpec     `yaml:"features"`
	Defaults     map[string]any    `yaml:"defaults,omitempty"`
	Environments []EnvironmentSpec `yaml:"environments"`
	Rules        map[string]string `yaml:"rules,omitempty"`
}

// Load reads and validates the document at path.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("document: read %s: %w", path, err)
	}
	return Parse(raw, path)
}

// Parse decodes and validates a document. Unknown keys are rejected.
func Parse(data []byte, source string) (*Document, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	doc := &Document{}
	if err := decoder.Decode(doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("document: decode %s: %w", source, err)
	}
	doc.Source = source
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate checks cross references: environment and feature names must be
// unique, the active environment must exist and rules and flags may only
// name declared features.
func (d *Document) Validate() error {
	features := make(map[string]struct{}, len(d.Features))
	for _, feature := range d.Features {
		features[strings.TrimSpace(feature.Name)] = struct{}{}
	}
	for name := range d.Rules {
		if _, ok := features[name]; !ok {
			return fmt.Errorf("%w: rule for undeclared feature %q", ErrInvalidDocument, name)
		}
	}
	seen := make(map[string]struct{}, len(d.Environments))
	for _, env := range d.Environments {
		name := strings.TrimSpace(env.Name)
		if name == "" {
			return fmt.Errorf("%w: environment without a name", ErrInvalidDocument)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: environment %q declared more than once", ErrInvalidDocument, name)
		}
		seen[name] = struct{}{}
		for feature := range env.Flags {
			if _, ok := features[feature]; !ok {
				return fmt.Errorf("%w: environment %q binds undeclared feature %q", ErrInvalidDocument, name, feature)
			}
		}
	}
	if d.Active != "" {
		if _, ok := seen[strings.TrimSpace(d.Active)]; !ok {
			return fmt.Errorf("%w: active environment %q not declared", ErrInvalidDocument, d.Active)
		}
	}
	return nil
}

// FeatureList returns the declared features.
func (d *Document) FeatureList() []envflags.Feature {
	out := make([]envflags.Feature, len(d.Features))
	for i, spec := range d.Features {
		out[i] = envflags.NewFeature(spec.Name, spec.Symbols...)
	}
	return out
}

// Registry builds a feature registry from the document.
func (d *Document) Registry() (*envflags.Registry, error) {
	return envflags.NewRegistry(d.FeatureList()...)
}

// ActiveIndex returns the position of the active environment, 0 when unset.
func (d *Document) ActiveIndex() int {
	for i, env := range d.Environments {
		if strings.TrimSpace(env.Name) == strings.TrimSpace(d.Active) {
			return i
		}
	}
	return 0
}

// Variants resolves every environment's values over the defaults, with
// overrides layered on top of each.
func (d *Document) Variants(overrides map[string]any) []envflags.MapVariant {
	out := make([]envflags.MapVariant, len(d.Environments))
	for i, env := range d.Environments {
		values, _ := layering.Resolve(d.layers(env, overrides)...)
		out[i] = envflags.MapVariant{Name: strings.TrimSpace(env.Name), Values: values}
	}
	return out
}

// Trace reports which layer supplies path for the named environment.
func (d *Document) Trace(environment, path string, overrides map[string]any) (layering.Trace, error) {
	for _, env := range d.Environments {
		if strings.TrimSpace(env.Name) == strings.TrimSpace(environment) {
			return layering.TracePath(path, d.layers(env, overrides)...), nil
		}
	}
	return layering.Trace{}, fmt.Errorf("%w: %q", envflags.ErrVariantNotFound, environment)
}

func (d *Document) layers(env EnvironmentSpec, overrides map[string]any) []layering.Layer[map[string]any] {
	layers := []layering.Layer[map[string]any]{
		{Level: layering.LevelDefaults, Name: "defaults", Value: d.Defaults},
		{Level: layering.LevelEnvironment, Name: strings.TrimSpace(env.Name), Value: env.Values},
	}
	if len(overrides) > 0 {
		layers = append(layers, layering.Layer[map[string]any]{Level: layering.LevelOverride, Name: "override", Value: overrides})
	}
	return layers
}

// Scanner returns the flag scanner for the document's variants: rules are
// evaluated first, explicit environment flags override them.
func (d *Document) Scanner(opts ...envflags.RuleScannerOption) (envflags.Scanner[envflags.MapVariant], error) {
	scanners := make([]envflags.Scanner[envflags.MapVariant], 0, 2)
	if len(d.Rules) > 0 {
		evaluator, err := envflags.NewEvaluator(d.Engine, envflags.WithProgramCache(envflags.NewMemoryProgramCache()))
		if err != nil {
			return nil, err
		}
		opts = append([]envflags.RuleScannerOption{envflags.WithRuleEvaluator(evaluator)}, opts...)
		rules, err := envflags.NewRuleScanner[envflags.MapVariant](d.Rules, opts...)
		if err != nil {
			return nil, err
		}
		scanners = append(scanners, rules)
	}
	scanners = append(scanners, d.flagTable())
	return envflags.ChainScanners(scanners...), nil
}

func (d *Document) flagTable() envflags.Scanner[envflags.MapVariant] {
	flags := make(map[string]map[string]bool, len(d.Environments))
	for _, env := range d.Environments {
		flags[strings.TrimSpace(env.Name)] = env.Flags
	}
	return envflags.ScannerFunc[envflags.MapVariant](func(v envflags.MapVariant) (envflags.FlagMap, error) {
		return envflags.FlagMap(flags[v.Name]).Clone(), nil
	})
}

// Decode hydrates each environment's resolved values into T, for callers
// that bind flags with a TagScanner or BindingTable on their own struct.
func Decode[T any](d *Document, opts ...hydrate.DecoderOption[T]) ([]envflags.Named[T], error) {
	decoder := hydrate.NewDecoder(opts...)
	variants := d.Variants(nil)
	out := make([]envflags.Named[T], len(variants))
	for i, variant := range variants {
		value, err := decoder.Decode(hydrate.Context{Source: d.Source, Environment: variant.Name}, variant.Values)
		if err != nil {
			return nil, err
		}
		out[i] = envflags.Named[T]{Name: variant.Name, Value: value}
	}
	return out, nil
}
