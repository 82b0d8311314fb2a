package envflags

import "strings"

// EvaluatorOption configures a rule engine.
type EvaluatorOption func(*engineConfig)

type engineConfig struct {
	cache     ProgramCache
	functions *FunctionRegistry
}

// WithProgramCache shares compiled programs between evaluators. Entries are
// keyed by engine and registered function names, so one cache can back
// several engines.
func WithProgramCache(cache ProgramCache) EvaluatorOption {
	return func(cfg *engineConfig) {
		cfg.cache = cache
	}
}

// WithFunctions exposes registry functions to rules. The registry is copied,
// so later registrations are not visible to the evaluator.
func WithFunctions(registry *FunctionRegistry) EvaluatorOption {
	return func(cfg *engineConfig) {
		cfg.functions = registry.Clone()
	}
}

func newEngineConfig(opts []EvaluatorOption) engineConfig {
	cfg := engineConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (c engineConfig) cacheKey(engine, rule string) string {
	return engine + "\x00" + strings.Join(c.functions.Names(), ",") + "\x00" + rule
}

func (c engineConfig) cached(engine, rule string) (any, bool) {
	if c.cache == nil {
		return nil, false
	}
	return c.cache.Get(c.cacheKey(engine, rule))
}

func (c engineConfig) remember(engine, rule string, program any) {
	if c.cache == nil {
		return
	}
	c.cache.Set(c.cacheKey(engine, rule), program)
}
