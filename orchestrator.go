package envflags

import (
	"context"
	"fmt"

	"github.com/goliatone/go-envflags/pkg/activity"
)

// SymbolStore holds the externally owned symbol set.
type SymbolStore interface {
	ReadSymbols(ctx context.Context) ([]string, error)
	WriteSymbols(ctx context.Context, symbols []string) error
}

// Persister saves the orchestrator's durable state after a change.
type Persister interface {
	MarkDirty()
	Persist(ctx context.Context) error
}

// State is the persisted shape of an orchestrator: the active environment and
// each feature's enabled flag and contribution memory.
type State struct {
	Active      string        `json:"active,omitempty" yaml:"active,omitempty"`
	ActiveIndex int           `json:"active_index" yaml:"active_index"`
	Features    RegistryState `json:"features,omitempty" yaml:"features,omitempty"`
}

// ApplyResult describes one apply.
type ApplyResult struct {
	// Applied is true once the apply ran to completion.
	Applied bool
	// Changed is true when the symbol set was rewritten.
	Changed bool
	// Persisted is true when the Persister saved state after this apply.
	Persisted bool
	Summary   string
	Variant   string
	Index     int
	Symbols   []string
	Added     []string
	Removed   []string
	Missing   []*MissingFlagBinding
	Toggled   []string
	Conflicts []SymbolOwnershipConflict
}

// Option configures an Orchestrator.
type Option func(*orchestratorConfig)

type orchestratorConfig struct {
	store      SymbolStore
	persister  Persister
	logger     DiagnosticLogger
	emitter    *activity.Emitter
	reconciler []ReconcilerOption
}

// WithSymbolStore sets the store holding the external symbol set. Required.
func WithSymbolStore(store SymbolStore) Option {
	return func(cfg *orchestratorConfig) {
		cfg.store = store
	}
}

// WithPersister sets the collaborator invoked after an apply that rewrote the
// symbol set or the contribution memory.
func WithPersister(persister Persister) Option {
	return func(cfg *orchestratorConfig) {
		cfg.persister = persister
	}
}

// WithLogger routes every diagnostic of the apply pipeline to logger.
func WithLogger(logger DiagnosticLogger) Option {
	return func(cfg *orchestratorConfig) {
		cfg.logger = diagnosticLoggerOrNoop(logger)
	}
}

// WithActivity emits selection and apply events through emitter.
func WithActivity(emitter *activity.Emitter) Option {
	return func(cfg *orchestratorConfig) {
		cfg.emitter = emitter
	}
}

// WithActivityHooks is shorthand for WithActivity over an enabled emitter.
func WithActivityHooks(hooks ...activity.ActivityHook) Option {
	return func(cfg *orchestratorConfig) {
		cfg.emitter = activity.NewEmitter(activity.Hooks(hooks), activity.Config{Enabled: true})
	}
}

// WithReconcilerOptions forwards options to the internal Reconciler.
func WithReconcilerOptions(opts ...ReconcilerOption) Option {
	return func(cfg *orchestratorConfig) {
		cfg.reconciler = append(cfg.reconciler, opts...)
	}
}

// Orchestrator drives one apply: resolve the active variant, bind its flags,
// reconcile the registry against the symbol store and write back the
// difference. It is not safe for concurrent use.
type Orchestrator[T Variant] struct {
	selector   *Selector[T]
	registry   *Registry
	binder     *Binder[T]
	reconciler *Reconciler
	store      SymbolStore
	persister  Persister
	logger     DiagnosticLogger
	emitter    *activity.Emitter
}

// NewOrchestrator wires the collaborators together. A binder built without a
// logger reports through the orchestrator's logger; the caller's binder is
// not modified.
func NewOrchestrator[T Variant](selector *Selector[T], registry *Registry, binder *Binder[T], opts ...Option) (*Orchestrator[T], error) {
	cfg := orchestratorConfig{logger: noopDiagnosticLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	switch {
	case selector == nil:
		return nil, newConfigurationError(ErrMissingDependency, "selector is required")
	case registry == nil:
		return nil, newConfigurationError(ErrMissingDependency, "feature registry is required")
	case binder == nil:
		return nil, newConfigurationError(ErrMissingDependency, "flag binder is required")
	case cfg.store == nil:
		return nil, newConfigurationError(ErrMissingDependency, "symbol store is required")
	}
	reconcilerOpts := append([]ReconcilerOption{WithReconcilerLogger(cfg.logger)}, cfg.reconciler...)
	return &Orchestrator[T]{
		selector:   selector,
		registry:   registry,
		binder:     binder.withFallbackLogger(cfg.logger),
		reconciler: NewReconciler(reconcilerOpts...),
		store:      cfg.store,
		persister:  cfg.persister,
		logger:     cfg.logger,
		emitter:    cfg.emitter,
	}, nil
}

// Registry returns the feature registry.
func (o *Orchestrator[T]) Registry() *Registry {
	return o.registry
}

// Selector returns the environment selector.
func (o *Orchestrator[T]) Selector() *Selector[T] {
	return o.selector
}

// ListVariantNames returns the variant names in order.
func (o *Orchestrator[T]) ListVariantNames() []string {
	return o.selector.Names()
}

// GetActiveIndex returns the active index.
func (o *Orchestrator[T]) GetActiveIndex() int {
	return o.selector.ActiveIndex()
}

// SetActiveIndex changes the selection without applying it and returns the
// previous index. Out-of-range requests are ignored.
func (o *Orchestrator[T]) SetActiveIndex(i int) int {
	previous := o.selector.SetActiveIndex(i)
	if o.selector.ActiveIndex() != previous {
		o.emit(context.Background(), activity.BuildEnvironmentSelectedEvent(activity.EnvironmentEventInput{
			Variant:       o.selector.ActiveName(),
			Index:         o.selector.ActiveIndex(),
			PreviousIndex: previous,
		}))
	}
	return previous
}

// SelectAndApply selects variant i and applies it immediately, returning the
// previous index. An out-of-range i fails without applying.
func (o *Orchestrator[T]) SelectAndApply(ctx context.Context, i int) (int, ApplyResult, error) {
	if i < 0 || i >= o.selector.Len() {
		return o.selector.ActiveIndex(), ApplyResult{}, newConfigurationError(ErrVariantNotFound, "environment index %d out of range [0,%d)", i, o.selector.Len())
	}
	previous := o.SetActiveIndex(i)
	result, err := o.ApplyActive(ctx)
	return previous, result, err
}

// ApplyPending applies the active variant only when the selection changed
// since the last successful apply. The bool reports whether an apply ran.
func (o *Orchestrator[T]) ApplyPending(ctx context.Context) (ApplyResult, bool, error) {
	if !o.selector.ApplyRequired() {
		return ApplyResult{}, false, nil
	}
	result, err := o.ApplyActive(ctx)
	return result, true, err
}

// ApplyActive reconciles the active variant into the symbol store. The store
// is read once and written at most once. Contribution memory is committed
// only after a successful write, so a failed write can simply be retried.
// The Persister runs when the symbol set or the contribution memory changed.
// Saving a selection that changed neither is left to the caller.
func (o *Orchestrator[T]) ApplyActive(ctx context.Context) (ApplyResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if o.selector.Len() == 0 {
		return ApplyResult{}, newConfigurationError(ErrNoVariants, "no environment variants configured")
	}

	variant, err := o.selector.Active()
	if err != nil {
		return ApplyResult{}, err
	}
	name := o.selector.ActiveName()
	index := o.selector.ActiveIndex()

	bound, err := o.binder.Bind(variant, o.registry.Names())
	if err != nil {
		return ApplyResult{}, err
	}
	toggled := o.registry.ApplyFlags(bound.Flags)

	current, err := o.store.ReadSymbols(ctx)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("envflags: read symbols for %q: %w", name, err)
	}
	plan := o.reconciler.Plan(o.registry, current)

	result := ApplyResult{
		Changed:   plan.Changed,
		Variant:   name,
		Index:     index,
		Symbols:   plan.Symbols,
		Added:     plan.Added,
		Removed:   plan.Removed,
		Missing:   bound.Missing,
		Toggled:   toggled,
		Conflicts: plan.Conflicts,
	}

	if plan.Changed {
		if err := o.store.WriteSymbols(ctx, plan.Symbols); err != nil {
			result.Changed = false
			o.logger.LogDiagnostic(Diagnostic{
				Level:   DiagnosticError,
				Code:    CodeWriteFailed,
				Variant: name,
				Message: "symbol write-back failed; contribution memory left unchanged",
				Err:     err,
			})
			return result, fmt.Errorf("envflags: write symbols for %q: %w", name, err)
		}
		o.logger.LogDiagnostic(Diagnostic{
			Level:   DiagnosticDebug,
			Code:    CodeSymbolsUpdated,
			Variant: name,
			Message: "symbol set rewritten",
			Fields:  map[string]any{"symbols": plan.Symbols},
		})
	}
	o.reconciler.Commit(o.registry, plan)
	o.selector.markApplied()
	result.Applied = true

	if plan.Changed {
		result.Summary = name + " config applied"
		o.logger.LogDiagnostic(Diagnostic{
			Level:   DiagnosticInfo,
			Code:    CodeVariantApplied,
			Variant: name,
			Message: result.Summary,
			Fields:  map[string]any{"added": plan.Added, "removed": plan.Removed},
		})
	} else {
		result.Summary = name + " config already up to date"
		o.logger.LogDiagnostic(Diagnostic{
			Level:   DiagnosticDebug,
			Code:    CodeVariantUnchanged,
			Variant: name,
			Message: result.Summary,
		})
	}

	o.emitApply(ctx, result)

	if (plan.Changed || plan.MemoryChanged) && o.persister != nil {
		o.persister.MarkDirty()
		if err := o.persister.Persist(ctx); err != nil {
			o.logger.LogDiagnostic(Diagnostic{
				Level:   DiagnosticError,
				Code:    CodePersistFailed,
				Variant: name,
				Message: "persisting configuration failed",
				Err:     err,
			})
			return result, fmt.Errorf("envflags: persist %q: %w", name, err)
		}
		result.Persisted = true
	}
	return result, nil
}

// State captures what a Persister should save.
func (o *Orchestrator[T]) State() State {
	return State{
		Active:      o.selector.ActiveName(),
		ActiveIndex: o.selector.ActiveIndex(),
		Features:    o.registry.State(),
	}
}

// Restore loads persisted state. The active variant is matched by name first
// and by index second. Unknown feature names are returned. The restored
// selection still needs an apply.
func (o *Orchestrator[T]) Restore(state State) []string {
	if i, ok := o.selector.IndexOf(state.Active); ok {
		o.selector.SetActiveIndex(i)
	} else {
		o.selector.SetActiveIndex(state.ActiveIndex)
	}
	return o.registry.Restore(state.Features)
}

func (o *Orchestrator[T]) emitApply(ctx context.Context, result ApplyResult) {
	if !o.emitter.Enabled() {
		return
	}
	events := make([]activity.Event, 0, len(result.Toggled)+2)
	for _, name := range result.Toggled {
		feature, _ := o.registry.Lookup(name)
		events = append(events, activity.BuildFeatureToggledEvent(activity.FeatureEventInput{
			Variant: result.Variant,
			Feature: name,
			Enabled: feature.Enabled(),
			Symbols: feature.Symbols,
		}))
	}
	if result.Changed {
		events = append(events, activity.BuildSymbolsUpdatedEvent(activity.EnvironmentEventInput{
			Variant: result.Variant,
			Added:   result.Added,
			Removed: result.Removed,
			Symbols: result.Symbols,
		}))
	}
	events = append(events, activity.BuildEnvironmentAppliedEvent(activity.EnvironmentEventInput{
		Variant:  result.Variant,
		Index:    result.Index,
		Summary:  result.Summary,
		Metadata: map[string]any{"changed": result.Changed},
	}))
	o.emit(ctx, events...)
}

func (o *Orchestrator[T]) emit(ctx context.Context, events ...activity.Event) {
	if !o.emitter.Enabled() {
		return
	}
	for _, event := range events {
		if err := o.emitter.Emit(ctx, event); err != nil {
			o.logger.LogDiagnostic(Diagnostic{
				Level:   DiagnosticWarn,
				Code:    CodeHookFailed,
				Variant: event.ObjectID,
				Message: "activity hook failed for " + event.Verb,
				Err:     err,
			})
		}
	}
}
