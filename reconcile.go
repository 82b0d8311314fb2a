package envflags

import "slices"

// Reconciliation is the outcome of diffing feature state against the external
// symbol set. Symbols keeps surviving external symbols in their original order
// followed by newly added symbols in feature order.
type Reconciliation struct {
	Symbols []string
	Changed bool
	// MemoryChanged is true when committing would alter some feature's
	// contribution memory, even if the symbol set itself is unchanged.
	MemoryChanged bool
	Added         []string
	Removed   []string
	Conflicts []SymbolOwnershipConflict

	contributions map[string][]string
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcilerLogger routes ownership conflict diagnostics to logger.
func WithReconcilerLogger(logger DiagnosticLogger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = diagnosticLoggerOrNoop(logger)
	}
}

// Reconciler computes the minimal change to an external symbol set implied by
// the features in a Registry.
type Reconciler struct {
	logger DiagnosticLogger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{logger: noopDiagnosticLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Reconcile plans against current and immediately commits the contribution
// memory into registry.
func (r *Reconciler) Reconcile(registry *Registry, current []string) Reconciliation {
	result := r.Plan(registry, current)
	r.Commit(registry, result)
	return result
}

// Plan computes the next symbol set without mutating registry. Every
// feature's previous contribution is retracted first. Then each feature, in
// registry order, records its declared symbols as the next contribution and
// adds them when enabled or strips them when disabled, so a later feature
// wins over an earlier one for a shared symbol.
func (r *Reconciler) Plan(registry *Registry, current []string) Reconciliation {
	base := NormalizeSymbols(current)
	working := symbolIndex(base)
	result := Reconciliation{
		contributions: make(map[string][]string, registry.Len()),
	}

	var appended []string
	if registry != nil {
		for _, feature := range registry.features {
			for _, symbol := range feature.contributed {
				delete(working, symbol)
			}
		}
		for _, feature := range registry.features {
			result.contributions[feature.Name] = cloneStrings(feature.Symbols)
			if !slices.Equal(feature.contributed, feature.Symbols) {
				result.MemoryChanged = true
			}
			if feature.enabled {
				for _, symbol := range feature.Symbols {
					working[symbol] = struct{}{}
					appended = append(appended, symbol)
				}
				continue
			}
			for _, symbol := range feature.Symbols {
				delete(working, symbol)
			}
		}
		result.Conflicts = findConflicts(registry)
	}

	emitted := make(map[string]struct{}, len(working))
	out := make([]string, 0, len(working))
	for _, symbol := range base {
		if _, ok := working[symbol]; !ok {
			result.Removed = append(result.Removed, symbol)
			continue
		}
		emitted[symbol] = struct{}{}
		out = append(out, symbol)
	}
	for _, symbol := range appended {
		if _, ok := working[symbol]; !ok {
			continue
		}
		if _, ok := emitted[symbol]; ok {
			continue
		}
		emitted[symbol] = struct{}{}
		out = append(out, symbol)
		result.Added = append(result.Added, symbol)
	}

	result.Symbols = NormalizeSymbols(out)
	result.Changed = len(result.Added) > 0 || len(result.Removed) > 0

	for _, conflict := range result.Conflicts {
		r.logger.LogDiagnostic(Diagnostic{
			Level:   DiagnosticWarn,
			Code:    CodeSymbolConflict,
			Feature: conflict.Winner,
			Message: "symbol declared by multiple features; " + conflict.String(),
			Fields:  map[string]any{"symbol": conflict.Symbol, "owners": conflict.Owners},
		})
	}
	return result
}

// Commit stores the contribution memory computed by Plan. Call it only once
// the planned symbol set has been written.
func (r *Reconciler) Commit(registry *Registry, result Reconciliation) {
	if registry == nil {
		return
	}
	registry.commitContributions(result.contributions)
}

func findConflicts(registry *Registry) []SymbolOwnershipConflict {
	owners := map[string][]string{}
	var order []string
	for _, feature := range registry.features {
		for _, symbol := range feature.Symbols {
			if _, seen := owners[symbol]; !seen {
				order = append(order, symbol)
			}
			owners[symbol] = append(owners[symbol], feature.Name)
		}
	}
	var conflicts []SymbolOwnershipConflict
	for _, symbol := range order {
		names := owners[symbol]
		if len(names) < 2 {
			continue
		}
		conflicts = append(conflicts, SymbolOwnershipConflict{
			Symbol: symbol,
			Owners: cloneStrings(names),
			Winner: names[len(names)-1],
		})
	}
	return conflicts
}
