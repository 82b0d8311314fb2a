package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	envflags "github.com/goliatone/go-envflags"
	"github.com/goliatone/go-envflags/pkg/activity"
	"github.com/goliatone/go-envflags/pkg/document"
	"github.com/goliatone/go-envflags/pkg/state"
	"github.com/goliatone/go-envflags/pkg/symbolstore"
	"gopkg.in/yaml.v3"
)

const (
	defaultDocument    = "envflags.yaml"
	defaultSymbolsFile = "defines.txt"
	defaultStateDir    = ".envflags"
	stateDomain        = "envflags"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	document string
	symbols  string
	stateDir string
	sets     []string
	verbose  bool
	events   bool
}

type session struct {
	doc       *document.Document
	orch      *envflags.Orchestrator[envflags.MapVariant]
	persister *state.Persister[envflags.State]
}

// saveSelection persists the active environment after an apply that left
// both the define file and the contribution memory untouched.
func (s *session) saveSelection(ctx context.Context, result envflags.ApplyResult) error {
	if !result.Applied || result.Persisted {
		return nil
	}
	s.persister.MarkDirty()
	if err := s.persister.Persist(ctx); err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openSession loads the document, wires the orchestrator to the define file
// and the state directory, then restores the last persisted state.
func openSession(ctx context.Context, opts globalOptions, stderr io.Writer) (*session, error) {
	doc, err := document.Load(opts.document)
	if err != nil {
		return nil, err
	}
	overrides, err := parseOverrides(opts.sets)
	if err != nil {
		return nil, err
	}

	logger := newLogger(stderr, opts.verbose)
	registry, err := doc.Registry()
	if err != nil {
		return nil, err
	}
	scanner, err := doc.Scanner(envflags.WithRuleLogger(envflags.EvaluatorLoggerFunc(func(event envflags.EvaluatorLogEvent) {
		logger.Debug("rule evaluated", "feature", event.Feature, "engine", event.Engine, "duration", event.Duration, "error", event.Err)
	})))
	if err != nil {
		return nil, err
	}
	selector, err := envflags.NewSelector(doc.Variants(overrides), envflags.WithActiveIndex[envflags.MapVariant](doc.ActiveIndex()))
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(opts.document)
	symbolsPath := firstPath(base, opts.symbols, doc.SymbolsFile, defaultSymbolsFile)
	stateDir := firstPath(base, opts.stateDir, doc.StateDir, defaultStateDir)
	ref := state.Ref{
		Domain: stateDomain,
		Target: strings.TrimSuffix(filepath.Base(opts.document), filepath.Ext(opts.document)),
	}
	persister := state.NewPersister[envflags.State](state.NewFileStore[envflags.State](stateDir), ref)

	orchOpts := []envflags.Option{
		envflags.WithSymbolStore(symbolstore.NewFile(symbolsPath)),
		envflags.WithPersister(persister),
		envflags.WithLogger(envflags.NewSlogLogger(logger)),
	}
	if opts.events {
		orchOpts = append(orchOpts, envflags.WithActivityHooks(eventPrinter(stderr)))
	}
	orch, err := envflags.NewOrchestrator(selector, registry, envflags.NewBinder[envflags.MapVariant](scanner), orchOpts...)
	if err != nil {
		return nil, err
	}
	persister.SetSource(orch.State)

	saved, ok, err := persister.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if ok {
		if unknown := orch.Restore(saved); len(unknown) > 0 {
			logger.Warn("state references unknown features", "features", unknown)
		}
	}

	return &session{doc: doc, orch: orch, persister: persister}, nil
}

// firstPath returns the first non-empty candidate, relative paths resolved
// against base.
func firstPath(base string, candidates ...string) string {
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if filepath.IsAbs(candidate) {
			return candidate
		}
		return filepath.Join(base, candidate)
	}
	return base
}

// parseOverrides turns key=value pairs into an override layer. Values are
// decoded as YAML scalars so "true" and "3" keep their types.
func parseOverrides(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid override %q, expected key=value", pair)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("override %q: %w", key, err)
		}
		out[key] = value
	}
	return out, nil
}

func eventPrinter(w io.Writer) activity.ActivityHook {
	return activity.HookFunc(func(_ context.Context, event activity.Event) error {
		_, err := fmt.Fprintf(w, "event %s %s=%s\n", event.Verb, event.ObjectType, event.ObjectID)
		return err
	})
}
