package activity

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestNormalizeEventTrimsClonesAndDefaults(t *testing.T) {
	meta := map[string]any{"k": "v"}
	evt := Event{
		Verb:       " environment.applied ",
		ActorID:    " actor ",
		TenantID:   " tenant ",
		ObjectType: " environment ",
		ObjectID:   " Dev ",
		Channel:    " envflags ",
		Metadata:   meta,
	}

	got := NormalizeEvent(evt)

	if got.Verb != "environment.applied" || got.ObjectType != "environment" || got.ObjectID != "Dev" {
		t.Fatalf("unexpected normalized fields: %+v", got)
	}
	if got.ActorID != "actor" || got.TenantID != "tenant" || got.Channel != "envflags" {
		t.Fatalf("unexpected trimming: %+v", got)
	}
	if got.OccurredAt.IsZero() {
		t.Fatalf("expected OccurredAt to be set")
	}
	got.Metadata["k"] = "changed"
	if evt.Metadata["k"] != "v" {
		t.Fatalf("expected original metadata untouched: %+v", evt.Metadata)
	}
}

func TestHooksNotifyShortCircuitsMissingRequired(t *testing.T) {
	capture := &CaptureHook{}
	hooks := Hooks{capture}
	if err := hooks.Notify(context.Background(), Event{Verb: "x"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events) != 0 {
		t.Fatalf("expected no events captured, got %d", len(capture.Events))
	}
}

func TestHooksNotifyFanOutAndJoinErrors(t *testing.T) {
	capture := &CaptureHook{}
	boom1 := errors.New("boom1")
	boom2 := errors.New("boom2")
	var ctxSeen bool
	hooks := Hooks{
		HookFunc(func(ctx context.Context, _ Event) error {
			ctxSeen = ctx != nil
			return nil
		}),
		capture,
		HookFunc(func(context.Context, Event) error { return boom1 }),
		nil,
		HookFunc(func(context.Context, Event) error { return boom2 }),
	}

	err := hooks.Notify(nil, Event{Verb: VerbSymbolsUpdated, ObjectType: ObjectSymbols, ObjectID: ObjectSymbols})
	if !errors.Is(err, boom1) || !errors.Is(err, boom2) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !ctxSeen {
		t.Fatalf("expected context fallback to be non-nil")
	}
	if len(capture.Events) != 1 {
		t.Fatalf("expected event to be captured once, got %d", len(capture.Events))
	}
}

func TestEmitterDisabledAndEnabled(t *testing.T) {
	capture := &CaptureHook{}
	event := Event{Verb: VerbEnvironmentApplied, ObjectType: ObjectEnvironment, ObjectID: "Dev"}

	disabled := NewEmitter(Hooks{capture}, Config{Enabled: false})
	if disabled.Enabled() {
		t.Fatalf("expected emitter to be disabled")
	}
	if err := disabled.Emit(context.Background(), event); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events) != 0 {
		t.Fatalf("expected no events captured when disabled")
	}

	enabled := NewEmitter(Hooks{capture}, Config{Enabled: true, ActorID: "ci"})
	if err := enabled.Emit(context.Background(), event); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(capture.Events) != 1 {
		t.Fatalf("expected one event captured, got %d", len(capture.Events))
	}
	if capture.Events[0].Channel != DefaultChannel || capture.Events[0].ActorID != "ci" {
		t.Fatalf("expected defaults applied, got %+v", capture.Events[0])
	}
}

func TestEmitterPreservesExplicitFields(t *testing.T) {
	capture := &CaptureHook{}
	emitter := NewEmitter(Hooks{capture}, Config{Enabled: true, Channel: "default", ActorID: "ci"})
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := emitter.Emit(context.Background(), Event{
		Verb:       VerbEnvironmentApplied,
		ObjectType: ObjectEnvironment,
		ObjectID:   "Prod",
		Channel:    "custom",
		ActorID:    "dev",
		OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	got := capture.Events[0]
	if got.Channel != "custom" || got.ActorID != "dev" || !got.OccurredAt.Equal(at) {
		t.Fatalf("expected explicit fields preserved, got %+v", got)
	}
}

func TestEmitAllStopsAtFirstFailure(t *testing.T) {
	capture := &CaptureHook{Err: errors.New("sink down")}
	emitter := NewEmitter(Hooks{capture}, Config{Enabled: true})

	err := emitter.EmitAll(context.Background(),
		Event{Verb: VerbFeatureToggled, ObjectType: ObjectFeature, ObjectID: "Logging"},
		Event{Verb: VerbEnvironmentApplied, ObjectType: ObjectEnvironment, ObjectID: "Dev"},
	)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !slices.Equal(capture.Verbs(), []string{VerbFeatureToggled}) {
		t.Fatalf("expected emission to stop after first failure, got %v", capture.Verbs())
	}
}
