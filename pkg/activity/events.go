package activity

import (
	"strings"
	"time"
)

const (
	VerbEnvironmentSelected = "environment.selected"
	VerbEnvironmentApplied  = "environment.applied"
	VerbSymbolsUpdated      = "symbols.updated"
	VerbFeatureToggled      = "feature.toggled"
)

const (
	ObjectEnvironment = "environment"
	ObjectSymbols     = "symbols"
	ObjectFeature     = "feature"
)

// EnvironmentEventInput carries the fields shared by orchestrator events.
type EnvironmentEventInput struct {
	ActorID       string
	TenantID      string
	Channel       string
	Variant       string
	Index         int
	PreviousIndex int
	Summary       string
	Added         []string
	Removed       []string
	Symbols       []string
	Metadata      map[string]any
	OccurredAt    time.Time
}

// FeatureEventInput describes a single feature state change.
type FeatureEventInput struct {
	ActorID    string
	TenantID   string
	Channel    string
	Variant    string
	Feature    string
	Enabled    bool
	Symbols    []string
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildEnvironmentSelectedEvent records a change of the active index.
func BuildEnvironmentSelectedEvent(input EnvironmentEventInput) Event {
	metadata := ensureMetadata(cloneMap(input.Metadata))
	metadata["index"] = input.Index
	metadata["previous_index"] = input.PreviousIndex
	return buildEnvironmentEvent(VerbEnvironmentSelected, input, metadata)
}

// BuildEnvironmentAppliedEvent records a completed apply.
func BuildEnvironmentAppliedEvent(input EnvironmentEventInput) Event {
	metadata := ensureMetadata(cloneMap(input.Metadata))
	metadata["index"] = input.Index
	if input.Summary != "" {
		metadata["summary"] = input.Summary
	}
	return buildEnvironmentEvent(VerbEnvironmentApplied, input, metadata)
}

// BuildSymbolsUpdatedEvent records a write to the external symbol set.
func BuildSymbolsUpdatedEvent(input EnvironmentEventInput) Event {
	metadata := ensureMetadata(cloneMap(input.Metadata))
	if input.Variant != "" {
		metadata["variant"] = strings.TrimSpace(input.Variant)
	}
	if len(input.Added) > 0 {
		metadata["added"] = cloneStrings(input.Added)
	}
	if len(input.Removed) > 0 {
		metadata["removed"] = cloneStrings(input.Removed)
	}
	if input.Symbols != nil {
		metadata["symbols"] = cloneStrings(input.Symbols)
	}
	return Event{
		Verb:       VerbSymbolsUpdated,
		ActorID:    input.ActorID,
		TenantID:   input.TenantID,
		ObjectType: ObjectSymbols,
		ObjectID:   ObjectSymbols,
		Channel:    input.Channel,
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

// BuildFeatureToggledEvent records a feature whose enabled state changed.
func BuildFeatureToggledEvent(input FeatureEventInput) Event {
	metadata := ensureMetadata(cloneMap(input.Metadata))
	metadata["enabled"] = input.Enabled
	if input.Variant != "" {
		metadata["variant"] = strings.TrimSpace(input.Variant)
	}
	if len(input.Symbols) > 0 {
		metadata["symbols"] = cloneStrings(input.Symbols)
	}
	return Event{
		Verb:       VerbFeatureToggled,
		ActorID:    input.ActorID,
		TenantID:   input.TenantID,
		ObjectType: ObjectFeature,
		ObjectID:   strings.TrimSpace(input.Feature),
		Channel:    input.Channel,
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func buildEnvironmentEvent(verb string, input EnvironmentEventInput, metadata map[string]any) Event {
	objectID := strings.TrimSpace(input.Variant)
	if objectID == "" {
		objectID = ObjectEnvironment
	}
	return Event{
		Verb:       verb,
		ActorID:    input.ActorID,
		TenantID:   input.TenantID,
		ObjectType: ObjectEnvironment,
		ObjectID:   objectID,
		Channel:    input.Channel,
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	return append([]string{}, src...)
}
