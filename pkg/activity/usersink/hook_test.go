package usersink_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-envflags/pkg/activity"
	"github.com/goliatone/go-envflags/pkg/activity/usersink"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

type recordingSink struct {
	records []usertypes.ActivityRecord
	err     error
}

func (s *recordingSink) Log(_ context.Context, record usertypes.ActivityRecord) error {
	s.records = append(s.records, record)
	return s.err
}

func TestHookNotifyMapsEvent(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	actorID := uuid.New()
	tenantID := uuid.New()

	event := activity.BuildEnvironmentAppliedEvent(activity.EnvironmentEventInput{
		ActorID:    actorID.String(),
		TenantID:   tenantID.String(),
		Channel:    "envflags",
		Variant:    "Dev",
		Summary:    "Dev config applied",
		OccurredAt: now,
	})

	if err := hook.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.records))
	}
	record := sink.records[0]
	if record.ActorID != actorID || record.UserID != actorID {
		t.Fatalf("expected actor %s as actor and user, got %s/%s", actorID, record.ActorID, record.UserID)
	}
	if record.TenantID != tenantID {
		t.Fatalf("expected tenant %s got %s", tenantID, record.TenantID)
	}
	if record.Verb != activity.VerbEnvironmentApplied || record.ObjectType != activity.ObjectEnvironment || record.ObjectID != "Dev" {
		t.Fatalf("unexpected record payload: %+v", record)
	}
	if !record.OccurredAt.Equal(now) {
		t.Fatalf("expected occurred_at %v got %v", now, record.OccurredAt)
	}
	if record.Data["summary"] != "Dev config applied" {
		t.Fatalf("expected summary passthrough got %v", record.Data["summary"])
	}
}

func TestHookNotifyKeepsNonUUIDActor(t *testing.T) {
	sink := &recordingSink{}
	userID := uuid.New()
	hook := usersink.Hook{Sink: sink, UserID: userID.String()}

	err := hook.Notify(context.Background(), activity.Event{
		Verb:       activity.VerbSymbolsUpdated,
		ObjectType: activity.ObjectSymbols,
		ObjectID:   activity.ObjectSymbols,
		ActorID:    "build-agent-7",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	record := sink.records[0]
	if record.ActorID != uuid.Nil || record.UserID != userID {
		t.Fatalf("unexpected ids %s/%s", record.ActorID, record.UserID)
	}
	if record.Data["actor"] != "build-agent-7" {
		t.Fatalf("expected actor name in payload, got %v", record.Data["actor"])
	}
}

func TestHookNotifySkipsInvalidEvents(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	_ = hook.Notify(context.Background(), activity.Event{})

	if len(sink.records) != 0 {
		t.Fatalf("expected no records for empty event, got %d", len(sink.records))
	}
}

func TestHookNotifyReturnsSinkError(t *testing.T) {
	sink := &recordingSink{err: errors.New("down")}
	hook := usersink.Hook{Sink: sink}

	err := hook.Notify(context.Background(), activity.Event{
		Verb:       activity.VerbFeatureToggled,
		ObjectType: activity.ObjectFeature,
		ObjectID:   "Logging",
	})
	if err == nil {
		t.Fatalf("expected sink error")
	}
	if sink.records[0].OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be defaulted")
	}
}
