package usersink

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-envflags/pkg/activity"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

// Hook forwards environment activity to a go-users ActivitySink so applies
// show up in the same audit trail as user actions.
type Hook struct {
	Sink usertypes.ActivitySink
	// UserID is recorded on every entry when the event does not name an actor.
	UserID string
}

// Notify maps the event into an ActivityRecord and forwards it to the sink.
func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil {
		return nil
	}

	normalized := activity.NormalizeEvent(event)
	if !normalized.Valid() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	actor := parseUUID(normalized.ActorID)
	user := parseUUID(h.UserID)
	if user == uuid.Nil {
		user = actor
	}

	record := usertypes.ActivityRecord{
		ActorID:    actor,
		UserID:     user,
		TenantID:   parseUUID(normalized.TenantID),
		Verb:       normalized.Verb,
		ObjectType: normalized.ObjectType,
		ObjectID:   normalized.ObjectID,
		Channel:    normalized.Channel,
		Data:       normalized.Metadata,
		OccurredAt: normalized.OccurredAt,
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now()
	}
	if actor == uuid.Nil && normalized.ActorID != "" {
		// Non-UUID actors (CI job names, hostnames) are kept in the payload.
		if record.Data == nil {
			record.Data = map[string]any{}
		}
		record.Data["actor"] = normalized.ActorID
	}

	return h.Sink.Log(ctx, record)
}

func parseUUID(input string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return uuid.Nil
	}
	return id
}
