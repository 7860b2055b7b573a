package usersink_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-matdb/pkg/activity"
	"github.com/goliatone/go-matdb/pkg/activity/usersink"
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

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	actorID := uuid.New()
	userID := uuid.New()
	tenantID := uuid.New()

	event := activity.Event{
		Verb:           "parameter.updated",
		ActorID:        actorID.String(),
		UserID:         userID.String(),
		TenantID:       tenantID.String(),
		ObjectType:     "material.parameter",
		ObjectID:       "copper",
		Channel:        "matdb",
		DefinitionCode: "parameter:update",
		Recipients:     []string{"curator@example.com"},
		Metadata: map[string]any{
			"parameter": "density",
			"reference": "ashby2011",
		},
		OccurredAt: now,
	}

	if err := hook.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.records))
	}
	record := sink.records[0]
	if record.ActorID != actorID {
		t.Fatalf("expected actor %s got %s", actorID, record.ActorID)
	}
	if record.UserID != userID {
		t.Fatalf("expected user %s got %s", userID, record.UserID)
	}
	if record.TenantID != tenantID {
		t.Fatalf("expected tenant %s got %s", tenantID, record.TenantID)
	}
	if record.Verb != "parameter.updated" || record.ObjectType != "material.parameter" || record.ObjectID != "copper" {
		t.Fatalf("unexpected record payload: %+v", record)
	}
	if record.Channel != "matdb" {
		t.Fatalf("expected channel matdb got %q", record.Channel)
	}
	if record.OccurredAt != now {
		t.Fatalf("expected occurred_at %v got %v", now, record.OccurredAt)
	}
	if record.Data["definition_code"] != "parameter:update" {
		t.Fatalf("expected definition_code metadata got %v", record.Data["definition_code"])
	}
	if record.Data["parameter"] != "density" || record.Data["reference"] != "ashby2011" {
		t.Fatalf("expected metadata passthrough got %v", record.Data)
	}
	recipients, ok := record.Data["recipients"].([]string)
	if !ok || len(recipients) != 1 || recipients[0] != "curator@example.com" {
		t.Fatalf("expected recipients metadata got %v", record.Data["recipients"])
	}
}

func TestHookNotifySkipsMissingVerb(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	if err := hook.Notify(context.Background(), activity.Event{
		ObjectType: "material",
		ObjectID:   "copper",
	}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sink.records) != 0 {
		t.Fatalf("expected skip, got %d records", len(sink.records))
	}
}

func TestHookNotifyInvalidIDsFallBackToNil(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	if err := hook.Notify(context.Background(), activity.Event{
		Verb:       "material.loaded",
		ActorID:    "not-a-uuid",
		ObjectType: "material",
		ObjectID:   "copper",
	}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.records))
	}
	if sink.records[0].ActorID != uuid.Nil {
		t.Fatalf("expected nil actor uuid, got %s", sink.records[0].ActorID)
	}
}

func TestHookNotifyNilSink(t *testing.T) {
	hook := usersink.Hook{}
	if err := hook.Notify(context.Background(), activity.Event{
		Verb:       "material.loaded",
		ObjectType: "material",
		ObjectID:   "copper",
	}); err != nil {
		t.Fatalf("expected nil sink to be a no-op, got %v", err)
	}
}
