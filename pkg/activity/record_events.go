package activity

import (
	"strings"
	"time"
)

// SourceContext captures source metadata associated with a record snapshot.
type SourceContext struct {
	Name       string
	Label      string
	Priority   int
	Metadata   map[string]any
	SnapshotID string
}

// RecordEventInput describes the common fields for record lifecycle events.
type RecordEventInput struct {
	ActorID        string
	UserID         string
	TenantID       string
	Material       string
	Channel        string
	DefinitionCode string
	Recipients     []string
	Metadata       map[string]any
	Parameter      string
	Reference      string
	OldValue       any
	NewValue       any
	Source         SourceContext
	OccurredAt     time.Time
}

// BuildMaterialLoadedEvent constructs a normalized activity event for a
// material load.
func BuildMaterialLoadedEvent(input RecordEventInput) Event {
	return buildRecordEvent("material.loaded", "material", input)
}

// BuildParameterAddedEvent constructs a normalized activity event for a
// parameter attachment.
func BuildParameterAddedEvent(input RecordEventInput) Event {
	return buildRecordEvent("parameter.added", "material.parameter", input)
}

// BuildParameterUpdatedEvent constructs a normalized activity event for a
// parameter value update.
func BuildParameterUpdatedEvent(input RecordEventInput) Event {
	return buildRecordEvent("parameter.updated", "material.parameter", input)
}

// BuildRecordDumpedEvent constructs a normalized activity event for a record
// serialization.
func BuildRecordDumpedEvent(input RecordEventInput) Event {
	return buildRecordEvent("record.dumped", "material", input)
}

func buildRecordEvent(verb, objectType string, input RecordEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if input.Parameter != "" {
		metadata = ensureMetadata(metadata)
		metadata["parameter"] = input.Parameter
	}
	if input.Reference != "" {
		metadata = ensureMetadata(metadata)
		metadata["reference"] = input.Reference
	}
	if input.Source.Name != "" {
		metadata = ensureMetadata(metadata)
		metadata["source_name"] = input.Source.Name
		metadata["source_priority"] = input.Source.Priority
		if input.Source.Label != "" {
			metadata["source_label"] = input.Source.Label
		}
		if len(input.Source.Metadata) > 0 {
			metadata["source_metadata"] = cloneMap(input.Source.Metadata)
		}
	}
	if input.Source.SnapshotID != "" {
		metadata = ensureMetadata(metadata)
		metadata["snapshot_id"] = input.Source.SnapshotID
	}
	if input.OldValue != nil {
		metadata = ensureMetadata(metadata)
		metadata["old_value"] = input.OldValue
	}
	if input.NewValue != nil {
		metadata = ensureMetadata(metadata)
		metadata["new_value"] = input.NewValue
	}

	recipients := input.Recipients
	if len(recipients) > 0 {
		recipients = append([]string{}, input.Recipients...)
	}

	objectID := strings.TrimSpace(input.Material)
	if objectID == "" {
		objectID = strings.TrimSpace(input.Parameter)
	}
	if objectID == "" {
		objectID = strings.TrimSpace(input.Source.SnapshotID)
	}
	if objectID == "" {
		objectID = objectType
	}

	return Event{
		Verb:           verb,
		ActorID:        strings.TrimSpace(input.ActorID),
		UserID:         strings.TrimSpace(input.UserID),
		TenantID:       strings.TrimSpace(input.TenantID),
		ObjectType:     objectType,
		ObjectID:       objectID,
		Channel:        strings.TrimSpace(input.Channel),
		DefinitionCode: strings.TrimSpace(input.DefinitionCode),
		Recipients:     recipients,
		Metadata:       metadata,
		OccurredAt:     input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
