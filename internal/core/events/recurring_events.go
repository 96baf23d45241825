package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeTemplateCreated     = "recurring.template.created"
	EventTypeTemplateUpdated     = "recurring.template.updated"
	EventTypeTemplateDeleted     = "recurring.template.deleted"
	EventTypeTemplateActivated   = "recurring.template.activated"
	EventTypeTemplateDeactivated = "recurring.template.deactivated"
	EventTypeEntriesGenerated    = "recurring.entries.generated"
	EventTypeEntriesDeleted      = "recurring.entries.deleted"
	EventTypeEntriesUpdated      = "recurring.entries.updated"
)

// RecurringEvent is published for template lifecycle changes and for every
// operation that touches generated ledger entries.
type RecurringEvent struct {
	BaseEvent
	TemplateID string `json:"template_id"`
	OwnerID    string `json:"owner_id"`
	ActorID    string `json:"actor_id,omitempty"`
	Count      int    `json:"count"`
}

func newRecurringEvent(eventType, templateID, ownerID, actorID string, count int, extra map[string]interface{}) *RecurringEvent {
	data := map[string]interface{}{
		"template_id": templateID,
		"owner_id":    ownerID,
		"count":       count,
	}
	if actorID != "" {
		data["actor_id"] = actorID
	}
	for k, v := range extra {
		data[k] = v
	}
	return &RecurringEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data:      data,
		},
		TemplateID: templateID,
		OwnerID:    ownerID,
		ActorID:    actorID,
		Count:      count,
	}
}

func NewTemplateEvent(eventType, templateID, ownerID, actorID string) *RecurringEvent {
	return newRecurringEvent(eventType, templateID, ownerID, actorID, 0, nil)
}

func NewEntriesGeneratedEvent(templateID, ownerID string, created int, through time.Time) *RecurringEvent {
	return newRecurringEvent(EventTypeEntriesGenerated, templateID, ownerID, "", created, map[string]interface{}{
		"through": through.Format(time.DateOnly),
	})
}

// NewEntriesDeletedEvent covers both full and future-only deletions; from is nil
// for a full deletion.
func NewEntriesDeletedEvent(templateID, ownerID string, deleted int, from *time.Time) *RecurringEvent {
	extra := map[string]interface{}{}
	if from != nil {
		extra["from"] = from.Format(time.DateOnly)
	}
	return newRecurringEvent(EventTypeEntriesDeleted, templateID, ownerID, "", deleted, extra)
}

func NewEntriesUpdatedEvent(templateID, ownerID string, updated int, from time.Time, fields []string) *RecurringEvent {
	return newRecurringEvent(EventTypeEntriesUpdated, templateID, ownerID, "", updated, map[string]interface{}{
		"from":   from.Format(time.DateOnly),
		"fields": fields,
	})
}
