// Package audit records recurring changes as structured audit lines.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/fleet-recurring/internal/core/events"
)

// Record is one audited change.
type Record struct {
	EventID    string
	EventType  string
	OccurredAt time.Time
	TemplateID string
	OwnerID    string
	ActorID    string
	Count      int
	Data       map[string]interface{}
}

type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// LogSink writes audit records through slog under the "audit" group.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.WithGroup("audit")}
}

func (s *LogSink) Write(ctx context.Context, rec Record) error {
	attrs := []any{
		"event_id", rec.EventID,
		"event_type", rec.EventType,
		"occurred_at", rec.OccurredAt.UTC().Format(time.RFC3339),
		"template_id", rec.TemplateID,
		"owner_id", rec.OwnerID,
		"count", rec.Count,
	}
	if rec.ActorID != "" {
		attrs = append(attrs, "actor_id", rec.ActorID)
	}
	if from, ok := rec.Data["from"]; ok {
		attrs = append(attrs, "from", from)
	}
	if through, ok := rec.Data["through"]; ok {
		attrs = append(attrs, "through", through)
	}
	s.logger.InfoContext(ctx, "recurring change", attrs...)
	return nil
}

// FromEvent converts a bus event into an audit record.
func FromEvent(e events.Event) Record {
	rec := Record{
		EventID:    e.EventID(),
		EventType:  e.EventType(),
		OccurredAt: e.OccurredAt(),
	}
	if data, ok := e.Payload().(map[string]interface{}); ok {
		rec.Data = data
	}
	if re, ok := e.(*events.RecurringEvent); ok {
		rec.TemplateID = re.TemplateID
		rec.OwnerID = re.OwnerID
		rec.ActorID = re.ActorID
		rec.Count = re.Count
	}
	return rec
}

// Subscribe forwards every event published on bus to sink.
func Subscribe(bus *events.EventBus, sink Sink) {
	bus.SubscribeAll(func(ctx context.Context, e events.Event) error {
		return sink.Write(ctx, FromEvent(e))
	})
}
