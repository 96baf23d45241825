package recurring

import (
	"context"
	"log/slog"
	"sort"
	"time"

	errors "github.com/frahmantamala/fleet-recurring/internal"
	"github.com/frahmantamala/fleet-recurring/internal/core/events"
)

// Corrector rewrites or removes entries a template has already produced. Paid
// entries are treated like any other generated entry.
type Corrector struct {
	templates  TemplateRepositoryAPI
	ledger     LedgerRepositoryAPI
	categories CategoryCheckerAPI
	locks      *TemplateLocks
	notifier   Notifier
	logger     *slog.Logger
	marker     string
}

func NewCorrector(templates TemplateRepositoryAPI, ledger LedgerRepositoryAPI, categories CategoryCheckerAPI, locks *TemplateLocks, notifier Notifier, logger *slog.Logger, marker string) *Corrector {
	if locks == nil {
		locks = NewTemplateLocks()
	}
	return &Corrector{
		templates:  templates,
		ledger:     ledger,
		categories: categories,
		locks:      locks,
		notifier:   notifier,
		logger:     logger,
		marker:     marker,
	}
}

// DeleteAllGenerated removes every entry the template produced, past ones included.
func (c *Corrector) DeleteAllGenerated(ctx context.Context, templateID string) (int, error) {
	return c.delete(ctx, templateID, nil)
}

// DeleteFuture removes the template's entries dated on or after from.
func (c *Corrector) DeleteFuture(ctx context.Context, templateID string, from time.Time) (int, error) {
	d := DateOf(from)
	return c.delete(ctx, templateID, &d)
}

func (c *Corrector) delete(ctx context.Context, templateID string, from *time.Time) (int, error) {
	unlock := c.locks.Lock(templateID)
	defer unlock()

	t, err := c.load(ctx, templateID)
	if err != nil {
		return 0, err
	}

	n, err := c.ledger.DeleteGenerated(ctx, templateID, from)
	if err != nil {
		c.logger.Error("failed to delete generated entries", "template_id", templateID, "error", err)
		return 0, errors.NewInternalError("Failed to delete generated entries", err)
	}

	if n > 0 {
		attrs := []any{"template_id", templateID, "deleted", n}
		if from != nil {
			attrs = append(attrs, "from", DateKey(*from))
		}
		c.logger.Info("generated entries deleted", attrs...)
		c.publish(ctx, events.NewEntriesDeletedEvent(templateID, t.OwnerID, int(n), from))
	}
	return int(n), nil
}

// UpdateFuture applies patch to the template's entries dated on or after from.
// The template itself is left unchanged.
func (c *Corrector) UpdateFuture(ctx context.Context, templateID string, from time.Time, patch EntryPatch) (int, error) {
	if err := patch.Validate(); err != nil {
		return 0, err
	}

	unlock := c.locks.Lock(templateID)
	defer unlock()

	t, err := c.load(ctx, templateID)
	if err != nil {
		return 0, err
	}
	if patch.CategoryID != nil && *patch.CategoryID != "" && c.categories != nil {
		if err := c.categories.Validate(ctx, *patch.CategoryID); err != nil {
			return 0, err
		}
	}

	from = DateOf(from)
	updates := patch.Columns(c.marker, time.Now())
	n, err := c.ledger.UpdateGenerated(ctx, templateID, from, updates)
	if err != nil {
		c.logger.Error("failed to update generated entries", "template_id", templateID, "error", err)
		return 0, errors.NewInternalError("Failed to update generated entries", err)
	}

	if n > 0 {
		fields := patchedFields(updates)
		c.logger.Info("generated entries updated",
			"template_id", templateID,
			"from", DateKey(from),
			"updated", n,
			"fields", fields)
		c.publish(ctx, events.NewEntriesUpdatedEvent(templateID, t.OwnerID, int(n), from, fields))
	}
	return int(n), nil
}

func (c *Corrector) load(ctx context.Context, templateID string) (*Template, error) {
	row, err := c.templates.GetByID(ctx, templateID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.ErrTemplateNotFound
		}
		return nil, errors.NewInternalError("Failed to load recurring template", err)
	}
	return FromDataModel(row), nil
}

func (c *Corrector) publish(ctx context.Context, ev events.Event) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Publish(ctx, ev); err != nil {
		c.logger.Warn("failed to publish recurring event", "event_type", ev.EventType(), "error", err)
	}
}

func patchedFields(updates map[string]interface{}) []string {
	fields := make([]string, 0, len(updates))
	for k := range updates {
		if k == "updated_at" {
			continue
		}
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
