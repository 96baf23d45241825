package recurring

import (
	"context"
	stdErrors "errors"
	"time"

	recurringDatamodel "github.com/frahmantamala/fleet-recurring/internal/core/datamodel/recurring"
)

// ErrAlreadyMaterialized is returned by LedgerRepositoryAPI.Materialize when the
// occurrence already has a history record. The engine counts it as covered.
var ErrAlreadyMaterialized = stdErrors.New("occurrence already materialized")

type TemplateRepositoryAPI interface {
	Create(ctx context.Context, t *recurringDatamodel.RecurringTemplate) error
	GetByID(ctx context.Context, id string) (*recurringDatamodel.RecurringTemplate, error)
	List(ctx context.Context, q TemplateQuery) ([]*recurringDatamodel.RecurringTemplate, error)
	Update(ctx context.Context, t *recurringDatamodel.RecurringTemplate) error
	SetActive(ctx context.Context, id string, active bool) error
	// Delete removes the template. With cascade its history records go in the
	// same transaction; ledger entries are kept.
	Delete(ctx context.Context, id string, cascade bool) error
}

type HistoryRepositoryAPI interface {
	// List returns records ordered by occurrence date, optionally from a date on.
	List(ctx context.Context, templateID string, from *time.Time) ([]*recurringDatamodel.GenerationRecord, error)
	// Latest returns nil, nil when the template has no history.
	Latest(ctx context.Context, templateID string) (*recurringDatamodel.GenerationRecord, error)
	OccurrenceDates(ctx context.Context, templateID string, from, to time.Time) ([]time.Time, error)
	Count(ctx context.Context, templateID string) (int64, error)
}

type LedgerRepositoryAPI interface {
	// Materialize inserts the entry and its history record atomically.
	Materialize(ctx context.Context, entry *recurringDatamodel.LedgerEntry, record *recurringDatamodel.GenerationRecord) error
	// DeleteGenerated removes generated entries and their records. A nil from
	// deletes the whole history.
	DeleteGenerated(ctx context.Context, templateID string, from *time.Time) (int64, error)
	UpdateGenerated(ctx context.Context, templateID string, from time.Time, updates map[string]interface{}) (int64, error)
}

// CategoryCheckerAPI confirms a category reference before it is stored.
type CategoryCheckerAPI interface {
	Validate(ctx context.Context, id string) error
}
