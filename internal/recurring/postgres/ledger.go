package postgres

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	recurringDatamodel "github.com/frahmantamala/fleet-recurring/internal/core/datamodel/recurring"
	"github.com/frahmantamala/fleet-recurring/internal/recurring"
	"gorm.io/gorm"
)

// LedgerRepository writes generated ledger entries together with their history
// records. Every method runs in one transaction so an entry never exists
// without its record and the other way round.
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

var _ recurring.LedgerRepositoryAPI = (*LedgerRepository)(nil)

func (r *LedgerRepository) Materialize(ctx context.Context, entry *recurringDatamodel.LedgerEntry, record *recurringDatamodel.GenerationRecord) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("insert generation record: %w", err)
		}
		return nil
	})
	if stdErrors.Is(err, gorm.ErrDuplicatedKey) {
		return recurring.ErrAlreadyMaterialized
	}
	return err
}

func (r *LedgerRepository) DeleteGenerated(ctx context.Context, templateID string, from *time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := generatedEntryIDs(tx, templateID, from)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("entry_id IN ?", ids).Delete(&recurringDatamodel.GenerationRecord{}).Error; err != nil {
			return fmt.Errorf("delete generation records: %w", err)
		}
		res := tx.Where("id IN ?", ids).Delete(&recurringDatamodel.LedgerEntry{})
		if res.Error != nil {
			return fmt.Errorf("delete ledger entries: %w", res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (r *LedgerRepository) UpdateGenerated(ctx context.Context, templateID string, from time.Time, updates map[string]interface{}) (int64, error) {
	var updated int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := generatedEntryIDs(tx, templateID, &from)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		res := tx.Model(&recurringDatamodel.LedgerEntry{}).Where("id IN ?", ids).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update ledger entries: %w", res.Error)
		}
		updated = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// generatedEntryIDs returns the entries linked to the template. With from set
// only entries dated on or after it are returned; the date is taken from the
// entry itself.
func generatedEntryIDs(tx *gorm.DB, templateID string, from *time.Time) ([]string, error) {
	var ids []string
	query := tx.Table("recurring_generations AS g").Where("g.template_id = ?", templateID)
	if from != nil {
		query = query.
			Joins("JOIN ledger_entries AS e ON e.id = g.entry_id").
			Where("e.occurrence_date >= ?", *from)
	}
	if err := query.Pluck("g.entry_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("find generated entries of template %s: %w", templateID, err)
	}
	return ids, nil
}
