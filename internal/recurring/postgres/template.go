package postgres

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	errors "github.com/frahmantamala/fleet-recurring/internal"
	recurringDatamodel "github.com/frahmantamala/fleet-recurring/internal/core/datamodel/recurring"
	"github.com/frahmantamala/fleet-recurring/internal/recurring"
	"gorm.io/gorm"
)

type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

var _ recurring.TemplateRepositoryAPI = (*TemplateRepository)(nil)

func (r *TemplateRepository) Create(ctx context.Context, t *recurringDatamodel.RecurringTemplate) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create recurring template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*recurringDatamodel.RecurringTemplate, error) {
	var t recurringDatamodel.RecurringTemplate
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("get recurring template %s: %w", id, err)
	}
	return &t, nil
}

func (r *TemplateRepository) List(ctx context.Context, q recurring.TemplateQuery) ([]*recurringDatamodel.RecurringTemplate, error) {
	query := r.db.WithContext(ctx).Model(&recurringDatamodel.RecurringTemplate{})
	if q.OwnerID != "" {
		query = query.Where("owner_id = ?", q.OwnerID)
	}
	if q.Active != nil {
		query = query.Where("is_active = ?", *q.Active)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}

	var templates []*recurringDatamodel.RecurringTemplate
	if err := query.Order("created_at ASC").Order("id ASC").Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("list recurring templates: %w", err)
	}
	return templates, nil
}

func (r *TemplateRepository) Update(ctx context.Context, t *recurringDatamodel.RecurringTemplate) error {
	t.UpdatedAt = time.Now()
	res := r.db.WithContext(ctx).Save(t)
	if res.Error != nil {
		return fmt.Errorf("update recurring template %s: %w", t.ID, res.Error)
	}
	return nil
}

func (r *TemplateRepository) SetActive(ctx context.Context, id string, active bool) error {
	res := r.db.WithContext(ctx).Model(&recurringDatamodel.RecurringTemplate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("set recurring template %s active=%t: %w", id, active, res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.ErrTemplateNotFound
	}
	return nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id string, cascade bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cascade {
			if err := tx.Where("template_id = ?", id).Delete(&recurringDatamodel.GenerationRecord{}).Error; err != nil {
				return fmt.Errorf("delete history of template %s: %w", id, err)
			}
		}
		res := tx.Where("id = ?", id).Delete(&recurringDatamodel.RecurringTemplate{})
		if res.Error != nil {
			return fmt.Errorf("delete recurring template %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return errors.ErrTemplateNotFound
		}
		return nil
	})
}
