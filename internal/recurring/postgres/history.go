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

type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

var _ recurring.HistoryRepositoryAPI = (*HistoryRepository)(nil)

func (r *HistoryRepository) List(ctx context.Context, templateID string, from *time.Time) ([]*recurringDatamodel.GenerationRecord, error) {
	query := r.db.WithContext(ctx).Where("template_id = ?", templateID)
	if from != nil {
		query = query.Where("occurrence_date >= ?", *from)
	}
	var records []*recurringDatamodel.GenerationRecord
	if err := query.Order("occurrence_date ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list history of template %s: %w", templateID, err)
	}
	return records, nil
}

func (r *HistoryRepository) Latest(ctx context.Context, templateID string) (*recurringDatamodel.GenerationRecord, error) {
	var record recurringDatamodel.GenerationRecord
	err := r.db.WithContext(ctx).
		Where("template_id = ?", templateID).
		Order("occurrence_date DESC").
		First(&record).Error
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest history of template %s: %w", templateID, err)
	}
	return &record, nil
}

func (r *HistoryRepository) OccurrenceDates(ctx context.Context, templateID string, from, to time.Time) ([]time.Time, error) {
	var records []*recurringDatamodel.GenerationRecord
	err := r.db.WithContext(ctx).
		Select("occurrence_date").
		Where("template_id = ? AND occurrence_date >= ? AND occurrence_date <= ?", templateID, from, to).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("occurrence dates of template %s: %w", templateID, err)
	}
	dates := make([]time.Time, len(records))
	for i, rec := range records {
		dates[i] = rec.OccurrenceDate
	}
	return dates, nil
}

func (r *HistoryRepository) Count(ctx context.Context, templateID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&recurringDatamodel.GenerationRecord{}).
		Where("template_id = ?", templateID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count history of template %s: %w", templateID, err)
	}
	return count, nil
}
