package recurring

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecurringTemplate is a repeating financial obligation owned by a franchise.
type RecurringTemplate struct {
	ID           string          `gorm:"primaryKey;type:varchar(36)"`
	OwnerID      string          `gorm:"column:owner_id;type:varchar(64);not null;index"`
	Kind         string          `gorm:"column:kind;type:varchar(32);not null"`
	VehicleID    *string         `gorm:"column:vehicle_id;type:varchar(64)"`
	CategoryID   *string         `gorm:"column:category_id;type:varchar(36)"`
	Counterparty *string         `gorm:"column:counterparty;type:varchar(255)"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	Description  string          `gorm:"column:description;type:varchar(500);not null"`
	Frequency    string          `gorm:"column:frequency;type:varchar(16);not null"`
	DueDay       *int            `gorm:"column:due_day"`
	StartDate    time.Time       `gorm:"column:start_date;type:date;not null"`
	EndDate      *time.Time      `gorm:"column:end_date;type:date"`
	IsActive     bool            `gorm:"column:is_active;not null"`
	CreatedBy    string          `gorm:"column:created_by;type:varchar(64)"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (RecurringTemplate) TableName() string {
	return "recurring_templates"
}

// LedgerEntry is a row of the finance ledger. The table is shared with the rest of
// the backend; the engine only inserts, patches and deletes generated rows.
type LedgerEntry struct {
	ID             string          `gorm:"primaryKey;type:varchar(36)"`
	OwnerID        string          `gorm:"column:owner_id;type:varchar(64);not null;index"`
	Kind           string          `gorm:"column:kind;type:varchar(32);not null"`
	Amount         decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	OccurrenceDate time.Time       `gorm:"column:occurrence_date;type:date;not null;index"`
	Description    string          `gorm:"column:description;type:varchar(600);not null"`
	IsPaid         bool            `gorm:"column:is_paid;not null"`
	VehicleID      *string         `gorm:"column:vehicle_id;type:varchar(64)"`
	CategoryID     *string         `gorm:"column:category_id;type:varchar(36)"`
	Counterparty   *string         `gorm:"column:counterparty;type:varchar(255)"`
	CreatedBy      string          `gorm:"column:created_by;type:varchar(64)"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// GenerationRecord links a template to one ledger entry it produced.
// (template_id, occurrence_date) is unique: one entry per template per occurrence.
type GenerationRecord struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)"`
	TemplateID     string    `gorm:"column:template_id;type:varchar(36);not null;uniqueIndex:idx_generation_template_date,priority:1"`
	EntryID        string    `gorm:"column:entry_id;type:varchar(36);not null;uniqueIndex:idx_generation_entry"`
	OccurrenceDate time.Time `gorm:"column:occurrence_date;type:date;not null;uniqueIndex:idx_generation_template_date,priority:2"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (GenerationRecord) TableName() string {
	return "recurring_generations"
}
