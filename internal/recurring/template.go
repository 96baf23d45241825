package recurring

import (
	"time"

	"github.com/frahmantamala/fleet-recurring/internal/core/common/validation"
	recurringDatamodel "github.com/frahmantamala/fleet-recurring/internal/core/datamodel/recurring"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Template struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"`
	Kind         string          `json:"kind"`
	VehicleID    *string         `json:"vehicle_id,omitempty"`
	CategoryID   *string         `json:"category_id,omitempty"`
	Counterparty *string         `json:"counterparty,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	Frequency    Frequency       `json:"frequency"`
	DueDay       *int            `json:"due_day,omitempty"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      *time.Time      `json:"end_date,omitempty"`
	Active       bool            `json:"active"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (t *Template) Rule() Rule {
	return Rule{
		Frequency: t.Frequency,
		DueDay:    t.DueDay,
		Start:     t.StartDate,
		End:       t.EndDate,
	}
}

// Validate checks the financial terms and the recurrence rule together.
func (t *Template) Validate() error {
	v := validation.NewValidator()
	v.Field("owner_id", t.OwnerID).Required()
	v.Field("kind", t.Kind).Required().MaxLength(32)
	v.Field("amount", t.Amount).PositiveDecimal()
	v.Field("description", t.Description).Required().MaxLength(500)
	v.Field("counterparty", t.Counterparty).MaxLength(255)
	if err := v.Validate(); err != nil {
		return err
	}
	return t.Rule().Validate()
}

func (t *Template) Activate() {
	t.Active = true
	t.UpdatedAt = time.Now()
}

func (t *Template) Deactivate() {
	t.Active = false
	t.UpdatedAt = time.Now()
}

// Apply merges a partial update into the template. The result is not validated.
func (t *Template) Apply(dto UpdateTemplateDTO) error {
	if dto.StartDate != nil {
		start, err := validation.ParseDate("start_date", *dto.StartDate)
		if err != nil {
			return err
		}
		t.StartDate = start
	}
	if dto.EndDate != nil && *dto.EndDate != "" {
		end, err := validation.ParseDate("end_date", *dto.EndDate)
		if err != nil {
			return err
		}
		t.EndDate = &end
	}
	if dto.Kind != nil {
		t.Kind = *dto.Kind
	}
	if dto.VehicleID != nil {
		t.VehicleID = emptyToNil(*dto.VehicleID)
	}
	if dto.CategoryID != nil {
		t.CategoryID = emptyToNil(*dto.CategoryID)
	}
	if dto.Counterparty != nil {
		t.Counterparty = emptyToNil(*dto.Counterparty)
	}
	if dto.Amount != nil {
		t.Amount = *dto.Amount
	}
	if dto.Description != nil {
		t.Description = *dto.Description
	}
	if dto.Frequency != nil {
		t.Frequency = Frequency(*dto.Frequency)
	}
	if dto.ClearDueDay {
		t.DueDay = nil
	} else if dto.DueDay != nil {
		day := *dto.DueDay
		t.DueDay = &day
	}
	if dto.ClearEndDate {
		t.EndDate = nil
	}
	t.UpdatedAt = time.Now()
	return nil
}

// Materialize builds the ledger entry and its history row for one occurrence,
// copying the template's current terms.
func (t *Template) Materialize(occurrence time.Time, marker string) (*recurringDatamodel.LedgerEntry, *recurringDatamodel.GenerationRecord) {
	entryID := uuid.NewString()
	occurrence = DateOf(occurrence)
	entry := &recurringDatamodel.LedgerEntry{
		ID:             entryID,
		OwnerID:        t.OwnerID,
		Kind:           t.Kind,
		Amount:         t.Amount,
		OccurrenceDate: occurrence,
		Description:    t.Description + marker,
		VehicleID:      copyString(t.VehicleID),
		CategoryID:     copyString(t.CategoryID),
		Counterparty:   copyString(t.Counterparty),
		CreatedBy:      t.CreatedBy,
	}
	record := &recurringDatamodel.GenerationRecord{
		ID:             uuid.NewString(),
		TemplateID:     t.ID,
		EntryID:        entryID,
		OccurrenceDate: occurrence,
	}
	return entry, record
}

func NewTemplate(ownerID, createdBy string, dto CreateTemplateDTO) (*Template, error) {
	start, err := validation.ParseDate("start_date", dto.StartDate)
	if err != nil {
		return nil, err
	}
	var end *time.Time
	if dto.EndDate != nil && *dto.EndDate != "" {
		e, err := validation.ParseDate("end_date", *dto.EndDate)
		if err != nil {
			return nil, err
		}
		end = &e
	}

	now := time.Now()
	t := &Template{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Kind:         dto.Kind,
		VehicleID:    emptyToNil(deref(dto.VehicleID)),
		CategoryID:   emptyToNil(deref(dto.CategoryID)),
		Counterparty: emptyToNil(deref(dto.Counterparty)),
		Amount:       dto.Amount,
		Description:  dto.Description,
		Frequency:    Frequency(dto.Frequency),
		DueDay:       dto.DueDay,
		StartDate:    start,
		EndDate:      end,
		Active:       true,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if dto.Active != nil {
		t.Active = *dto.Active
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func ToDataModel(t *Template) *recurringDatamodel.RecurringTemplate {
	return &recurringDatamodel.RecurringTemplate{
		ID:           t.ID,
		OwnerID:      t.OwnerID,
		Kind:         t.Kind,
		VehicleID:    t.VehicleID,
		CategoryID:   t.CategoryID,
		Counterparty: t.Counterparty,
		Amount:       t.Amount,
		Description:  t.Description,
		Frequency:    string(t.Frequency),
		DueDay:       t.DueDay,
		StartDate:    DateOf(t.StartDate),
		EndDate:      dateOfPtr(t.EndDate),
		IsActive:     t.Active,
		CreatedBy:    t.CreatedBy,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func FromDataModel(t *recurringDatamodel.RecurringTemplate) *Template {
	return &Template{
		ID:           t.ID,
		OwnerID:      t.OwnerID,
		Kind:         t.Kind,
		VehicleID:    t.VehicleID,
		CategoryID:   t.CategoryID,
		Counterparty: t.Counterparty,
		Amount:       t.Amount,
		Description:  t.Description,
		Frequency:    Frequency(t.Frequency),
		DueDay:       t.DueDay,
		StartDate:    DateOf(t.StartDate),
		EndDate:      dateOfPtr(t.EndDate),
		Active:       t.IsActive,
		CreatedBy:    t.CreatedBy,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func FromDataModelSlice(rows []*recurringDatamodel.RecurringTemplate) []*Template {
	result := make([]*Template, len(rows))
	for i, r := range rows {
		result[i] = FromDataModel(r)
	}
	return result
}

// Generation is one row of the history ledger.
type Generation struct {
	ID             string    `json:"id"`
	TemplateID     string    `json:"template_id"`
	EntryID        string    `json:"entry_id"`
	OccurrenceDate time.Time `json:"occurrence_date"`
	CreatedAt      time.Time `json:"created_at"`
}

func generationFromDataModel(r *recurringDatamodel.GenerationRecord) *Generation {
	return &Generation{
		ID:             r.ID,
		TemplateID:     r.TemplateID,
		EntryID:        r.EntryID,
		OccurrenceDate: DateOf(r.OccurrenceDate),
		CreatedAt:      r.CreatedAt,
	}
}

func emptyToNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func dateOfPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := DateOf(*t)
	return &d
}
