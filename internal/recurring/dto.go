package recurring

import (
	"sort"
	"time"

	errors "github.com/frahmantamala/fleet-recurring/internal"
	"github.com/frahmantamala/fleet-recurring/internal/core/common/validation"
	"github.com/shopspring/decimal"
)

// CreateTemplateDTO represents the request payload for creating a recurring template.
// Dates are YYYY-MM-DD strings so malformed input surfaces as a validation error.
type CreateTemplateDTO struct {
	OwnerID      string          `json:"owner_id,omitempty"`
	Kind         string          `json:"kind"`
	VehicleID    *string         `json:"vehicle_id,omitempty"`
	CategoryID   *string         `json:"category_id,omitempty"`
	Counterparty *string         `json:"counterparty,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	Frequency    string          `json:"frequency"`
	DueDay       *int            `json:"due_day,omitempty"`
	StartDate    string          `json:"start_date"`
	EndDate      *string         `json:"end_date,omitempty"`
	Active       *bool           `json:"active,omitempty"`
}

// UpdateTemplateDTO is a partial update; nil fields are left untouched and an empty
// string clears an optional reference.
type UpdateTemplateDTO struct {
	Kind         *string          `json:"kind,omitempty"`
	VehicleID    *string          `json:"vehicle_id,omitempty"`
	CategoryID   *string          `json:"category_id,omitempty"`
	Counterparty *string          `json:"counterparty,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Description  *string          `json:"description,omitempty"`
	Frequency    *string          `json:"frequency,omitempty"`
	DueDay       *int             `json:"due_day,omitempty"`
	ClearDueDay  bool             `json:"clear_due_day,omitempty"`
	StartDate    *string          `json:"start_date,omitempty"`
	EndDate      *string          `json:"end_date,omitempty"`
	ClearEndDate bool             `json:"clear_end_date,omitempty"`
}

// ListFilter narrows a scoped template listing.
type ListFilter struct {
	Active *bool
	Limit  int
	Offset int
}

// TemplateQuery is the repository-level query built from a scope and a ListFilter.
type TemplateQuery struct {
	OwnerID string
	Active  *bool
	Limit   int
	Offset  int
}

// EntryPatch is applied by UpdateFuture to already generated ledger entries.
type EntryPatch struct {
	Kind         *string          `json:"kind,omitempty"`
	VehicleID    *string          `json:"vehicle_id,omitempty"`
	CategoryID   *string          `json:"category_id,omitempty"`
	Counterparty *string          `json:"counterparty,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Description  *string          `json:"description,omitempty"`
}

func (p EntryPatch) IsEmpty() bool {
	return p.Kind == nil && p.VehicleID == nil && p.CategoryID == nil &&
		p.Counterparty == nil && p.Amount == nil && p.Description == nil
}

func (p EntryPatch) Validate() error {
	if p.IsEmpty() {
		return errors.NewValidationError("patch must set at least one field", errors.ErrCodeValidationFailed)
	}
	v := validation.NewValidator()
	if p.Kind != nil {
		v.Field("kind", *p.Kind).Required().MaxLength(32)
	}
	if p.Amount != nil {
		v.Field("amount", *p.Amount).PositiveDecimal()
	}
	if p.Description != nil {
		v.Field("description", *p.Description).Required().MaxLength(500)
	}
	v.Field("counterparty", p.Counterparty).MaxLength(255)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// Columns maps the patch onto ledger_entries columns. The generated marker is
// appended to a new description so patched rows stay recognizable.
func (p EntryPatch) Columns(marker string, now time.Time) map[string]interface{} {
	updates := map[string]interface{}{
		"updated_at": now,
	}
	if p.Kind != nil {
		updates["kind"] = *p.Kind
	}
	if p.VehicleID != nil {
		updates["vehicle_id"] = emptyToNil(*p.VehicleID)
	}
	if p.CategoryID != nil {
		updates["category_id"] = emptyToNil(*p.CategoryID)
	}
	if p.Counterparty != nil {
		updates["counterparty"] = emptyToNil(*p.Counterparty)
	}
	if p.Amount != nil {
		updates["amount"] = *p.Amount
	}
	if p.Description != nil {
		updates["description"] = *p.Description + marker
	}
	return updates
}

type TemplateResult struct {
	TemplateID string `json:"template_id"`
	Created    int    `json:"created"`
}

type BatchFailure struct {
	TemplateID string          `json:"template_id"`
	Code       errors.ErrorCode `json:"code,omitempty"`
	Error      string          `json:"error"`
}

// BatchResult is the outcome of GenerateAll. Failures never abort the batch; the
// caller decides whether a non-empty Failures list is an overall failure.
type BatchResult struct {
	Through      time.Time        `json:"through"`
	TotalCreated int              `json:"total_created"`
	Results      []TemplateResult `json:"results"`
	Failures     []BatchFailure   `json:"failures"`
}

func (r *BatchResult) HasFailures() bool {
	return len(r.Failures) > 0
}

func (r *BatchResult) sort() {
	sort.Slice(r.Results, func(i, j int) bool { return r.Results[i].TemplateID < r.Results[j].TemplateID })
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].TemplateID < r.Failures[j].TemplateID })
}

type GenerateRequest struct {
	Through string `json:"through"`
}

type GenerateResponse struct {
	TemplateID string `json:"template_id"`
	Created    int    `json:"created"`
}

type DeletedResponse struct {
	TemplateID string `json:"template_id"`
	Deleted    int    `json:"deleted"`
}

type UpdatedResponse struct {
	TemplateID string `json:"template_id"`
	Updated    int    `json:"updated"`
}

type UpdateFutureRequest struct {
	From  string     `json:"from"`
	Patch EntryPatch `json:"patch"`
}

type SetActiveRequest struct {
	Active *bool `json:"active"`
}

type TemplatesResponse struct {
	Templates []*Template `json:"templates"`
}

type HistoryResponse struct {
	TemplateID  string        `json:"template_id"`
	Generations []*Generation `json:"generations"`
}
