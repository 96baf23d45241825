package recurring

import (
	"context"
	"time"
)

// History is the read side of the generation ledger.
type History struct {
	repo HistoryRepositoryAPI
}

func NewHistory(repo HistoryRepositoryAPI) *History {
	return &History{repo: repo}
}

func (h *History) List(ctx context.Context, templateID string, from *time.Time) ([]*Generation, error) {
	if from != nil {
		d := DateOf(*from)
		from = &d
	}
	rows, err := h.repo.List(ctx, templateID, from)
	if err != nil {
		return nil, err
	}
	out := make([]*Generation, len(rows))
	for i, r := range rows {
		out[i] = generationFromDataModel(r)
	}
	return out, nil
}

// Latest returns the most recent occurrence date, or nil when nothing was generated.
func (h *History) Latest(ctx context.Context, templateID string) (*time.Time, error) {
	r, err := h.repo.Latest(ctx, templateID)
	if err != nil || r == nil {
		return nil, err
	}
	d := DateOf(r.OccurrenceDate)
	return &d, nil
}

// Covered returns the set of already materialized dates between from and to, keyed by DateKey.
func (h *History) Covered(ctx context.Context, templateID string, from, to time.Time) (map[string]struct{}, error) {
	dates, err := h.repo.OccurrenceDates(ctx, templateID, DateOf(from), DateOf(to))
	if err != nil {
		return nil, err
	}
	covered := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		covered[DateKey(DateOf(d))] = struct{}{}
	}
	return covered, nil
}

func (h *History) Count(ctx context.Context, templateID string) (int64, error) {
	return h.repo.Count(ctx, templateID)
}
