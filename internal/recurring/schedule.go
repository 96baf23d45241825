package recurring

import (
	"time"

	errors "github.com/frahmantamala/fleet-recurring/internal"
	"github.com/frahmantamala/fleet-recurring/internal/core/common/validation"
)

type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

// stepDays is the fixed interval of the day-based frequencies.
func (f Frequency) stepDays() int {
	if f == FrequencyBiweekly {
		return 14
	}
	return 7
}

// Rule is the recurrence part of a template: how often and between which dates.
type Rule struct {
	Frequency Frequency
	DueDay    *int
	Start     time.Time
	End       *time.Time
}

func (r Rule) Validate() error {
	v := validation.NewValidator()
	v.Field("frequency", string(r.Frequency)).
		Required().
		OneOf(errors.ErrCodeInvalidFrequency, string(FrequencyWeekly), string(FrequencyBiweekly), string(FrequencyMonthly))
	v.Field("due_day", r.DueDay).IntRange(1, 31, errors.ErrCodeInvalidDueDay)
	v.Field("start_date", r.Start).Required()
	v.Field("end_date", r.End).NotBefore(DateOf(r.Start), "start_date")
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// DateOf drops the clock part, keeping the calendar date in UTC.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateKey is the map key used to compare occurrence dates.
func DateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// Occurrences lists the occurrence dates of r after anchor, up to and including
// through, and never past r.End. When includeAnchor is set the anchor itself is a
// candidate; that is the case when nothing has been materialized yet.
func Occurrences(r Rule, anchor time.Time, includeAnchor bool, through time.Time) []time.Time {
	start := DateOf(r.Start)
	anchor = DateOf(anchor)
	limit := DateOf(through)
	if r.End != nil && DateOf(*r.End).Before(limit) {
		limit = DateOf(*r.End)
	}

	var out []time.Time
	switch r.Frequency {
	case FrequencyWeekly, FrequencyBiweekly:
		step := r.Frequency.stepDays()
		d := anchor
		if !includeAnchor {
			d = d.AddDate(0, 0, step)
		}
		for ; !d.After(limit); d = d.AddDate(0, 0, step) {
			if d.Before(start) {
				continue
			}
			out = append(out, d)
		}
	case FrequencyMonthly:
		day := start.Day()
		if r.DueDay != nil {
			day = *r.DueDay
		}
		k := 1
		if includeAnchor {
			k = 0
		}
		for ; ; k++ {
			d := monthDay(anchor.Year(), anchor.Month()+time.Month(k), day)
			if d.After(limit) {
				break
			}
			if d.Before(start) {
				continue
			}
			out = append(out, d)
		}
	}
	return out
}

// monthDay returns day of the given month, clamped to the month's last day.
// month may overflow; time.Date normalizes it into the following years.
func monthDay(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}
