// Package recurrence materializes recurring calendar events into concrete
// instances.
package recurrence

import (
	"time"

	"orderlyflow/internal/model"
)

const (
	// MaxInstances is the hard safety cap on instances per expansion.
	MaxInstances = 100

	// defaultSpanDays is used when the anchor has no recurrence end date.
	// It is a fixed offset, not a calendar year.
	defaultSpanDays = 365
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// MaxInstances lowers the safety cap. Zero, negative, or values above
	// the package-level MaxInstances all mean MaxInstances.
	MaxInstances int
}

// ExpandResult wraps the generated instances plus diagnostics for callers
// that want to log or surface them.
type ExpandResult struct {
	Instances []model.EventInstance

	// EndDate is the effective inclusive end date used for the expansion.
	EndDate time.Time

	// Truncated is true when the cap stopped expansion before EndDate.
	Truncated bool

	// UnknownPattern is true when the anchor's pattern was not recognized
	// and the daily fallback was used.
	UnknownPattern bool
}

// Expand materializes the anchor into at most MaxInstances occurrences,
// ordered by start, from anchor.Start through the recurrence end date
// (inclusive, compared by calendar day in the anchor's location).
//
// Expand does not validate; an end date before the start yields no
// instances.
func Expand(anchor model.AnchorEvent) []model.EventInstance {
	return ExpandWithConfig(anchor, ExpandConfig{}).Instances
}

// ExpandWithConfig is Expand with a configurable cap and diagnostics.
func ExpandWithConfig(anchor model.AnchorEvent, cfg ExpandConfig) ExpandResult {
	limit := cfg.MaxInstances
	if limit <= 0 || limit > MaxInstances {
		limit = MaxInstances
	}

	step, known := StepFor(anchor.RecurrencePattern)
	pattern := anchor.RecurrencePattern
	if canon, ok := ParsePattern(string(pattern)); ok {
		pattern = canon
	}

	end := EffectiveEndDate(anchor)
	result := ExpandResult{
		Instances:      make([]model.EventInstance, 0),
		EndDate:        end,
		UnknownPattern: !known,
	}

	var duration time.Duration
	hasEnd := !anchor.End.IsZero()
	if hasEnd {
		duration = anchor.End.Sub(anchor.Start)
	}

	for k := 0; ; k++ {
		current := occurrenceAt(anchor.Start, step, k)
		if dayAfter(current, end) {
			break
		}
		if len(result.Instances) >= limit {
			result.Truncated = true
			break
		}

		inst := model.EventInstance{
			Title:             anchor.Title,
			Description:       anchor.Description,
			Start:             current,
			AllDay:            anchor.AllDay,
			Location:          anchor.Location,
			Color:             anchor.Color,
			LinkedTaskID:      anchor.LinkedTaskID,
			LinkedHomeID:      anchor.LinkedHomeID,
			OwnerID:           anchor.OwnerID,
			IsRecurring:       true,
			RecurrencePattern: pattern,
			RecurrenceEndDate: copyTime(anchor.RecurrenceEndDate),
			SeriesID:          anchor.SeriesID,
		}
		if hasEnd {
			e := current.Add(duration)
			inst.End = &e
		}
		result.Instances = append(result.Instances, inst)
	}

	return result
}

// EffectiveEndDate returns the anchor's recurrence end date, or the date
// 365 days after its start when none is set.
func EffectiveEndDate(anchor model.AnchorEvent) time.Time {
	if anchor.RecurrenceEndDate != nil {
		return *anchor.RecurrenceEndDate
	}
	return anchor.Start.AddDate(0, 0, defaultSpanDays)
}

// occurrenceAt returns the k-th occurrence counted from start. Month steps
// are taken from the anchor, not from the previous occurrence, and clamp to
// the last day of a shorter month: Jan 31 monthly gives Feb 29 (leap year),
// Mar 31, Apr 30.
func occurrenceAt(start time.Time, step Step, k int) time.Time {
	if step.Months == 0 {
		return start.AddDate(0, 0, k*step.Days)
	}
	return addMonthsClamped(start, k*step.Months)
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// dayAfter reports whether t's calendar day (in t's location) is after the
// calendar day of end (in end's own location). End dates are date-only
// values, so their clock and zone are ignored.
func dayAfter(t, end time.Time) bool {
	ty, tm, td := t.Date()
	ey, em, ed := end.Date()
	if ty != ey {
		return ty > ey
	}
	if tm != em {
		return tm > em
	}
	return td > ed
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
