package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "orderlyflow/internal/log"
	"orderlyflow/internal/model"
	"orderlyflow/internal/recurrence"
)

// Imported is one VEVENT (or recurring VEVENT) read from a feed.
//
// When the RRULE maps onto a supported pattern, Anchor carries the pattern
// and end date and the caller expands it like any user-created series.
// Otherwise the rule is materialized here and Occurrences lists the start
// of every instance.
type Imported struct {
	UID    string
	Anchor model.AnchorEvent

	RawRRule    string
	Occurrences []time.Time
	// Truncated is true when Occurrences stopped at the instance cap.
	Truncated bool
}

// Recurring reports whether the item produces more than one instance.
func (im Imported) Recurring() bool {
	return im.Anchor.RecurrencePattern != "" || len(im.Occurrences) > 0
}

type vevent struct {
	uid         string
	summary     string
	description string
	location    string

	start  time.Time
	end    time.Time
	allDay bool

	rrule      string
	exDates    []time.Time
	recurrence *time.Time
}

// Parse reads a feed body. Date-only and floating times are interpreted in
// loc. VEVENTs that cannot be read are logged and skipped.
func Parse(src Source, body []byte, loc *time.Location) ([]Imported, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.UTC
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	bases := make([]vevent, 0)
	overrides := make(map[string][]vevent)
	for _, comp := range cal.Events() {
		ev, perr := readVEvent(comp, loc)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "id", src.ID, "reason", perr.Error())
			continue
		}
		if ev.recurrence != nil {
			overrides[ev.uid] = append(overrides[ev.uid], ev)
			continue
		}
		bases = append(bases, ev)
	}

	out := make([]Imported, 0, len(bases))
	for _, ev := range bases {
		ov := overrides[ev.uid]
		delete(overrides, ev.uid)

		for _, o := range ov {
			ev.exDates = append(ev.exDates, *o.recurrence)
		}
		out = append(out, toImported(ev, src))
		for _, o := range ov {
			o.rrule = ""
			out = append(out, toImported(o, src))
		}
	}
	// Overrides whose master is not in this feed are still real events.
	for _, ov := range overrides {
		for _, o := range ov {
			o.rrule = ""
			out = append(out, toImported(o, src))
		}
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(out))
	return out, nil
}

func readVEvent(ve *ical.VEvent, loc *time.Location) (vevent, error) {
	var out vevent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || strings.TrimSpace(uidProp.Value) == "" {
		return out, errors.New("missing UID")
	}
	out.uid = strings.TrimSpace(uidProp.Value)

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.location = p.Value
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return out, fmt.Errorf("%s: missing DTSTART", out.uid)
	}
	start, allDay, err := propTime(startProp, loc)
	if err != nil {
		return out, fmt.Errorf("%s: DTSTART: %w", out.uid, err)
	}
	out.start = start
	out.allDay = allDay

	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil && !allDay {
		if end, _, err := propTime(endProp, loc); err == nil && !end.Before(start) {
			out.end = end
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rrule = strings.TrimSpace(p.Value)
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, paramLocation(p, loc)); err == nil {
				out.exDates = append(out.exDates, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		if t, _, err := propTime(p, loc); err == nil {
			out.recurrence = &t
		}
	}

	return out, nil
}

func toImported(ev vevent, src Source) Imported {
	im := Imported{
		UID:      ev.uid,
		RawRRule: ev.rrule,
		Anchor: model.AnchorEvent{
			Title:       ev.summary,
			Description: ev.description,
			Start:       ev.start,
			End:         ev.end,
			AllDay:      ev.allDay,
			Location:    ev.location,
		},
	}
	if ev.rrule == "" {
		return im
	}

	opt, err := rrule.StrToROptionInLocation(ev.rrule, ev.start.Location())
	if err != nil {
		appLog.Warn("ics rrule unreadable; importing first occurrence", "id", src.ID, "uid", ev.uid, "rrule", ev.rrule)
		return im
	}

	if len(ev.exDates) == 0 {
		if pattern, ok := MapRule(*opt, ev.start); ok {
			im.Anchor.RecurrencePattern = pattern
			if !opt.Until.IsZero() {
				until := untilDate(opt.Until, ev.start)
				im.Anchor.RecurrenceEndDate = &until
			}
			return im
		}
	}

	occ, truncated, err := materialize(*opt, ev)
	if err != nil {
		appLog.Warn("ics rrule not expandable; importing first occurrence", "id", src.ID, "uid", ev.uid, "rrule", ev.rrule)
		return im
	}
	im.Occurrences = occ
	im.Truncated = truncated
	return im
}

// untilDate converts UNTIL to the last calendar date that still holds an
// occurrence. When UNTIL's clock is earlier than the start's, that day's
// occurrence falls after UNTIL and the date moves back one day.
func untilDate(until, start time.Time) time.Time {
	loc := start.Location()
	u := until.In(loc)
	d := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, loc)
	if clockAfter(start, u) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// clockAfter reports whether a's wall-clock time of day is later than b's.
func clockAfter(a, b time.Time) bool {
	ah, am, as := a.Clock()
	bh, bm, bs := b.Clock()
	switch {
	case ah != bh:
		return ah > bh
	case am != bm:
		return am > bm
	case as != bs:
		return as > bs
	}
	return a.Nanosecond() > b.Nanosecond()
}

// MapRule returns the recurrence pattern equivalent to opt for an event
// starting at start, or false when the rule needs a general expansion.
func MapRule(opt rrule.ROption, start time.Time) (model.Pattern, bool) {
	if opt.Count > 0 || len(opt.Bysetpos) > 0 || len(opt.Bymonth) > 0 ||
		len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 || len(opt.Byhour) > 0 ||
		len(opt.Byminute) > 0 || len(opt.Bysecond) > 0 || len(opt.Byeaster) > 0 {
		return "", false
	}
	interval := opt.Interval
	if interval <= 0 {
		interval = 1
	}

	switch opt.Freq {
	case rrule.DAILY:
		if interval == 1 && len(opt.Byweekday) == 0 && len(opt.Bymonthday) == 0 {
			return model.PatternDaily, true
		}
	case rrule.WEEKLY:
		if len(opt.Bymonthday) > 0 || !onlyWeekday(opt.Byweekday, start) {
			return "", false
		}
		switch interval {
		case 1:
			return model.PatternWeekly, true
		case 2:
			return model.PatternBiWeekly, true
		}
	case rrule.MONTHLY:
		if len(opt.Byweekday) > 0 || !onlyMonthday(opt.Bymonthday, start) {
			return "", false
		}
		switch interval {
		case 1:
			return model.PatternMonthly, true
		case 3:
			return model.PatternQuarterly, true
		case 6:
			return model.PatternSemiAnnually, true
		}
	case rrule.YEARLY:
		if interval == 1 && len(opt.Byweekday) == 0 && onlyMonthday(opt.Bymonthday, start) {
			return model.PatternAnnually, true
		}
	}
	return "", false
}

// onlyWeekday accepts an empty BYDAY or one naming start's own weekday.
func onlyWeekday(days []rrule.Weekday, start time.Time) bool {
	if len(days) == 0 {
		return true
	}
	if len(days) > 1 || days[0].N() != 0 {
		return false
	}
	// rrule counts from Monday, time.Weekday from Sunday.
	return days[0].Day() == (int(start.Weekday())+6)%7
}

func onlyMonthday(days []int, start time.Time) bool {
	return len(days) == 0 || (len(days) == 1 && days[0] == start.Day())
}

// materialize expands opt from the event start with EXDATEs removed, up to
// UNTIL (or one year) and at most recurrence.MaxInstances starts.
func materialize(opt rrule.ROption, ev vevent) ([]time.Time, bool, error) {
	opt.Dtstart = ev.start
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, false, err
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.exDates {
		set.ExDate(ex.In(ev.start.Location()))
	}

	horizon := ev.start.AddDate(0, 0, 365)
	if !opt.Until.IsZero() && opt.Until.Before(horizon) {
		horizon = opt.Until
	}

	out := make([]time.Time, 0)
	next := set.Iterator()
	for {
		t, ok := next()
		if !ok || t.After(horizon) {
			return out, false, nil
		}
		if len(out) >= recurrence.MaxInstances {
			return out, true, nil
		}
		out = append(out, t)
	}
}

// propTime reads a DATE or DATE-TIME property. TZID is honored; floating
// values and dates use loc.
func propTime(p *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	v := strings.TrimSpace(p.Value)
	allDay := !strings.Contains(v, "T")
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		allDay = true
	}
	t, err := parseICSTime(v, paramLocation(p, loc))
	return t, allDay, err
}

func paramLocation(p *ical.IANAProperty, loc *time.Location) *time.Location {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if l, err := time.LoadLocation(strings.Trim(tzs[0], `"`)); err == nil {
			return l
		}
	}
	return loc
}

// parseICSTime parses the basic DATE / DATE-TIME / UTC forms.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	// Local date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	// Date-only (all-day), e.g., 20250101
	return time.ParseInLocation("20060102", v, loc)
}
