package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"orderlyflow/internal/model"
)

// SeriesProperty carries the series id of an exported instance.
const SeriesProperty = "X-ORDERLYFLOW-SERIES"

// Export renders events as a VCALENDAR with one VEVENT per instance. All-day
// events are written as dates in loc.
func Export(name string, loc *time.Location, events []model.EventInstance) string {
	if loc == nil {
		loc = time.UTC
	}

	cal := ical.NewCalendarFor("orderlyflow")
	cal.SetMethod(ical.MethodPublish)
	if name != "" {
		cal.SetName(name)
	}
	cal.SetXWRTimezone(loc.String())

	for _, e := range events {
		ve := cal.AddEvent(e.ID)
		stamp := e.CreatedAt
		if stamp.IsZero() {
			stamp = time.Now()
		}
		ve.SetDtStampTime(stamp)
		ve.SetCreatedTime(stamp)
		ve.SetSummary(e.Title)
		if e.Description != "" {
			ve.SetDescription(e.Description)
		}
		if e.Location != "" {
			ve.SetLocation(e.Location)
		}
		if e.Color != "" {
			ve.SetColor(string(e.Color))
		}

		if e.AllDay {
			day := e.Start.In(loc)
			day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
			ve.SetAllDayStartAt(day)
			ve.SetAllDayEndAt(day.AddDate(0, 0, 1))
		} else {
			ve.SetStartAt(e.Start)
			if e.End != nil {
				ve.SetEndAt(*e.End)
			}
		}

		if e.SeriesID != "" {
			ve.SetProperty(ical.ComponentProperty(SeriesProperty), e.SeriesID)
		}
	}

	return cal.Serialize()
}
