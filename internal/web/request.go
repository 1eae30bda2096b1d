package web

import (
	"fmt"
	"strings"
	"time"

	"orderlyflow/internal/calendar"
	"orderlyflow/internal/model"
)

// Accepted input layouts, most specific first. Values without an offset
// are read in the server timezone.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	time.DateOnly,
}

// ParseTime parses s in one of the accepted layouts. dateOnly reports
// whether s had no clock component.
func ParseTime(s string, loc *time.Location) (t time.Time, dateOnly bool, err error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err = time.ParseInLocation(layout, s, loc); err == nil {
			return t, layout == time.DateOnly, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("%w: cannot parse time %q", calendar.ErrValidation, s)
}

func parseOptionalTime(field, s string, loc *time.Location) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, _, err := ParseTime(s, loc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &t, nil
}

// parseBound reads a from/to query value. A date-only upper bound covers
// the whole day.
func parseBound(s string, loc *time.Location, upper bool) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, dateOnly, err := ParseTime(s, loc)
	if err != nil {
		return nil, err
	}
	if upper && dateOnly {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &t, nil
}

type eventRequest struct {
	Title             string `json:"title"`
	Description       string `json:"description"`
	Start             string `json:"start"`
	End               string `json:"end"`
	AllDay            bool   `json:"all_day"`
	Location          string `json:"location"`
	Color             string `json:"color"`
	TaskID            string `json:"task_id"`
	HomeID            string `json:"home_id"`
	IsRecurring       bool   `json:"is_recurring"`
	RecurrencePattern string `json:"recurrence_pattern"`
	RecurrenceEndDate string `json:"recurrence_end_date"`
}

func (r eventRequest) toInput(owner string, loc *time.Location) (calendar.EventInput, error) {
	in := calendar.EventInput{
		OwnerID:           owner,
		Title:             r.Title,
		Description:       r.Description,
		AllDay:            r.AllDay,
		Location:          r.Location,
		Color:             model.Color(r.Color),
		TaskID:            r.TaskID,
		HomeID:            r.HomeID,
		IsRecurring:       r.IsRecurring,
		RecurrencePattern: r.RecurrencePattern,
	}

	if strings.TrimSpace(r.Start) != "" {
		start, dateOnly, err := ParseTime(r.Start, loc)
		if err != nil {
			return in, fmt.Errorf("start: %w", err)
		}
		in.Start = start
		if dateOnly {
			in.AllDay = true
		}
	}

	var err error
	if in.End, err = parseOptionalTime("end", r.End, loc); err != nil {
		return in, err
	}
	if in.RecurrenceEndDate, err = parseOptionalTime("recurrence_end_date", r.RecurrenceEndDate, loc); err != nil {
		return in, err
	}
	return in, nil
}

type taskRequest struct {
	HomeID            string `json:"home_id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	DueDate           string `json:"due_date"`
	Priority          string `json:"priority"`
	IsRecurring       bool   `json:"is_recurring"`
	RecurrencePattern string `json:"recurrence_pattern"`
	RecurrenceEndDate string `json:"recurrence_end_date"`
}

func (r taskRequest) toInput(owner string, loc *time.Location) (calendar.TaskInput, error) {
	in := calendar.TaskInput{
		OwnerID:           owner,
		HomeID:            r.HomeID,
		Title:             r.Title,
		Description:       r.Description,
		Priority:          model.Priority(r.Priority),
		IsRecurring:       r.IsRecurring,
		RecurrencePattern: r.RecurrencePattern,
	}

	var err error
	if in.DueDate, err = parseOptionalTime("due_date", r.DueDate, loc); err != nil {
		return in, err
	}
	if in.RecurrenceEndDate, err = parseOptionalTime("recurrence_end_date", r.RecurrenceEndDate, loc); err != nil {
		return in, err
	}
	return in, nil
}

type homeRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}
