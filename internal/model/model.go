package model

import "time"

// Pattern names a recurrence interval rule.
type Pattern string

const (
	PatternDaily        Pattern = "daily"
	PatternWeekly       Pattern = "weekly"
	PatternBiWeekly     Pattern = "bi-weekly"
	PatternMonthly      Pattern = "monthly"
	PatternQuarterly    Pattern = "quarterly"
	PatternSemiAnnually Pattern = "semi-annually"
	PatternAnnually     Pattern = "annually"
)

// Patterns lists the canonical recurrence patterns in ascending step order.
var Patterns = []Pattern{
	PatternDaily,
	PatternWeekly,
	PatternBiWeekly,
	PatternMonthly,
	PatternQuarterly,
	PatternSemiAnnually,
	PatternAnnually,
}

// Color is the display color of a calendar event.
type Color string

const (
	ColorGray   Color = "gray"
	ColorRed    Color = "red"
	ColorBlue   Color = "blue"
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorPurple Color = "purple"
	ColorPink   Color = "pink"
)

// Valid reports whether c is one of the supported colors.
func (c Color) Valid() bool {
	switch c {
	case ColorGray, ColorRed, ColorBlue, ColorGreen, ColorYellow, ColorPurple, ColorPink:
		return true
	}
	return false
}

// AnchorEvent is the first, user-specified occurrence from which all later
// recurring instances are derived. It is not modified by expansion.
type AnchorEvent struct {
	Title       string
	Description string

	// Start is the first occurrence. For all-day events only the date
	// component is meaningful.
	Start time.Time
	// End may be zero for all-day events.
	End    time.Time
	AllDay bool

	Location string
	Color    Color

	LinkedTaskID string
	LinkedHomeID string
	OwnerID      string

	RecurrencePattern Pattern
	// RecurrenceEndDate is a calendar date; nil means one year after Start.
	RecurrenceEndDate *time.Time

	// SeriesID is shared by every instance produced from this anchor.
	SeriesID string
}

// EventInstance is one concrete dated materialization of an anchor event.
// It is also the shape of a persisted calendar_events row.
type EventInstance struct {
	ID string `json:"id" db:"id"`

	Title       string `json:"title" db:"title"`
	Description string `json:"description" db:"description"`

	Start  time.Time  `json:"start" db:"start_at"`
	End    *time.Time `json:"end,omitempty" db:"end_at"`
	AllDay bool       `json:"all_day" db:"all_day"`

	Location string `json:"location" db:"location"`
	Color    Color  `json:"color" db:"color"`

	LinkedTaskID string `json:"task_id,omitempty" db:"task_id"`
	LinkedHomeID string `json:"home_id,omitempty" db:"home_id"`
	OwnerID      string `json:"owner_id" db:"owner_id"`

	IsRecurring       bool       `json:"is_recurring" db:"is_recurring"`
	RecurrencePattern Pattern    `json:"recurrence_pattern,omitempty" db:"recurrence_pattern"`
	RecurrenceEndDate *time.Time `json:"recurrence_end_date,omitempty" db:"recurrence_end_date"`
	SeriesID          string     `json:"series_id,omitempty" db:"series_id"`

	// ExternalUID is set for events imported from an iCalendar feed.
	ExternalUID string `json:"external_uid,omitempty" db:"external_uid"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Duration returns End-Start, or zero when the instance has no end.
func (e EventInstance) Duration() time.Duration {
	if e.End == nil {
		return 0
	}
	return e.End.Sub(e.Start)
}

// Home is a managed property.
type Home struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Name      string    `json:"name" db:"name"`
	Address   string    `json:"address" db:"address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Priority of a maintenance task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Task is a home maintenance task. Tasks with a due date are mirrored into
// the calendar.
type Task struct {
	ID          string     `json:"id" db:"id"`
	OwnerID     string     `json:"owner_id" db:"owner_id"`
	HomeID      string     `json:"home_id,omitempty" db:"home_id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description" db:"description"`
	DueDate     *time.Time `json:"due_date,omitempty" db:"due_date"`
	Priority    Priority   `json:"priority" db:"priority"`
	Completed   bool       `json:"completed" db:"completed"`

	IsRecurring       bool       `json:"is_recurring" db:"is_recurring"`
	RecurrencePattern Pattern    `json:"recurrence_pattern,omitempty" db:"recurrence_pattern"`
	RecurrenceEndDate *time.Time `json:"recurrence_end_date,omitempty" db:"recurrence_end_date"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
