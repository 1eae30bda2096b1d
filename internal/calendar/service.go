// Package calendar implements the event and task workflows that create
// calendar entries, including recurring series.
package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	appLog "orderlyflow/internal/log"
	"orderlyflow/internal/metrics"
	"orderlyflow/internal/model"
	"orderlyflow/internal/recurrence"
	"orderlyflow/internal/store"
)

// ErrNotFound is returned when an owner's record does not exist.
var ErrNotFound = store.ErrNotFound

// Repository is the persistence the service needs. *store.Store satisfies it.
type Repository interface {
	InsertEvents(ctx context.Context, events []model.EventInstance) error
	InsertImportedEvents(ctx context.Context, events []model.EventInstance) (int64, error)
	ListEvents(ctx context.Context, f store.EventFilter) ([]model.EventInstance, error)
	GetEvent(ctx context.Context, ownerID, id string) (model.EventInstance, error)
	DeleteEvent(ctx context.Context, ownerID, id string) error
	DeleteSeries(ctx context.Context, ownerID, seriesID string) (int64, error)

	InsertHome(ctx context.Context, h *model.Home) error
	ListHomes(ctx context.Context, ownerID string) ([]model.Home, error)
	GetHome(ctx context.Context, ownerID, id string) (model.Home, error)

	InsertTask(ctx context.Context, t *model.Task) error
	ListTasks(ctx context.Context, f store.TaskFilter) ([]model.Task, error)
	GetTask(ctx context.Context, ownerID, id string) (model.Task, error)
	SetTaskCompleted(ctx context.Context, ownerID, id string, completed bool) error
}

// Options configures a Service.
type Options struct {
	// Location interprets date-only values (all-day starts, recurrence end
	// dates). Defaults to UTC.
	Location *time.Location
	// MaxInstances lowers the per-series cap; see recurrence.ExpandConfig.
	MaxInstances int
	// NewSeriesID overrides series id generation (tests).
	NewSeriesID func() string
}

// Service coordinates validation, recurrence expansion and persistence.
type Service struct {
	repo         Repository
	validate     *validator.Validate
	loc          *time.Location
	maxInstances int
	newSeriesID  func() string
}

// NewService constructs a Service.
func NewService(repo Repository, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.NewSeriesID == nil {
		opts.NewSeriesID = uuid.NewString
	}
	return &Service{
		repo:         repo,
		validate:     newValidator(),
		loc:          opts.Location,
		maxInstances: opts.MaxInstances,
		newSeriesID:  opts.NewSeriesID,
	}
}

// Location returns the zone used for date-only values.
func (s *Service) Location() *time.Location {
	return s.loc
}

// EventInput is the user-supplied description of a new calendar event.
type EventInput struct {
	OwnerID     string      `json:"owner_id" validate:"required"`
	Title       string      `json:"title" validate:"required,max=200"`
	Description string      `json:"description"`
	Start       time.Time   `json:"start" validate:"required"`
	End         *time.Time  `json:"end"`
	AllDay      bool        `json:"all_day"`
	Location    string      `json:"location"`
	Color       model.Color `json:"color" validate:"omitempty,oneof=gray red blue green yellow purple pink"`
	TaskID      string      `json:"task_id"`
	HomeID      string      `json:"home_id"`

	IsRecurring       bool       `json:"is_recurring"`
	RecurrencePattern string     `json:"recurrence_pattern" validate:"required_if=IsRecurring true"`
	RecurrenceEndDate *time.Time `json:"recurrence_end_date"`
}

// CreateEventResult reports what CreateEvent or PreviewExpansion produced.
type CreateEventResult struct {
	Events   []model.EventInstance `json:"events"`
	SeriesID string                `json:"series_id,omitempty"`
	// Truncated is true when the instance cap ended the series early.
	Truncated bool     `json:"truncated"`
	Warnings  []string `json:"warnings,omitempty"`
}

// CreateEvent validates in and stores either a single event or, for a
// recurring event, every expanded instance in one transaction.
func (s *Service) CreateEvent(ctx context.Context, in EventInput) (CreateEventResult, error) {
	res, err := s.buildEvents(in)
	if err != nil {
		return CreateEventResult{}, err
	}

	if err := s.repo.InsertEvents(ctx, res.Events); err != nil {
		metrics.TrackError("db")
		return CreateEventResult{}, fmt.Errorf("create event: %w", err)
	}
	metrics.TrackEventsCreated("event", len(res.Events))

	appLog.Info("calendar event created",
		"owner", in.OwnerID,
		"series_id", res.SeriesID,
		"instances", len(res.Events),
		"truncated", res.Truncated,
	)
	return res, nil
}

// PreviewExpansion validates in and returns the instances CreateEvent
// would store, without persisting or assigning ids.
func (s *Service) PreviewExpansion(in EventInput) (CreateEventResult, error) {
	return s.buildEvents(in)
}

func (s *Service) buildEvents(in EventInput) (CreateEventResult, error) {
	in = s.normalizeEventInput(in)
	if err := s.validate.Struct(in); err != nil {
		metrics.TrackError("validation")
		return CreateEventResult{}, validationError(err)
	}

	anchor := model.AnchorEvent{
		Title:        in.Title,
		Description:  in.Description,
		Start:        in.Start,
		AllDay:       in.AllDay,
		Location:     in.Location,
		Color:        in.Color,
		LinkedTaskID: in.TaskID,
		LinkedHomeID: in.HomeID,
		OwnerID:      in.OwnerID,
	}
	if in.End != nil {
		anchor.End = *in.End
	}

	if !in.IsRecurring {
		return CreateEventResult{Events: []model.EventInstance{singleInstance(anchor)}}, nil
	}

	anchor.RecurrencePattern = model.Pattern(in.RecurrencePattern)
	anchor.RecurrenceEndDate = in.RecurrenceEndDate
	anchor.SeriesID = s.newSeriesID()
	return s.expand(anchor)
}

func (s *Service) expand(anchor model.AnchorEvent) (CreateEventResult, error) {
	exp := recurrence.ExpandWithConfig(anchor, recurrence.ExpandConfig{MaxInstances: s.maxInstances})
	metrics.TrackExpansion(len(exp.Instances), exp.Truncated, exp.UnknownPattern)

	res := CreateEventResult{
		Events:    exp.Instances,
		SeriesID:  anchor.SeriesID,
		Truncated: exp.Truncated,
	}
	if exp.UnknownPattern {
		appLog.Warn("unrecognized recurrence pattern; repeating daily",
			"pattern", anchor.RecurrencePattern,
			"series_id", anchor.SeriesID,
		)
		res.Warnings = append(res.Warnings, fmt.Sprintf("unrecognized recurrence pattern %q; repeating daily", anchor.RecurrencePattern))
	}
	if exp.Truncated {
		res.Warnings = append(res.Warnings, fmt.Sprintf("series stopped at %d occurrences before %s", len(exp.Instances), exp.EndDate.Format(time.DateOnly)))
	}
	if len(res.Events) == 0 {
		return CreateEventResult{}, fmt.Errorf("%w: recurrence produces no occurrences", ErrValidation)
	}
	return res, nil
}

func (s *Service) normalizeEventInput(in EventInput) EventInput {
	in.OwnerID = strings.TrimSpace(in.OwnerID)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.RecurrencePattern = strings.TrimSpace(in.RecurrencePattern)
	in.Color = model.Color(strings.ToLower(strings.TrimSpace(string(in.Color))))
	if in.Color == "" {
		in.Color = model.ColorGray
	}
	if in.AllDay {
		in.Start = s.startOfDay(in.Start)
		in.End = nil
	}
	if in.RecurrenceEndDate != nil {
		d := s.startOfDay(*in.RecurrenceEndDate)
		in.RecurrenceEndDate = &d
	}
	return in
}

// startOfDay keeps the calendar date of t as written and places it at
// midnight in the service location.
func (s *Service) startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

func singleInstance(a model.AnchorEvent) model.EventInstance {
	inst := model.EventInstance{
		Title:        a.Title,
		Description:  a.Description,
		Start:        a.Start,
		AllDay:       a.AllDay,
		Location:     a.Location,
		Color:        a.Color,
		LinkedTaskID: a.LinkedTaskID,
		LinkedHomeID: a.LinkedHomeID,
		OwnerID:      a.OwnerID,
	}
	if !a.End.IsZero() {
		e := a.End
		inst.End = &e
	}
	return inst
}

// ListEvents returns the owner's events with start in [from, to]. Nil
// bounds are open.
func (s *Service) ListEvents(ctx context.Context, ownerID string, from, to *time.Time) ([]model.EventInstance, error) {
	events, err := s.repo.ListEvents(ctx, store.EventFilter{OwnerID: ownerID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	for i := range events {
		s.localize(&events[i])
	}
	return events, nil
}

// GetEvent returns one event.
func (s *Service) GetEvent(ctx context.Context, ownerID, id string) (model.EventInstance, error) {
	e, err := s.repo.GetEvent(ctx, ownerID, id)
	if err != nil {
		return model.EventInstance{}, err
	}
	s.localize(&e)
	return e, nil
}

// DeleteEvent removes one instance. Other instances of the same series
// remain.
func (s *Service) DeleteEvent(ctx context.Context, ownerID, id string) error {
	if err := s.repo.DeleteEvent(ctx, ownerID, id); err != nil {
		return err
	}
	appLog.Info("calendar event deleted", "owner", ownerID, "id", id)
	return nil
}

// ListSeries returns every remaining instance of a series.
func (s *Service) ListSeries(ctx context.Context, ownerID, seriesID string) ([]model.EventInstance, error) {
	events, err := s.repo.ListEvents(ctx, store.EventFilter{OwnerID: ownerID, SeriesID: seriesID})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("series %s: %w", seriesID, ErrNotFound)
	}
	for i := range events {
		s.localize(&events[i])
	}
	return events, nil
}

// DeleteSeries removes every instance of a series.
func (s *Service) DeleteSeries(ctx context.Context, ownerID, seriesID string) (int64, error) {
	n, err := s.repo.DeleteSeries(ctx, ownerID, seriesID)
	if err != nil {
		return 0, err
	}
	appLog.Info("calendar series deleted", "owner", ownerID, "series_id", seriesID, "instances", n)
	return n, nil
}

// localize converts stored (UTC) times into the service location.
func (s *Service) localize(e *model.EventInstance) {
	e.Start = e.Start.In(s.loc)
	if e.End != nil {
		end := e.End.In(s.loc)
		e.End = &end
	}
	if e.RecurrenceEndDate != nil {
		d := e.RecurrenceEndDate.In(s.loc)
		e.RecurrenceEndDate = &d
	}
}
