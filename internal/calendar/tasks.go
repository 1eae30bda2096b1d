package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	appLog "orderlyflow/internal/log"
	"orderlyflow/internal/metrics"
	"orderlyflow/internal/model"
	"orderlyflow/internal/store"
)

// HomeInput describes a new home.
type HomeInput struct {
	OwnerID string `json:"owner_id" validate:"required"`
	Name    string `json:"name" validate:"required,max=120"`
	Address string `json:"address"`
}

// TaskInput describes a new maintenance task.
type TaskInput struct {
	OwnerID     string         `json:"owner_id" validate:"required"`
	HomeID      string         `json:"home_id"`
	Title       string         `json:"title" validate:"required,max=200"`
	Description string         `json:"description"`
	DueDate     *time.Time     `json:"due_date"`
	Priority    model.Priority `json:"priority" validate:"omitempty,oneof=low medium high urgent"`

	IsRecurring       bool       `json:"is_recurring"`
	RecurrencePattern string     `json:"recurrence_pattern" validate:"required_if=IsRecurring true"`
	RecurrenceEndDate *time.Time `json:"recurrence_end_date"`
}

// CreateTaskResult is the stored task plus the outcome of mirroring it
// into the calendar.
type CreateTaskResult struct {
	Task           model.Task            `json:"task"`
	Events         []model.EventInstance `json:"events,omitempty"`
	SeriesID       string                `json:"series_id,omitempty"`
	CalendarSynced bool                  `json:"calendar_synced"`
	SyncError      string                `json:"sync_error,omitempty"`
	Warnings       []string              `json:"warnings,omitempty"`
}

var priorityColors = map[model.Priority]model.Color{
	model.PriorityLow:    model.ColorGreen,
	model.PriorityMedium: model.ColorBlue,
	model.PriorityHigh:   model.ColorYellow,
	model.PriorityUrgent: model.ColorRed,
}

// ColorForPriority maps a task priority to its calendar color.
func ColorForPriority(p model.Priority) model.Color {
	if c, ok := priorityColors[p]; ok {
		return c
	}
	return model.ColorGray
}

// CreateHome validates and stores a home.
func (s *Service) CreateHome(ctx context.Context, in HomeInput) (model.Home, error) {
	in.OwnerID = strings.TrimSpace(in.OwnerID)
	in.Name = strings.TrimSpace(in.Name)
	in.Address = strings.TrimSpace(in.Address)
	if err := s.validate.Struct(in); err != nil {
		metrics.TrackError("validation")
		return model.Home{}, validationError(err)
	}

	h := model.Home{OwnerID: in.OwnerID, Name: in.Name, Address: in.Address}
	if err := s.repo.InsertHome(ctx, &h); err != nil {
		metrics.TrackError("db")
		return model.Home{}, fmt.Errorf("create home: %w", err)
	}
	appLog.Info("home created", "owner", h.OwnerID, "id", h.ID)
	return h, nil
}

// ListHomes returns the owner's homes.
func (s *Service) ListHomes(ctx context.Context, ownerID string) ([]model.Home, error) {
	return s.repo.ListHomes(ctx, ownerID)
}

// CreateTask stores a task and, when it has a due date, mirrors it into
// the calendar as all-day events. A failed calendar sync does not undo the
// task; it is reported in the result.
func (s *Service) CreateTask(ctx context.Context, in TaskInput) (CreateTaskResult, error) {
	in = s.normalizeTaskInput(in)
	if err := s.validate.Struct(in); err != nil {
		metrics.TrackError("validation")
		return CreateTaskResult{}, validationError(err)
	}

	if in.HomeID != "" {
		if _, err := s.repo.GetHome(ctx, in.OwnerID, in.HomeID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return CreateTaskResult{}, fmt.Errorf("%w: home_id %s does not exist", ErrValidation, in.HomeID)
			}
			return CreateTaskResult{}, fmt.Errorf("create task: %w", err)
		}
	}

	task := model.Task{
		OwnerID:     in.OwnerID,
		HomeID:      in.HomeID,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Priority:    in.Priority,
		IsRecurring: in.IsRecurring,
	}
	if in.IsRecurring {
		task.RecurrencePattern = model.Pattern(in.RecurrencePattern)
		task.RecurrenceEndDate = in.RecurrenceEndDate
	}
	if err := s.repo.InsertTask(ctx, &task); err != nil {
		metrics.TrackError("db")
		return CreateTaskResult{}, fmt.Errorf("create task: %w", err)
	}
	appLog.Info("task created", "owner", task.OwnerID, "id", task.ID, "recurring", task.IsRecurring)

	res := CreateTaskResult{Task: task}
	if task.DueDate == nil {
		return res, nil
	}

	synced, err := s.syncTask(ctx, task)
	if err != nil {
		metrics.TrackError("sync")
		appLog.Error("task calendar sync failed", err, "task", task.ID)
		res.SyncError = err.Error()
		return res, nil
	}
	res.Events = synced.Events
	res.SeriesID = synced.SeriesID
	res.Warnings = synced.Warnings
	res.CalendarSynced = true
	return res, nil
}

func (s *Service) syncTask(ctx context.Context, task model.Task) (CreateEventResult, error) {
	anchor := model.AnchorEvent{
		Title:        task.Title,
		Description:  task.Description,
		Start:        s.startOfDay(*task.DueDate),
		AllDay:       true,
		Color:        ColorForPriority(task.Priority),
		LinkedTaskID: task.ID,
		LinkedHomeID: task.HomeID,
		OwnerID:      task.OwnerID,
	}

	var res CreateEventResult
	if task.IsRecurring {
		anchor.RecurrencePattern = task.RecurrencePattern
		anchor.RecurrenceEndDate = task.RecurrenceEndDate
		anchor.SeriesID = s.newSeriesID()
		var err error
		if res, err = s.expand(anchor); err != nil {
			return CreateEventResult{}, err
		}
	} else {
		res.Events = []model.EventInstance{singleInstance(anchor)}
	}

	if err := s.repo.InsertEvents(ctx, res.Events); err != nil {
		return CreateEventResult{}, err
	}
	metrics.TrackEventsCreated("task", len(res.Events))
	return res, nil
}

func (s *Service) normalizeTaskInput(in TaskInput) TaskInput {
	in.OwnerID = strings.TrimSpace(in.OwnerID)
	in.HomeID = strings.TrimSpace(in.HomeID)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.RecurrencePattern = strings.TrimSpace(in.RecurrencePattern)
	in.Priority = model.Priority(strings.ToLower(strings.TrimSpace(string(in.Priority))))
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if in.DueDate != nil {
		d := s.startOfDay(*in.DueDate)
		in.DueDate = &d
	}
	if in.RecurrenceEndDate != nil {
		d := s.startOfDay(*in.RecurrenceEndDate)
		in.RecurrenceEndDate = &d
	}
	return in
}

// ListTasks returns the owner's tasks, optionally narrowed to a home or a
// completion state.
func (s *Service) ListTasks(ctx context.Context, f store.TaskFilter) ([]model.Task, error) {
	return s.repo.ListTasks(ctx, f)
}

// CompleteTask marks a task done and returns it.
func (s *Service) CompleteTask(ctx context.Context, ownerID, id string) (model.Task, error) {
	if err := s.repo.SetTaskCompleted(ctx, ownerID, id, true); err != nil {
		return model.Task{}, err
	}
	return s.repo.GetTask(ctx, ownerID, id)
}

// dayBefore reports whether a falls on an earlier calendar date than b,
// each read in its own location.
func dayBefore(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
