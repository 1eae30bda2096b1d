package store

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"orderlyflow/internal/model"
)

const tasksTable = "tasks"

var taskColumns = []string{
	"id", "owner_id", "home_id", "title", "description", "due_date", "priority",
	"completed", "is_recurring", "recurrence_pattern", "recurrence_end_date",
	"created_at", "updated_at",
}

// TaskFilter narrows ListTasks. OwnerID is required.
type TaskFilter struct {
	OwnerID string
	HomeID  string
	// Completed, when non-nil, selects only completed or open tasks.
	Completed *bool
}

// InsertTask persists t, assigning ID and timestamps when missing.
func (s *Store) InsertTask(ctx context.Context, t *model.Task) error {
	now := time.Now().UTC()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}

	query, args, err := s.sb.Insert(tasksTable).
		Columns(taskColumns...).
		Values(
			t.ID, t.OwnerID, t.HomeID, t.Title, t.Description, utcPtr(t.DueDate), string(t.Priority),
			t.Completed, t.IsRecurring, string(t.RecurrencePattern), utcPtr(t.RecurrenceEndDate),
			t.CreatedAt.UTC(), t.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return wrap("insertTask", tasksTable, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return wrap("insertTask", tasksTable, err)
	}
	return nil
}

// ListTasks returns matching tasks, soonest due first; tasks without a due
// date come last.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]model.Task, error) {
	q := s.sb.Select(taskColumns...).From(tasksTable).
		Where(squirrel.Eq{"owner_id": f.OwnerID}).
		OrderBy("due_date IS NULL", "due_date ASC", "created_at ASC")
	if f.HomeID != "" {
		q = q.Where(squirrel.Eq{"home_id": f.HomeID})
	}
	if f.Completed != nil {
		q = q.Where(squirrel.Eq{"completed": *f.Completed})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, wrap("listTasks", tasksTable, err)
	}
	tasks := make([]model.Task, 0)
	if err := s.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, wrap("listTasks", tasksTable, err)
	}
	return tasks, nil
}

// GetTask returns one task owned by ownerID.
func (s *Store) GetTask(ctx context.Context, ownerID, id string) (model.Task, error) {
	query, args, err := s.sb.Select(taskColumns...).From(tasksTable).
		Where(squirrel.Eq{"id": id, "owner_id": ownerID}).
		ToSql()
	if err != nil {
		return model.Task{}, wrap("getTask", tasksTable, err)
	}
	var t model.Task
	if err := s.db.GetContext(ctx, &t, query, args...); err != nil {
		return model.Task{}, wrap("getTask", tasksTable, err)
	}
	return t, nil
}

// SetTaskCompleted updates the completed flag of a task.
func (s *Store) SetTaskCompleted(ctx context.Context, ownerID, id string, completed bool) error {
	query, args, err := s.sb.Update(tasksTable).
		Set("completed", completed).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id, "owner_id": ownerID}).
		ToSql()
	if err != nil {
		return wrap("setTaskCompleted", tasksTable, err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrap("setTaskCompleted", tasksTable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return wrap("setTaskCompleted", tasksTable, ErrNotFound)
	}
	return nil
}
