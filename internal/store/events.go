package store

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"orderlyflow/internal/model"
)

const eventsTable = "calendar_events"

// insertChunk bounds rows per INSERT statement to stay well under the
// bound-parameter limits of both drivers.
const insertChunk = 50

var eventColumns = []string{
	"id", "owner_id", "title", "description", "start_at", "end_at", "all_day",
	"location", "color", "task_id", "home_id", "is_recurring",
	"recurrence_pattern", "recurrence_end_date", "series_id", "external_uid",
	"created_at",
}

// EventFilter narrows ListEvents. OwnerID is required; zero values of the
// other fields are ignored. From/To bound start_at inclusively.
type EventFilter struct {
	OwnerID  string
	From     *time.Time
	To       *time.Time
	SeriesID string
	TaskID   string
	HomeID   string
}

// InsertEvents persists all events in one transaction. Missing IDs and
// CreatedAt are filled in on the passed slice. Either every row is
// written or none is.
func (s *Store) InsertEvents(ctx context.Context, events []model.EventInstance) error {
	if len(events) == 0 {
		return nil
	}
	prepareEvents(events)

	err := s.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		for startIdx := 0; startIdx < len(events); startIdx += insertChunk {
			end := min(startIdx+insertChunk, len(events))
			query, args, err := s.eventInsert(events[startIdx:end]).ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return err
			}
		}
		return nil
	})
	return wrap("insertEvents", eventsTable, err)
}

// InsertImportedEvents writes events that carry an ExternalUID, skipping
// rows already imported for the same owner, UID and start. It returns the
// number of new rows.
func (s *Store) InsertImportedEvents(ctx context.Context, events []model.EventInstance) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	prepareEvents(events)

	var inserted int64
	err := s.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		for startIdx := 0; startIdx < len(events); startIdx += insertChunk {
			end := min(startIdx+insertChunk, len(events))
			query, args, err := s.eventInsert(events[startIdx:end]).
				Suffix("ON CONFLICT (owner_id, external_uid, start_at) WHERE external_uid <> '' DO NOTHING").
				ToSql()
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += n
			}
		}
		return nil
	})
	if err != nil {
		return 0, wrap("insertImportedEvents", eventsTable, err)
	}
	return inserted, nil
}

func (s *Store) eventInsert(events []model.EventInstance) squirrel.InsertBuilder {
	q := s.sb.Insert(eventsTable).Columns(eventColumns...)
	for _, e := range events {
		q = q.Values(
			e.ID, e.OwnerID, e.Title, e.Description, e.Start.UTC(), utcPtr(e.End), e.AllDay,
			e.Location, string(e.Color), e.LinkedTaskID, e.LinkedHomeID, e.IsRecurring,
			string(e.RecurrencePattern), utcPtr(e.RecurrenceEndDate), e.SeriesID, e.ExternalUID,
			e.CreatedAt.UTC(),
		)
	}
	return q
}

// ListEvents returns events matching f ordered by start.
func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]model.EventInstance, error) {
	q := s.sb.Select(eventColumns...).From(eventsTable).
		Where(squirrel.Eq{"owner_id": f.OwnerID}).
		OrderBy("start_at ASC", "id ASC")
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"start_at": f.From.UTC()})
	}
	if f.To != nil {
		q = q.Where(squirrel.LtOrEq{"start_at": f.To.UTC()})
	}
	if f.SeriesID != "" {
		q = q.Where(squirrel.Eq{"series_id": f.SeriesID})
	}
	if f.TaskID != "" {
		q = q.Where(squirrel.Eq{"task_id": f.TaskID})
	}
	if f.HomeID != "" {
		q = q.Where(squirrel.Eq{"home_id": f.HomeID})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, wrap("listEvents", eventsTable, err)
	}
	events := make([]model.EventInstance, 0)
	if err := s.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, wrap("listEvents", eventsTable, err)
	}
	return events, nil
}

// GetEvent returns one event owned by ownerID.
func (s *Store) GetEvent(ctx context.Context, ownerID, id string) (model.EventInstance, error) {
	query, args, err := s.sb.Select(eventColumns...).From(eventsTable).
		Where(squirrel.Eq{"owner_id": ownerID, "id": id}).
		ToSql()
	if err != nil {
		return model.EventInstance{}, wrap("getEvent", eventsTable, err)
	}
	var ev model.EventInstance
	if err := s.db.GetContext(ctx, &ev, query, args...); err != nil {
		return model.EventInstance{}, wrap("getEvent", eventsTable, err)
	}
	return ev, nil
}

// DeleteEvent removes a single instance. Other instances of its series are
// left untouched.
func (s *Store) DeleteEvent(ctx context.Context, ownerID, id string) error {
	n, err := s.deleteEvents(ctx, "deleteEvent", squirrel.Eq{"owner_id": ownerID, "id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return wrap("deleteEvent", eventsTable, ErrNotFound)
	}
	return nil
}

// DeleteSeries removes every instance of a series and returns how many rows
// were deleted.
func (s *Store) DeleteSeries(ctx context.Context, ownerID, seriesID string) (int64, error) {
	n, err := s.deleteEvents(ctx, "deleteSeries", squirrel.Eq{"owner_id": ownerID, "series_id": seriesID})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, wrap("deleteSeries", eventsTable, ErrNotFound)
	}
	return n, nil
}

func (s *Store) deleteEvents(ctx context.Context, op string, where squirrel.Eq) (int64, error) {
	query, args, err := s.sb.Delete(eventsTable).Where(where).ToSql()
	if err != nil {
		return 0, wrap(op, eventsTable, err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrap(op, eventsTable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap(op, eventsTable, err)
	}
	return n, nil
}

func prepareEvents(events []model.EventInstance) {
	now := time.Now().UTC()
	for i := range events {
		if events[i].ID == "" {
			events[i].ID = uuid.NewString()
		}
		if events[i].CreatedAt.IsZero() {
			events[i].CreatedAt = now
		}
		if events[i].Color == "" {
			events[i].Color = model.ColorGray
		}
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
