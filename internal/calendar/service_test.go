package calendar

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderlyflow/internal/ics"
	"orderlyflow/internal/model"
	"orderlyflow/internal/store"
)

func newTestService(t *testing.T, repo Repository, opts Options) *Service {
	t.Helper()
	if opts.NewSeriesID == nil {
		opts.NewSeriesID = func() string { return "series-1" }
	}
	return NewService(repo, opts)
}

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func weeklyInput() EventInput {
	return EventInput{
		OwnerID:           "alice",
		Title:             "Water plants",
		Start:             utc(2024, 1, 1, 10, 0),
		End:               ptr(utc(2024, 1, 1, 11, 0)),
		Color:             "Green",
		IsRecurring:       true,
		RecurrencePattern: "weekly",
		RecurrenceEndDate: ptr(utc(2024, 1, 22, 0, 0)),
	}
}

func TestCreateEventSingle(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo, Options{})

	res, err := svc.CreateEvent(context.Background(), EventInput{
		OwnerID: "alice",
		Title:   "  Plumber visit ",
		Start:   utc(2024, 2, 3, 9, 0),
		End:     ptr(utc(2024, 2, 3, 10, 30)),
	})
	require.NoError(t, err)

	require.Len(t, res.Events, 1)
	assert.Empty(t, res.SeriesID)
	assert.False(t, res.Truncated)

	ev := res.Events[0]
	assert.Equal(t, "Plumber visit", ev.Title)
	assert.Equal(t, model.ColorGray, ev.Color)
	assert.False(t, ev.IsRecurring)
	assert.Equal(t, 90*time.Minute, ev.Duration())
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, 1, repo.insertCalls)
}

func TestCreateEventRecurringStoresWholeSeriesAtOnce(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo, Options{})

	res, err := svc.CreateEvent(context.Background(), weeklyInput())
	require.NoError(t, err)

	assert.Equal(t, "series-1", res.SeriesID)
	require.Len(t, res.Events, 4)
	assert.Equal(t, 1, repo.insertCalls)
	assert.Len(t, repo.events, 4)

	for i, ev := range res.Events {
		assert.Equal(t, utc(2024, 1, 1+7*i, 10, 0), ev.Start)
		assert.Equal(t, "series-1", ev.SeriesID)
		assert.Equal(t, model.ColorGreen, ev.Color)
		assert.True(t, ev.IsRecurring)
		assert.Equal(t, model.PatternWeekly, ev.RecurrencePattern)
	}
}

func TestCreateEventValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EventInput)
		msg    string
	}{
		{"missing title", func(in *EventInput) { in.Title = "   " }, "title is required"},
		{"missing owner", func(in *EventInput) { in.OwnerID = "" }, "owner_id is required"},
		{"missing start", func(in *EventInput) { in.Start = time.Time{} }, "start is required"},
		{"timed without end", func(in *EventInput) { in.End = nil }, "end is required"},
		{"end before start", func(in *EventInput) { in.End = ptr(utc(2023, 12, 31, 9, 0)) }, "end must not be before start"},
		{"unsupported color", func(in *EventInput) { in.Color = "orange" }, "color must be one of"},
		{"recurring without pattern", func(in *EventInput) { in.RecurrencePattern = "" }, "recurrence_pattern is required"},
		{
			"recurrence ends before start",
			func(in *EventInput) { in.RecurrenceEndDate = ptr(utc(2023, 12, 25, 0, 0)) },
			"recurrence_end_date must not be before the start date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			svc := newTestService(t, repo, Options{})

			in := weeklyInput()
			tt.mutate(&in)
			_, err := svc.CreateEvent(context.Background(), in)

			require.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.msg)
			assert.Zero(t, repo.insertCalls)
		})
	}
}

func TestCreateEventRecurrenceEndOnStartDayIsAllowed(t *testing.T) {
	svc := newTestService(t, newMemRepo(), Options{})

	in := weeklyInput()
	in.RecurrenceEndDate = ptr(utc(2024, 1, 1, 0, 0))
	res, err := svc.CreateEvent(context.Background(), in)

	require.NoError(t, err)
	assert.Len(t, res.Events, 1)
}

func TestCreateEventStoreFailureWritesNothing(t *testing.T) {
	repo := newMemRepo()
	repo.failInsert = errors.New("disk full")
	svc := newTestService(t, repo, Options{})

	_, err := svc.CreateEvent(context.Background(), weeklyInput())

	require.ErrorIs(t, err, repo.failInsert)
	assert.Empty(t, repo.events)
}

func TestCreateEventUnknownPatternWarns(t *testing.T) {
	svc := newTestService(t, newMemRepo(), Options{})

	in := weeklyInput()
	in.RecurrencePattern = "fortnightly"
	in.RecurrenceEndDate = ptr(utc(2024, 1, 5, 0, 0))
	res, err := svc.CreateEvent(context.Background(), in)

	require.NoError(t, err)
	assert.Len(t, res.Events, 5)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], `"fortnightly"`)
}

func TestCreateEventTruncationIsReported(t *testing.T) {
	svc := newTestService(t, newMemRepo(), Options{})

	in := weeklyInput()
	in.RecurrencePattern = "daily"
	in.RecurrenceEndDate = nil
	res, err := svc.CreateEvent(context.Background(), in)

	require.NoError(t, err)
	assert.Len(t, res.Events, 100)
	assert.True(t, res.Truncated)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "stopped at 100 occurrences")
}

func TestCreateEventHonorsConfiguredCap(t *testing.T) {
	svc := newTestService(t, newMemRepo(), Options{MaxInstances: 10})

	in := weeklyInput()
	in.RecurrencePattern = "daily"
	res, err := svc.CreateEvent(context.Background(), in)

	require.NoError(t, err)
	assert.Len(t, res.Events, 10)
	assert.True(t, res.Truncated)
}

func TestCreateEventAllDayUsesServiceLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	svc := newTestService(t, newMemRepo(), Options{Location: loc})

	res, err := svc.CreateEvent(context.Background(), EventInput{
		OwnerID: "alice",
		Title:   "Gutter cleaning",
		Start:   utc(2024, 5, 10, 15, 30),
		End:     ptr(utc(2024, 5, 10, 16, 30)),
		AllDay:  true,
	})
	require.NoError(t, err)

	ev := res.Events[0]
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, loc), ev.Start)
	assert.Nil(t, ev.End)
	assert.True(t, ev.AllDay)
}

func TestPreviewExpansionDoesNotPersist(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo, Options{})

	res, err := svc.PreviewExpansion(weeklyInput())

	require.NoError(t, err)
	assert.Len(t, res.Events, 4)
	assert.Zero(t, repo.insertCalls)
	for _, ev := range res.Events {
		assert.Empty(t, ev.ID)
	}
}

func TestDeleteEventLeavesRestOfSeries(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := newTestService(t, repo, Options{})

	res, err := svc.CreateEvent(ctx, weeklyInput())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteEvent(ctx, "alice", res.Events[1].ID))
	remaining, err := svc.ListSeries(ctx, "alice", res.SeriesID)
	require.NoError(t, err)
	assert.Len(t, remaining, 3)

	err = svc.DeleteEvent(ctx, "bob", res.Events[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := svc.DeleteSeries(ctx, "alice", res.SeriesID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = svc.ListSeries(ctx, "alice", res.SeriesID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListEventsLocalizesTimes(t *testing.T) {
	ctx := context.Background()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	repo := newMemRepo()
	svc := newTestService(t, repo, Options{Location: loc})

	_, err = svc.CreateEvent(ctx, weeklyInput())
	require.NoError(t, err)

	from := utc(2024, 1, 7, 0, 0)
	to := utc(2024, 1, 16, 0, 0)
	events, err := svc.ListEvents(ctx, "alice", &from, &to)
	require.NoError(t, err)

	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, loc, ev.Start.Location())
		assert.Equal(t, 11, ev.Start.Hour())
	}

	got, err := svc.GetEvent(ctx, "alice", events[0].ID)
	require.NoError(t, err)
	assert.Equal(t, loc, got.Start.Location())
}

func TestCreateTaskSyncsRecurringSeries(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := newTestService(t, repo, Options{})

	home, err := svc.CreateHome(ctx, HomeInput{OwnerID: "alice", Name: "Lake house"})
	require.NoError(t, err)

	res, err := svc.CreateTask(ctx, TaskInput{
		OwnerID:           "alice",
		HomeID:            home.ID,
		Title:             "Replace HVAC filter",
		DueDate:           ptr(utc(2024, 1, 31, 14, 0)),
		Priority:          "HIGH",
		IsRecurring:       true,
		RecurrencePattern: "monthly",
		RecurrenceEndDate: ptr(utc(2024, 4, 30, 0, 0)),
	})
	require.NoError(t, err)

	assert.True(t, res.CalendarSynced)
	assert.Empty(t, res.SyncError)
	assert.Equal(t, "series-1", res.SeriesID)
	assert.Equal(t, model.PriorityHigh, res.Task.Priority)

	want := []time.Time{
		utc(2024, 1, 31, 0, 0),
		utc(2024, 2, 29, 0, 0),
		utc(2024, 3, 31, 0, 0),
		utc(2024, 4, 30, 0, 0),
	}
	require.Len(t, res.Events, len(want))
	for i, ev := range res.Events {
		assert.Equal(t, want[i], ev.Start)
		assert.True(t, ev.AllDay)
		assert.Equal(t, model.ColorYellow, ev.Color)
		assert.Equal(t, res.Task.ID, ev.LinkedTaskID)
		assert.Equal(t, home.ID, ev.LinkedHomeID)
	}
}

func TestCreateTaskOneOff(t *testing.T) {
	svc := newTestService(t, newMemRepo(), Options{})

	res, err := svc.CreateTask(context.Background(), TaskInput{
		OwnerID: "alice",
		Title:   "Test smoke alarms",
		DueDate: ptr(utc(2024, 6, 1, 0, 0)),
	})
	require.NoError(t, err)

	assert.True(t, res.CalendarSynced)
	require.Len(t, res.Events, 1)
	assert.Equal(t, model.ColorBlue, res.Events[0].Color)
	assert.Empty(t, res.SeriesID)
}

func TestCreateTaskWithoutDueDateSkipsCalendar(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo, Options{})

	res, err := svc.CreateTask(context.Background(), TaskInput{OwnerID: "alice", Title: "Someday: paint fence"})
	require.NoError(t, err)

	assert.False(t, res.CalendarSynced)
	assert.Empty(t, res.SyncError)
	assert.Zero(t, repo.insertCalls)
}

func TestCreateTaskSyncFailureKeepsTask(t *testing.T) {
	repo := newMemRepo()
	repo.failInsert = errors.New("disk full")
	svc := newTestService(t, repo, Options{})

	res, err := svc.CreateTask(context.Background(), TaskInput{
		OwnerID:  "alice",
		Title:    "Clean chimney",
		DueDate:  ptr(utc(2024, 10, 1, 0, 0)),
		Priority: model.PriorityUrgent,
	})
	require.NoError(t, err)

	assert.False(t, res.CalendarSynced)
	assert.Contains(t, res.SyncError, "disk full")
	assert.Len(t, repo.tasks, 1)
	assert.Empty(t, repo.events)
}

func TestCreateTaskValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newMemRepo(), Options{})

	_, err := svc.CreateTask(ctx, TaskInput{OwnerID: "alice", Title: "x", HomeID: "nope"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "home_id nope")

	_, err = svc.CreateTask(ctx, TaskInput{OwnerID: "alice", Title: "x", IsRecurring: true, RecurrencePattern: "weekly"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "due_date is required")

	_, err = svc.CreateTask(ctx, TaskInput{OwnerID: "alice", Title: "x", Priority: "someday"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "priority must be one of")
}

func TestCompleteTask(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newMemRepo(), Options{})

	res, err := svc.CreateTask(ctx, TaskInput{OwnerID: "alice", Title: "Descale kettle"})
	require.NoError(t, err)

	done, err := svc.CompleteTask(ctx, "alice", res.Task.ID)
	require.NoError(t, err)
	assert.True(t, done.Completed)

	open, err := svc.ListTasks(ctx, store.TaskFilter{OwnerID: "alice", Completed: ptr(false)})
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = svc.CompleteTask(ctx, "alice", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestColorForPriority(t *testing.T) {
	assert.Equal(t, model.ColorGreen, ColorForPriority(model.PriorityLow))
	assert.Equal(t, model.ColorBlue, ColorForPriority(model.PriorityMedium))
	assert.Equal(t, model.ColorYellow, ColorForPriority(model.PriorityHigh))
	assert.Equal(t, model.ColorRed, ColorForPriority(model.PriorityUrgent))
	assert.Equal(t, model.ColorGray, ColorForPriority("unknown"))
}

func TestImportEventsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := newTestService(t, repo, Options{})

	items := []ics.Imported{
		{
			UID: "bins@council",
			Anchor: model.AnchorEvent{
				Title:             "Bin collection",
				Start:             utc(2024, 1, 2, 0, 0),
				AllDay:            true,
				RecurrencePattern: model.PatternBiWeekly,
				RecurrenceEndDate: ptr(utc(2024, 2, 27, 0, 0)),
			},
		},
		{
			UID:         "yoga@studio",
			Anchor:      model.AnchorEvent{Title: "Yoga", Start: utc(2024, 1, 1, 18, 0), End: utc(2024, 1, 1, 19, 0)},
			Occurrences: []time.Time{utc(2024, 1, 1, 18, 0), utc(2024, 1, 3, 18, 0)},
		},
		{
			UID:    "party@friends",
			Anchor: model.AnchorEvent{Start: utc(2024, 3, 9, 20, 0)},
		},
	}
	opts := ImportOptions{OwnerID: "alice", Color: model.ColorPurple, Origin: "test"}

	first, err := svc.ImportEvents(ctx, opts, items)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Items)
	assert.Equal(t, 8, first.Instances)
	assert.Equal(t, int64(8), first.Inserted)
	assert.Zero(t, first.Skipped)

	second, err := svc.ImportEvents(ctx, opts, items)
	require.NoError(t, err)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, int64(8), second.Skipped)
	assert.Len(t, repo.events, 8)

	bins := importSeriesID("alice", "bins@council")
	series, err := svc.ListSeries(ctx, "alice", bins)
	require.NoError(t, err)
	assert.Len(t, series, 5)
	for _, ev := range series {
		assert.Equal(t, "bins@council", ev.ExternalUID)
		assert.Equal(t, model.ColorPurple, ev.Color)
	}

	yoga, err := svc.ListSeries(ctx, "alice", importSeriesID("alice", "yoga@studio"))
	require.NoError(t, err)
	require.Len(t, yoga, 2)
	assert.Equal(t, time.Hour, yoga[1].Duration())

	var party model.EventInstance
	for _, ev := range repo.events {
		if ev.ExternalUID == "party@friends" {
			party = ev
		}
	}
	assert.Equal(t, "(untitled)", party.Title)
	assert.Empty(t, party.SeriesID)
}

func TestImportEventsRejectsBadOptions(t *testing.T) {
	svc := newTestService(t, newMemRepo(), Options{})

	_, err := svc.ImportEvents(context.Background(), ImportOptions{}, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.ImportEvents(context.Background(), ImportOptions{OwnerID: "alice", Color: "teal"}, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateHomeValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newMemRepo(), Options{})

	_, err := svc.CreateHome(ctx, HomeInput{OwnerID: "alice"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "name is required")

	h, err := svc.CreateHome(ctx, HomeInput{OwnerID: "alice", Name: " Cabin ", Address: "1 Pine Rd"})
	require.NoError(t, err)
	assert.Equal(t, "Cabin", h.Name)

	homes, err := svc.ListHomes(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, homes, 1)
}
