package ics

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderlyflow/internal/model"
)

func TestExport(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	end := time.Date(2024, 1, 5, 15, 0, 0, 0, time.UTC)
	events := []model.EventInstance{
		{
			ID:          "evt-1",
			Title:       "Bin collection",
			Start:       time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC), // midnight in New York
			AllDay:      true,
			Color:       model.ColorGreen,
			IsRecurring: true,
			SeriesID:    "series-1",
		},
		{
			ID:          "evt-2",
			Title:       "Plumber",
			Description: "Kitchen sink",
			Location:    "Home",
			Start:       time.Date(2024, 1, 5, 14, 0, 0, 0, time.UTC),
			End:         &end,
		},
	}

	out := Export("Household", ny, events)

	assert.Contains(t, out, "X-WR-CALNAME:Household")
	assert.Contains(t, out, "DTSTART;VALUE=DATE:20240102")
	assert.Contains(t, out, "DTEND;VALUE=DATE:20240103")
	assert.Contains(t, out, "DTSTART:20240105T140000Z")
	assert.Contains(t, out, "DTEND:20240105T150000Z")
	assert.Contains(t, out, SeriesProperty+":series-1")
	assert.Equal(t, 1, strings.Count(out, SeriesProperty))

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)
	parsed := cal.Events()
	require.Len(t, parsed, 2)
	assert.Equal(t, "evt-1", parsed[0].Id())
	assert.Equal(t, "Kitchen sink", parsed[1].GetProperty(ical.ComponentPropertyDescription).Value)
}

func TestExportRoundTripsThroughParse(t *testing.T) {
	events := []model.EventInstance{{
		ID:    "evt-1",
		Title: "Dentist",
		Start: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}}

	items, err := Parse(Source{ID: "self"}, []byte(Export("", time.UTC, events)), time.UTC)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "evt-1", items[0].UID)
	assert.Equal(t, "Dentist", items[0].Anchor.Title)
	assert.True(t, items[0].Anchor.Start.Equal(events[0].Start))
	assert.False(t, items[0].Recurring())
}
