package ics

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/salon-scheduling/internal/schedule"
	"github.com/hackgods/salon-scheduling/internal/timemodel"
)

func appt(status schedule.AppointmentStatus, start timemodel.TimeOfDay, minutes uint) schedule.Appointment {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	return schedule.Appointment{
		ID:         uuid.New(),
		ResourceID: "juliana",
		Date:       "2026-10-20",
		Interval:   timemodel.Interval{Start: start, DurationMinutes: minutes},
		Status:     status,
		Origin:     schedule.OriginAgent,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestExport(t *testing.T) {
	confirmed := appt(schedule.StatusConfirmed, 14*60, 45)
	held := appt(schedule.StatusProposed, 16*60, 30)
	gone := appt(schedule.StatusExpired, 10*60, 30)

	out, err := Export([]schedule.Appointment{confirmed, held, gone}, time.UTC)
	require.NoError(t, err)

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)

	events := cal.Events()
	require.Len(t, events, 2)

	byID := make(map[string]*ical.VEvent)
	for _, ev := range events {
		byID[ev.Id()] = ev
	}

	ev := byID[confirmed.ID.String()]
	require.NotNil(t, ev)
	assert.Equal(t, "CONFIRMED", ev.GetProperty(ical.ComponentPropertyStatus).Value)
	assert.Equal(t, "20261020T140000Z", ev.GetProperty(ical.ComponentPropertyDtStart).Value)
	assert.Equal(t, "20261020T144500Z", ev.GetProperty(ical.ComponentPropertyDtEnd).Value)

	ev = byID[held.ID.String()]
	require.NotNil(t, ev)
	assert.Equal(t, "TENTATIVE", ev.GetProperty(ical.ComponentPropertyStatus).Value)

	assert.NotContains(t, out, gone.ID.String())
}
