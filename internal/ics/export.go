// Package ics renders appointments as an iCalendar feed.
package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/hackgods/salon-scheduling/internal/schedule"
)

const productID = "-//salon-scheduling//appointments//PT"

// Export writes the active appointments as VEVENTs. Holds are TENTATIVE and
// confirmed appointments CONFIRMED; terminal ones are left out. Times are
// resolved in loc.
func Export(appts []schedule.Appointment, loc *time.Location) (string, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, a := range appts {
		var status ical.ObjectStatus
		switch a.Status {
		case schedule.StatusConfirmed:
			status = ical.ObjectStatusConfirmed
		case schedule.StatusProposed:
			status = ical.ObjectStatusTentative
		default:
			continue
		}

		start, err := a.Date.At(a.Interval.Start, loc)
		if err != nil {
			return "", fmt.Errorf("appointment %s: %w", a.ID, err)
		}

		ev := cal.AddEvent(a.ID.String())
		ev.SetCreatedTime(a.CreatedAt)
		ev.SetDtStampTime(a.UpdatedAt)
		ev.SetModifiedAt(a.UpdatedAt)
		ev.SetStartAt(start)
		ev.SetEndAt(start.Add(time.Duration(a.Interval.DurationMinutes) * time.Minute))
		ev.SetSummary(summary(a))
		ev.SetStatus(status)
		ev.SetLocation(a.ResourceID)
	}

	return cal.Serialize(), nil
}

func summary(a schedule.Appointment) string {
	if a.Status == schedule.StatusProposed {
		return fmt.Sprintf("Hold %s (%s)", a.Interval, a.Origin)
	}
	return fmt.Sprintf("Appointment %s", a.Interval)
}
