// Package layout turns an appointment snapshot into calendar geometry.
package layout

import (
	"bytes"
	"sort"

	"github.com/google/uuid"

	"github.com/hackgods/salon-scheduling/internal/schedule"
	"github.com/hackgods/salon-scheduling/internal/timemodel"
)

// State is the visual state the calendar renders a box with.
type State string

const (
	StateConfirmed State = "confirmed"
	StatePending   State = "pending"
	StateSoftLock  State = "soft_lock"
)

// EventBox is one appointment placed on the grid. Top and Height are minutes
// relative to the window start. Lane is the sub-column inside the resource
// column and Lanes the number of sub-columns that column needs.
type EventBox struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	ResourceID    string    `json:"resource_id"`
	Column        int       `json:"column"`
	Lane          int       `json:"lane"`
	Lanes         int       `json:"lanes"`
	Top           int       `json:"top"`
	Height        int       `json:"height"`
	Start         string    `json:"start"`
	End           string    `json:"end"`
	State         State     `json:"state"`
}

func stateOf(a schedule.Appointment) (State, bool) {
	switch a.Status {
	case schedule.StatusConfirmed:
		return StateConfirmed, true
	case schedule.StatusProposed:
		if a.Origin == schedule.OriginAgent {
			return StateSoftLock, true
		}
		return StatePending, true
	}
	return "", false
}

type placed struct {
	appt    schedule.Appointment
	clipped timemodel.Interval
	state   State
}

// Project lays out the active appointments of resources that intersect window.
// Each resource gets the column of its position in resources. Overlapping
// boxes in one column get distinct lanes by greedy leftmost fit. The result is
// a pure function of the input.
func Project(appts []schedule.Appointment, resources []string, window timemodel.Interval) []EventBox {
	column := make(map[string]int, len(resources))
	for i, rid := range resources {
		if _, dup := column[rid]; !dup {
			column[rid] = i
		}
	}

	byResource := make(map[string][]placed)
	for _, a := range appts {
		if _, ok := column[a.ResourceID]; !ok {
			continue
		}
		state, visible := stateOf(a)
		if !visible {
			continue
		}
		clipped, ok := timemodel.Clip(a.Interval, window.Start, window.End())
		if !ok {
			continue
		}
		byResource[a.ResourceID] = append(byResource[a.ResourceID], placed{appt: a, clipped: clipped, state: state})
	}

	var boxes []EventBox
	for rid, items := range byResource {
		boxes = append(boxes, assignLanes(rid, column[rid], items, window.Start)...)
	}

	sort.Slice(boxes, func(i, j int) bool {
		a, b := boxes[i], boxes[j]
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		if a.Lane != b.Lane {
			return a.Lane < b.Lane
		}
		if a.Top != b.Top {
			return a.Top < b.Top
		}
		return bytes.Compare(a.AppointmentID[:], b.AppointmentID[:]) < 0
	})
	return boxes
}

func assignLanes(resourceID string, col int, items []placed, windowStart timemodel.TimeOfDay) []EventBox {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].appt.Interval, items[j].appt.Interval
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End() != b.End() {
			return a.End() < b.End()
		}
		return bytes.Compare(items[i].appt.ID[:], items[j].appt.ID[:]) < 0
	})

	// laneEnds[k] is the end of the last box placed in lane k.
	var laneEnds []timemodel.TimeOfDay
	boxes := make([]EventBox, 0, len(items))
	for _, it := range items {
		iv := it.appt.Interval
		lane := -1
		for k, end := range laneEnds {
			if end <= iv.Start {
				lane = k
				break
			}
		}
		if lane < 0 {
			lane = len(laneEnds)
			laneEnds = append(laneEnds, 0)
		}
		laneEnds[lane] = iv.End()

		top, height := timemodel.ToOffsetMinutes(it.clipped, windowStart)
		boxes = append(boxes, EventBox{
			AppointmentID: it.appt.ID,
			ResourceID:    resourceID,
			Column:        col,
			Lane:          lane,
			Top:           top,
			Height:        height,
			Start:         iv.Start.String(),
			End:           iv.End().String(),
			State:         it.state,
		})
	}
	for i := range boxes {
		boxes[i].Lanes = len(laneEnds)
	}
	return boxes
}
