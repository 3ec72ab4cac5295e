package timemodel

import (
	"errors"
	"fmt"
	"time"
)

// MinutesPerDay is the upper bound of a TimeOfDay. It is only valid as an interval end.
const MinutesPerDay = 24 * 60

var ErrInvalidInterval = errors.New("invalid interval")

// TimeOfDay is a wall-clock time expressed as minutes since midnight.
type TimeOfDay uint16

func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("time of day %02d:%02d out of range", hour, minute)
	}
	return TimeOfDay(hour*60 + minute), nil
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("parse time of day %q: want HH:MM", s)
	}
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return NewTimeOfDay(h, m)
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Interval is a half-open range [Start, Start+DurationMinutes).
type Interval struct {
	Start           TimeOfDay
	DurationMinutes uint
}

// NewInterval builds a validated interval.
func NewInterval(start TimeOfDay, durationMinutes uint) (Interval, error) {
	iv := Interval{Start: start, DurationMinutes: durationMinutes}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// Span builds the interval [start, end).
func Span(start, end TimeOfDay) (Interval, error) {
	if end <= start {
		return Interval{}, fmt.Errorf("%w: end %s not after start %s", ErrInvalidInterval, end, start)
	}
	return NewInterval(start, uint(end-start))
}

func (iv Interval) Validate() error {
	if iv.DurationMinutes == 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidInterval)
	}
	if uint(iv.Start)+iv.DurationMinutes > MinutesPerDay {
		return fmt.Errorf("%w: %s+%dm runs past midnight", ErrInvalidInterval, iv.Start, iv.DurationMinutes)
	}
	return nil
}

func (iv Interval) End() TimeOfDay {
	return iv.Start + TimeOfDay(iv.DurationMinutes)
}

func (iv Interval) String() string {
	return iv.Start.String() + "-" + iv.End().String()
}

// Overlaps reports whether a and b share at least one minute. Back-to-back
// intervals do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End() && b.Start < a.End()
}

// Contains reports whether inner lies entirely within outer.
func Contains(outer, inner Interval) bool {
	return outer.Start <= inner.Start && inner.End() <= outer.End()
}

// Clip returns the part of iv inside [windowStart, windowEnd), or false when
// nothing remains.
func Clip(iv Interval, windowStart, windowEnd TimeOfDay) (Interval, bool) {
	start := max(iv.Start, windowStart)
	end := min(iv.End(), windowEnd)
	if end <= start {
		return Interval{}, false
	}
	return Interval{Start: start, DurationMinutes: uint(end - start)}, true
}

// ToOffsetMinutes maps iv onto a grid that begins at dayStart. top may be
// negative when iv starts before dayStart; callers clip first.
func ToOffsetMinutes(iv Interval, dayStart TimeOfDay) (top, height int) {
	return int(iv.Start) - int(dayStart), int(iv.DurationMinutes)
}

// Date is a calendar day formatted as YYYY-MM-DD.
type Date string

const dateLayout = "2006-01-02"

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date(t.Format(dateLayout)), nil
}

// DateOf returns the calendar day of t in its own location.
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// At returns the instant of tod on d in loc.
func (d Date) At(tod TimeOfDay, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, string(d), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", d, err)
	}
	return day.Add(time.Duration(tod) * time.Minute), nil
}

func (d Date) String() string { return string(d) }
