package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock minute in the reference timezone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("clock: invalid time of day %q (want HH:MM)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("clock: invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("clock: invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func MustTimeOfDay(s string) TimeOfDay {
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return tod
}

func (t TimeOfDay) Minutes() int    { return t.Hour*60 + t.Minute }
func (t TimeOfDay) String() string  { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }
func (t TimeOfDay) IsZero() bool    { return t.Hour == 0 && t.Minute == 0 }

// Matches reports whether now falls on exactly this wall-clock minute.
func (t TimeOfDay) Matches(now time.Time) bool {
	return now.Hour() == t.Hour && now.Minute() == t.Minute
}

// OnDate anchors the time of day onto the calendar date of ref, keeping
// ref's location.
func (t TimeOfDay) OnDate(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour, t.Minute, 0, 0, ref.Location())
}

// Window is a half-open [Start, End) wall-clock interval. When End < Start
// the window wraps past midnight: [Start, 24:00) ∪ [00:00, End).
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

func ParseWindow(start, end string) (Window, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return Window{}, err
	}
	if s == e {
		return Window{}, fmt.Errorf("clock: window %s-%s is empty", start, end)
	}
	return Window{Start: s, End: e}, nil
}

func (w Window) Contains(now time.Time) bool {
	m := now.Hour()*60 + now.Minute()
	start, end := w.Start.Minutes(), w.End.Minutes()
	if end < start {
		return m >= start || m < end
	}
	return m >= start && m < end
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}
