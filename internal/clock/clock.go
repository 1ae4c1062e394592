package clock

import (
	"fmt"
	"strings"
	"time"
)

// Reference converts host timestamps into the strategy's reference timezone.
// Every window comparison in the engine goes through Convert first; a failed
// conversion is surfaced as an error so callers treat the tick as outside all
// windows instead of silently comparing against raw local time.
type Reference struct {
	name     string
	loc      *time.Location
	fallback *euRuleZone
}

// euRuleZone implements the EU daylight-saving rule by hand: DST runs from the
// last Sunday of March 01:00 UTC to the last Sunday of October 01:00 UTC.
// Used only when the IANA database cannot be loaded on the host.
type euRuleZone struct {
	stdName   string
	dstName   string
	stdOffset time.Duration
	dstOffset time.Duration
}

// fallbackZones covers the reference zones the engine is expected to run in.
var fallbackZones = map[string]euRuleZone{
	"Europe/London": {stdName: "GMT", dstName: "BST", stdOffset: 0, dstOffset: time.Hour},
	"Europe/Berlin": {stdName: "CET", dstName: "CEST", stdOffset: time.Hour, dstOffset: 2 * time.Hour},
}

func NewReference(name string) (*Reference, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("clock: reference timezone cannot be empty")
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return &Reference{name: name, loc: loc}, nil
	}
	if zone, ok := fallbackZones[name]; ok {
		return &Reference{name: name, fallback: &zone}, nil
	}
	return nil, fmt.Errorf("clock: unknown reference timezone %q and no fallback rule", name)
}

func (r *Reference) Name() string { return r.name }

// Location returns the reference location when the IANA database supplied
// one, UTC otherwise. Only used for parsing user-supplied date strings; tick
// conversion always goes through Convert.
func (r *Reference) Location() *time.Location {
	if r == nil || r.loc == nil {
		return time.UTC
	}
	return r.loc
}

// Convert returns t expressed in the reference timezone.
func (r *Reference) Convert(t time.Time) (time.Time, error) {
	if r == nil {
		return time.Time{}, fmt.Errorf("clock: nil reference")
	}
	if t.IsZero() {
		return time.Time{}, fmt.Errorf("clock: zero timestamp")
	}
	if r.loc != nil {
		return t.In(r.loc), nil
	}
	return r.fallback.convert(t), nil
}

func (z *euRuleZone) convert(t time.Time) time.Time {
	utc := t.UTC()
	offset := z.stdOffset
	name := z.stdName
	if z.inDST(utc) {
		offset = z.dstOffset
		name = z.dstName
	}
	loc := time.FixedZone(name, int(offset/time.Second))
	return utc.In(loc)
}

func (z *euRuleZone) inDST(utc time.Time) bool {
	year := utc.Year()
	start := lastSundayUTC(year, time.March).Add(time.Hour)   // 01:00 UTC
	end := lastSundayUTC(year, time.October).Add(time.Hour)   // 01:00 UTC
	return !utc.Before(start) && utc.Before(end)
}

// lastSundayUTC returns midnight UTC of the last Sunday of the given month.
func lastSundayUTC(year int, month time.Month) time.Time {
	// Day 0 of the next month is the last day of this month.
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	return last.AddDate(0, 0, -int(last.Weekday()))
}
