// Package session tracks the daily trading windows and the gates that can
// disable them.
package session

import (
	"fmt"
	"strings"
	"time"

	"zonebreak/internal/clock"
	"zonebreak/internal/config"
	"zonebreak/internal/events"
	"zonebreak/internal/logger"
)

// Session is one daily trading window. Price fields are only meaningful
// while Active.
type Session struct {
	Name   string
	Window clock.Window

	OpenPrice float64
	High      float64
	Low       float64

	Active      bool
	TradeOpened bool
	Allowed     bool
}

func (s *Session) activate(price float64) {
	s.Active = true
	s.OpenPrice = price
	s.High = price
	s.Low = price
}

func (s *Session) deactivate() {
	s.Active = false
	s.OpenPrice = 0
	s.High = 0
	s.Low = 0
}

// Disable shuts the session for the rest of the day. Only the daily reset
// restores Allowed.
func (s *Session) Disable() {
	s.Allowed = false
	if s.Active {
		s.deactivate()
	}
}

// Distance is the absolute move from session open.
func (s *Session) Distance(price float64) float64 {
	d := price - s.OpenPrice
	if d < 0 {
		return -d
	}
	return d
}

// Retraction is the pullback from the session extreme on the side matching
// the prospective entry direction: from the high when price sits in the
// upper half, from the low otherwise.
func (s *Session) Retraction(price float64) float64 {
	if price >= s.OpenPrice {
		return s.High - price
	}
	return price - s.Low
}

// Tracker owns both sessions and runs their lifecycle once per tick.
type Tracker struct {
	sessions []*Session
	sink     events.Sink
}

func NewTracker(cfgs []config.SessionConfig, sink events.Sink) (*Tracker, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("session tracker requires at least one session")
	}
	t := &Tracker{sink: sink}
	for _, c := range cfgs {
		open, err := clock.ParseTimeOfDay(c.Open)
		if err != nil {
			return nil, fmt.Errorf("session %s open: %w", c.Name, err)
		}
		cls, err := clock.ParseTimeOfDay(c.Close)
		if err != nil {
			return nil, fmt.Errorf("session %s close: %w", c.Name, err)
		}
		t.sessions = append(t.sessions, &Session{
			Name:    strings.TrimSpace(c.Name),
			Window:  clock.Window{Start: open, End: cls},
			Allowed: true,
		})
	}
	return t, nil
}

// Sessions returns the tracked sessions in configuration order.
func (t *Tracker) Sessions() []*Session {
	return t.sessions
}

// ByName returns the named session, or nil.
func (t *Tracker) ByName(name string) *Session {
	for _, s := range t.sessions {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// OnNewDay restores the per-day guards. Called once at the first tick of a
// new reference date.
func (t *Tracker) OnNewDay() {
	for _, s := range t.sessions {
		s.TradeOpened = false
		s.Allowed = true
	}
	logger.Infof("New trading day: sessions re-armed")
}

// UpdateLifecycle activates sessions whose window now contains the tick and
// deactivates sessions whose window it left. A session disabled by a gate
// stays down until OnNewDay.
func (t *Tracker) UpdateLifecycle(now time.Time, price float64) {
	for _, s := range t.sessions {
		in := s.Window.Contains(now)
		switch {
		case in && !s.Active && s.Allowed:
			s.activate(price)
			t.emit(events.SessionStart, now, map[string]any{
				"session": s.Name,
				"open":    price,
			})
		case !in && s.Active:
			open := s.OpenPrice
			s.deactivate()
			t.emit(events.SessionEnd, now, map[string]any{
				"session": s.Name,
				"open":    open,
				"last":    price,
			})
		}
	}
}

// UpdateHighLow widens the extremes of every active session.
func (t *Tracker) UpdateHighLow(price float64) {
	for _, s := range t.sessions {
		if !s.Active {
			continue
		}
		if price > s.High {
			s.High = price
		}
		if price < s.Low {
			s.Low = price
		}
	}
}

func (t *Tracker) emit(typ events.Type, at time.Time, fields map[string]any) {
	if t.sink == nil {
		return
	}
	t.sink.Emit(events.New(typ, at, fields))
}
