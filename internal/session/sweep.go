package session

import (
	"time"

	"zonebreak/internal/events"
)

// SweepMonitor watches distance-from-open on every active session. A move
// at or beyond the cancel level disables the session for the rest of the
// day regardless of where price goes afterwards.
type SweepMonitor struct {
	cancelLevel float64
	sink        events.Sink
}

func NewSweepMonitor(cancelLevel float64, sink events.Sink) *SweepMonitor {
	return &SweepMonitor{cancelLevel: cancelLevel, sink: sink}
}

// Check returns the sessions swept by this tick. The caller force-closes
// their trades before the zone evaluator runs, so a sweep always preempts
// a new entry on the same tick.
func (m *SweepMonitor) Check(t *Tracker, now time.Time, price float64) []*Session {
	var swept []*Session
	for _, s := range t.Sessions() {
		if !s.Active {
			continue
		}
		dist := s.Distance(price)
		if dist < m.cancelLevel {
			continue
		}
		open := s.OpenPrice
		s.Disable()
		swept = append(swept, s)
		if m.sink != nil {
			m.sink.Emit(events.New(events.Sweep, now, map[string]any{
				"session":  s.Name,
				"open":     open,
				"price":    price,
				"distance": dist,
				"level":    m.cancelLevel,
			}))
		}
	}
	return swept
}
