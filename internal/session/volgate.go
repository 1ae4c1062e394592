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

// checkpoint samples a reference price ahead of a session and compares the
// move against a limit when the session is about to open.
type checkpoint struct {
	name     string
	window   clock.Window // [capture, evaluate)
	maxRange float64
	session  string

	refPrice float64
	captured bool
}

// Gate disables a session whose pre-open move exceeds the configured range.
type Gate struct {
	checkpoints []*checkpoint
	sink        events.Sink
}

func NewGate(cfg config.VolatilityConfig, sink events.Sink) (*Gate, error) {
	g := &Gate{sink: sink}
	for _, c := range cfg.Checkpoints {
		capture, err := clock.ParseTimeOfDay(c.Capture)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %s capture: %w", c.Name, err)
		}
		evaluate, err := clock.ParseTimeOfDay(c.Evaluate)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %s evaluate: %w", c.Name, err)
		}
		g.checkpoints = append(g.checkpoints, &checkpoint{
			name:     strings.TrimSpace(c.Name),
			window:   clock.Window{Start: capture, End: evaluate},
			maxRange: c.MaxRange,
			session:  strings.TrimSpace(c.Session),
		})
	}
	return g, nil
}

// Observe runs capture and evaluation for every checkpoint on this tick.
// A checkpoint that was never captured (process started mid-window) leaves
// the session allowed: absence of a reference price is not evidence of
// volatility.
func (g *Gate) Observe(t *Tracker, now time.Time, price float64) {
	for _, cp := range g.checkpoints {
		inCapture := cp.window.Contains(now)
		switch {
		case inCapture && !cp.captured:
			cp.refPrice = price
			cp.captured = true
			logger.Debugf("volatility checkpoint %s captured ref=%.1f", cp.name, price)
		case !inCapture && cp.captured:
			g.evaluate(t, cp, now, price)
		}
	}
}

func (g *Gate) evaluate(t *Tracker, cp *checkpoint, now time.Time, price float64) {
	defer func() {
		cp.captured = false
		cp.refPrice = 0
	}()
	s := t.ByName(cp.session)
	if s == nil {
		return
	}
	move := price - cp.refPrice
	if move < 0 {
		move = -move
	}
	if move >= cp.maxRange {
		s.Disable()
		if g.sink != nil {
			g.sink.Emit(events.New(events.VolFilter, now, map[string]any{
				"checkpoint": cp.name,
				"session":    s.Name,
				"ref":        cp.refPrice,
				"price":      price,
				"move":       move,
				"limit":      cp.maxRange,
			}))
		}
		return
	}
	s.Allowed = true
	logger.Debugf("volatility checkpoint %s passed: move=%.1f limit=%.1f", cp.name, move, cp.maxRange)
}
