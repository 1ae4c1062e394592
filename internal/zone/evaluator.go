// Package zone holds the entry decision algorithm: distance-from-open is
// mapped onto the configured level sequence, adjusted by the retraction
// table, and turned into a directional entry or "no trade".
package zone

import (
	"zonebreak/internal/rules"
	"zonebreak/internal/session"
)

type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

type Outcome int

const (
	// NoTrade means nothing to do on this tick.
	NoTrade Outcome = iota
	// Enter carries a valid entry decision.
	Enter
	// DisableSession means the session is done for the day.
	DisableSession
)

// Decision is a fully resolved entry.
type Decision struct {
	Direction  Direction
	Level      float64
	Shift      float64
	EntryPrice float64
	Distance   float64
	Retraction float64
}

// FinalDistance is the adjusted distance the entry was taken at, used by
// the exit timers to pick a timeout band.
func (d Decision) FinalDistance() float64 {
	return d.Level + d.Shift
}

type Result struct {
	Outcome  Outcome
	Reason   string
	Decision Decision
}

func noTrade() Result {
	return Result{Outcome: NoTrade}
}

func disable(reason string) Result {
	return Result{Outcome: DisableSession, Reason: reason}
}

// Evaluator is pure with respect to its inputs: session snapshot, price and
// the rule tables. Repeated calls with unchanged inputs return the same
// result; all state mutation is left to the caller.
type Evaluator struct {
	tables    rules.Tables
	tolerance float64
}

func NewEvaluator(tables rules.Tables, tolerance float64) *Evaluator {
	return &Evaluator{tables: tables, tolerance: tolerance}
}

// Evaluate inspects an active, trade-eligible session against the current
// price and decides whether an entry is due.
func (e *Evaluator) Evaluate(s *session.Session, price float64) Result {
	if s == nil || !s.Active || !s.Allowed {
		return noTrade()
	}

	distance := s.Distance(price)
	if distance > e.tables.LastLevel()+e.tolerance {
		// With the session's trade still on, the session must stay live:
		// disabling it here would hide the move from the sweep monitor,
		// which is the only thing allowed to flatten past the cancel level.
		if s.TradeOpened {
			return noTrade()
		}
		return disable("overshoot")
	}

	levels := e.tables.ZoneLevels
	shift := 0.0
	retraction := s.Retraction(price)
	if rule, ok := e.tables.Lookup(retraction); ok {
		switch rule.Effect {
		case rules.EffectCancel:
			// Never cancel out from under an open position.
			if !s.TradeOpened {
				return disable("retraction_cancel")
			}
			return noTrade()
		case rules.EffectSkip:
			if rule.Levels >= len(levels) {
				return noTrade()
			}
			levels = levels[rule.Levels:]
		case rules.EffectShift:
			shift = rule.Points
		}
	}

	// Furthest level price has already reached.
	target := 0.0
	found := false
	for _, lvl := range levels {
		if lvl <= distance {
			target = lvl
			found = true
		}
	}
	if !found {
		return noTrade()
	}

	// Entries far past a blown-through level are rejected.
	if distance < target-e.tolerance || distance > target+e.tolerance {
		return noTrade()
	}

	dir := Sell
	entry := s.OpenPrice + target + shift
	if price < s.OpenPrice {
		dir = Buy
		entry = s.OpenPrice - target - shift
	}
	return Result{
		Outcome: Enter,
		Decision: Decision{
			Direction:  dir,
			Level:      target,
			Shift:      shift,
			EntryPrice: entry,
			Distance:   distance,
			Retraction: retraction,
		},
	}
}
