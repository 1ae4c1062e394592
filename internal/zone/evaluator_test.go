package zone

import (
	"testing"

	"zonebreak/internal/rules"
	"zonebreak/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeSession(open, high, low float64) *session.Session {
	return &session.Session{
		Name:      "morning",
		OpenPrice: open,
		High:      high,
		Low:       low,
		Active:    true,
		Allowed:   true,
	}
}

func newEvaluator() *Evaluator {
	return NewEvaluator(rules.Defaults(), 9)
}

func TestEvaluateSellAtFirstLevel(t *testing.T) {
	// Open 18000, price runs straight to 18045 with no pullback.
	s := activeSession(18000, 18045, 18000)
	res := newEvaluator().Evaluate(s, 18045)

	require.Equal(t, Enter, res.Outcome)
	assert.Equal(t, Sell, res.Decision.Direction)
	assert.Equal(t, 45.0, res.Decision.Level)
	assert.Equal(t, 0.0, res.Decision.Shift)
	assert.Equal(t, 18045.0, res.Decision.EntryPrice)
}

func TestEvaluateBuyMirrorsSell(t *testing.T) {
	s := activeSession(18000, 18000, 17955)
	res := newEvaluator().Evaluate(s, 17955)

	require.Equal(t, Enter, res.Outcome)
	assert.Equal(t, Buy, res.Decision.Direction)
	assert.Equal(t, 45.0, res.Decision.Level)
	assert.Equal(t, 17955.0, res.Decision.EntryPrice)
}

func TestEvaluateSkipChangesMatchedLevel(t *testing.T) {
	// Retraction of 32 (high 18102, price 18070) matches the skip-1 rule:
	// level 45 is dropped and 70 is selected instead.
	s := activeSession(18000, 18102, 18000)
	res := newEvaluator().Evaluate(s, 18070)

	require.Equal(t, Enter, res.Outcome)
	assert.Equal(t, 70.0, res.Decision.Level)
	assert.Equal(t, 32.0, res.Decision.Retraction)
	assert.Equal(t, 18070.0, res.Decision.EntryPrice)
}

func TestEvaluateShiftMovesEntryNotLevel(t *testing.T) {
	// Retraction of 20 (high 18065, price 18045) matches the shift-18 rule:
	// the matched level stays 45 but the entry moves 18 points further out.
	s := activeSession(18000, 18065, 18000)
	res := newEvaluator().Evaluate(s, 18045)

	require.Equal(t, Enter, res.Outcome)
	assert.Equal(t, Sell, res.Decision.Direction)
	assert.Equal(t, 45.0, res.Decision.Level)
	assert.Equal(t, 18.0, res.Decision.Shift)
	assert.Equal(t, 18063.0, res.Decision.EntryPrice)
	assert.Equal(t, 63.0, res.Decision.FinalDistance())
}

func TestEvaluateCancelWhenFlat(t *testing.T) {
	// Retraction of 50 matches the cancel rule; no trade open.
	s := activeSession(18000, 18120, 18000)
	res := newEvaluator().Evaluate(s, 18070)

	assert.Equal(t, DisableSession, res.Outcome)
	assert.Equal(t, "retraction_cancel", res.Reason)
}

func TestEvaluateCancelIsNoopWithOpenTrade(t *testing.T) {
	s := activeSession(18000, 18120, 18000)
	s.TradeOpened = true
	res := newEvaluator().Evaluate(s, 18070)

	assert.Equal(t, NoTrade, res.Outcome)
}

func TestEvaluateOvershootDisables(t *testing.T) {
	// Past the last level plus tolerance: 18000+130+9 = 18139.
	s := activeSession(18000, 18140, 18000)
	res := newEvaluator().Evaluate(s, 18140)

	assert.Equal(t, DisableSession, res.Outcome)
	assert.Equal(t, "overshoot", res.Reason)

	// Exactly at the edge is still evaluable.
	s = activeSession(18000, 18139, 18000)
	res = newEvaluator().Evaluate(s, 18139)
	assert.NotEqual(t, DisableSession, res.Outcome)
}

func TestEvaluateOvershootKeepsSessionWithOpenTrade(t *testing.T) {
	// Same excursion, but the session's trade is on: no disable, so the
	// sweep monitor still sees the session if price keeps running.
	s := activeSession(18000, 18150, 18000)
	s.TradeOpened = true
	res := newEvaluator().Evaluate(s, 18150)

	assert.Equal(t, NoTrade, res.Outcome)
}

func TestEvaluateToleranceBand(t *testing.T) {
	// Distance 55 sits between 45+9 and 70-9: level 45 matched but price is
	// too far past it, and 70 was never reached.
	s := activeSession(18000, 18055, 18000)
	res := newEvaluator().Evaluate(s, 18055)
	assert.Equal(t, NoTrade, res.Outcome)

	// Distance 54 is the edge of the band and still valid.
	s = activeSession(18000, 18054, 18000)
	res = newEvaluator().Evaluate(s, 18054)
	assert.Equal(t, Enter, res.Outcome)
}

func TestEvaluateBelowFirstLevel(t *testing.T) {
	s := activeSession(18000, 18030, 17990)
	res := newEvaluator().Evaluate(s, 18030)
	assert.Equal(t, NoTrade, res.Outcome)
}

func TestEvaluateInactiveOrDisallowed(t *testing.T) {
	s := activeSession(18000, 18045, 18000)
	s.Active = false
	assert.Equal(t, NoTrade, newEvaluator().Evaluate(s, 18045).Outcome)

	s = activeSession(18000, 18045, 18000)
	s.Allowed = false
	assert.Equal(t, NoTrade, newEvaluator().Evaluate(s, 18045).Outcome)

	assert.Equal(t, NoTrade, newEvaluator().Evaluate(nil, 18045).Outcome)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	s := activeSession(18000, 18045, 18000)
	ev := newEvaluator()
	first := ev.Evaluate(s, 18045)
	second := ev.Evaluate(s, 18045)
	assert.Equal(t, first, second)
}
