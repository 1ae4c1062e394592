// Package trader manages open positions: entry placement with sizing,
// peak tracking and the exit rules.
package trader

import (
	"context"
	"time"

	"zonebreak/internal/config"
	"zonebreak/internal/events"
	"zonebreak/internal/gateway"
	"zonebreak/internal/logger"
	"zonebreak/internal/session"
	"zonebreak/internal/zone"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeRecord is the engine's bookkeeping for one position. At most one
// active record exists per session.
type TradeRecord struct {
	ID            string
	DealID        string
	Session       string
	Direction     zone.Direction
	EntryPrice    float64
	Size          float64
	FinalDistance float64
	OpenedAt      time.Time
	HardCloseAt   time.Time

	Peak    float64
	PeakAt  time.Time
	Adverse float64

	Active bool
}

// Favorable is the current favorable excursion in points.
func (t *TradeRecord) Favorable(price float64) float64 {
	if t.Direction == zone.Buy {
		return price - t.EntryPrice
	}
	return t.EntryPrice - price
}

// Manager drives the trade lifecycle. It is not safe for concurrent use;
// the tick loop is its only caller.
type Manager struct {
	dealer  gateway.Dealer
	account gateway.Account
	sink    events.Sink

	instrument   string
	sizing       config.SizingConfig
	exits        config.ExitConfig
	stopDistance float64
	maxTries     int
	backoff      time.Duration

	trades map[string]*TradeRecord
}

func NewManager(dealer gateway.Dealer, account gateway.Account, sink events.Sink, cfg *config.Config) *Manager {
	return &Manager{
		dealer:       dealer,
		account:      account,
		sink:         sink,
		instrument:   cfg.Engine.Instrument,
		sizing:       cfg.Sizing,
		exits:        cfg.Exits,
		stopDistance: cfg.Engine.StopDistance,
		maxTries:     cfg.Engine.MaxPlaceTries,
		backoff:      200 * time.Millisecond,
		trades:       make(map[string]*TradeRecord),
	}
}

// ComputeSize maps equity to deal size: max(equity/factor, minSize), rounded
// down to the broker's size step.
func ComputeSize(equity float64, sizing config.SizingConfig) float64 {
	raw := decimal.NewFromFloat(equity).Div(decimal.NewFromFloat(sizing.EquityFactor))
	minSize := decimal.NewFromFloat(sizing.MinSize)
	if raw.LessThan(minSize) {
		raw = minSize
	}
	step := decimal.NewFromFloat(sizing.SizeStep)
	size, _ := raw.Div(step).Floor().Mul(step).Float64()
	return size
}

// TryEnter places an order for an evaluator decision. A placement that
// still fails after the bounded retries is abandoned with TradeOpened left
// false, so the session may retry on a later tick.
func (m *Manager) TryEnter(ctx context.Context, s *session.Session, dec zone.Decision, now time.Time) *TradeRecord {
	if s == nil || !s.Active || !s.Allowed || s.TradeOpened {
		return nil
	}
	equity, err := m.account.Equity(ctx)
	if err != nil {
		logger.Errorf("equity lookup failed, entry abandoned: %v", err)
		return nil
	}
	size := ComputeSize(equity, m.sizing)

	req := gateway.OrderRequest{
		Instrument:   m.instrument,
		Direction:    string(dec.Direction),
		Size:         size,
		StopDistance: m.stopDistance,
	}
	var result gateway.OrderResult
	placed := false
	for attempt := 1; attempt <= m.maxTries; attempt++ {
		result, err = m.dealer.PlaceOrder(ctx, req)
		if err == nil {
			placed = true
			break
		}
		logger.Warnf("order placement attempt %d/%d failed: %v", attempt, m.maxTries, err)
		if attempt < m.maxTries {
			select {
			case <-ctx.Done():
				logger.Errorf("order placement abandoned: %v", ctx.Err())
				return nil
			case <-time.After(m.backoff * time.Duration(attempt)):
			}
		}
	}
	if !placed {
		logger.Errorf("order placement gave up after %d attempts", m.maxTries)
		return nil
	}

	// The session close lands on the next calendar day when the window
	// wraps midnight and the entry happened before it.
	hardClose := s.Window.End.OnDate(now)
	if !hardClose.After(now) {
		hardClose = hardClose.AddDate(0, 0, 1)
	}
	tr := &TradeRecord{
		ID:            uuid.NewString(),
		DealID:        result.DealID,
		Session:       s.Name,
		Direction:     dec.Direction,
		EntryPrice:    result.FillPrice,
		Size:          size,
		FinalDistance: dec.FinalDistance(),
		OpenedAt:      now,
		HardCloseAt:   hardClose,
		Peak:          result.FillPrice,
		PeakAt:        now,
		Active:        true,
	}
	m.trades[s.Name] = tr
	s.TradeOpened = true
	m.emit(events.TradeOpen, now, map[string]any{
		"session":   s.Name,
		"direction": string(dec.Direction),
		"entry":     result.FillPrice,
		"size":      size,
		"level":     dec.Level,
		"shift":     dec.Shift,
		"deal_id":   result.DealID,
	})
	return tr
}

// UpdatePeak advances the most favorable price and the adverse excursion
// for every active record.
func (m *Manager) UpdatePeak(now time.Time, price float64) {
	for _, tr := range m.trades {
		if !tr.Active {
			continue
		}
		fav := tr.Favorable(price)
		peakFav := tr.Favorable(tr.Peak)
		if fav > peakFav {
			tr.Peak = price
			tr.PeakAt = now
		}
		if adverse := -fav; adverse > tr.Adverse {
			tr.Adverse = adverse
		}
	}
}

// CheckExits evaluates the exit rules in priority order for every active
// record: guaranteed stop, hard time-of-day close, breakeven after a deep
// adverse move, then the time-since-peak timeout. The stop check mirrors the
// broker-side guaranteed stop so the paper gateway and the local bookkeeping
// agree with a live account.
func (m *Manager) CheckExits(ctx context.Context, now time.Time, price float64) {
	for _, tr := range m.trades {
		if !tr.Active {
			continue
		}
		if m.stopDistance > 0 && -tr.Favorable(price) >= m.stopDistance {
			m.close(ctx, tr, now, price, "stop")
			continue
		}
		if !tr.HardCloseAt.IsZero() && !now.Before(tr.HardCloseAt) {
			m.close(ctx, tr, now, price, "hard_close")
			continue
		}
		if tr.Adverse >= m.exits.BreakevenAdverse && absFloat(price-tr.EntryPrice) < m.exits.BreakevenBand {
			m.close(ctx, tr, now, price, "breakeven")
			continue
		}
		timeout := time.Duration(m.exits.NearPeakTimeoutMin) * time.Minute
		if tr.FinalDistance >= m.exits.FarDistanceFrom {
			timeout = time.Duration(m.exits.FarPeakTimeoutMin) * time.Minute
		}
		if now.Sub(tr.PeakAt) > timeout {
			m.close(ctx, tr, now, price, "peak_timeout")
		}
	}
}

// ForceClose closes the active record of one session, if any.
func (m *Manager) ForceClose(ctx context.Context, sessionName string, now time.Time, price float64, reason string) {
	if tr, ok := m.trades[sessionName]; ok && tr.Active {
		m.close(ctx, tr, now, price, reason)
	}
}

// ForceCloseAll closes every active record.
func (m *Manager) ForceCloseAll(ctx context.Context, now time.Time, price float64, reason string) {
	for _, tr := range m.trades {
		if tr.Active {
			m.close(ctx, tr, now, price, reason)
		}
	}
}

// HasActive reports whether a session currently holds an open position.
func (m *Manager) HasActive(sessionName string) bool {
	tr, ok := m.trades[sessionName]
	return ok && tr.Active
}

// Records returns a snapshot of all records, open and closed.
func (m *Manager) Records() []TradeRecord {
	out := make([]TradeRecord, 0, len(m.trades))
	for _, tr := range m.trades {
		out = append(out, *tr)
	}
	return out
}

// OnNewDay drops yesterday's records. Session guards are reset by the
// tracker, not here.
func (m *Manager) OnNewDay() {
	m.trades = make(map[string]*TradeRecord)
}

// close marks the record inactive even when the broker round-trip keeps
// failing: the engine trusts its own bookkeeping over a hung close and
// self-heals on the next cycle. TradeOpened stays true on the session, so
// one trade per session per day holds even after the close.
func (m *Manager) close(ctx context.Context, tr *TradeRecord, now time.Time, price float64, reason string) {
	var err error
	for attempt := 1; attempt <= m.maxTries; attempt++ {
		err = m.dealer.CloseOrder(ctx, tr.DealID, string(tr.Direction), tr.Size)
		if err == nil {
			break
		}
		logger.Warnf("close attempt %d/%d for %s failed: %v", attempt, m.maxTries, tr.DealID, err)
		if attempt < m.maxTries {
			select {
			case <-ctx.Done():
				err = ctx.Err()
				attempt = m.maxTries
			case <-time.After(m.backoff * time.Duration(attempt)):
			}
		}
	}
	if err != nil {
		logger.Warnf("deal %s could not be closed at the broker, marking inactive locally: %v", tr.DealID, err)
	}
	tr.Active = false
	points := tr.Favorable(price)
	m.emit(events.TradeClose, now, map[string]any{
		"session":   tr.Session,
		"direction": string(tr.Direction),
		"entry":     tr.EntryPrice,
		"exit":      price,
		"points":    points,
		"size":      tr.Size,
		"reason":    reason,
		"deal_id":   tr.DealID,
	})
}

func (m *Manager) emit(typ events.Type, at time.Time, fields map[string]any) {
	if m.sink == nil {
		return
	}
	m.sink.Emit(events.New(typ, at, fields))
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
