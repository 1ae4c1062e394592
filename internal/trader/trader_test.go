package trader

import (
	"context"
	"fmt"
	"testing"
	"time"

	"zonebreak/internal/clock"
	"zonebreak/internal/config"
	"zonebreak/internal/events"
	"zonebreak/internal/gateway"
	"zonebreak/internal/session"
	"zonebreak/internal/zone"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDealer struct {
	failPlaces int
	failCloses int
	placeCalls int
	closeCalls int
	fill       float64
}

func (f *fakeDealer) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (gateway.OrderResult, error) {
	f.placeCalls++
	if f.placeCalls <= f.failPlaces {
		return gateway.OrderResult{}, fmt.Errorf("rejected")
	}
	return gateway.OrderResult{DealID: fmt.Sprintf("deal-%d", f.placeCalls), FillPrice: f.fill}, nil
}

func (f *fakeDealer) CloseOrder(ctx context.Context, dealID, direction string, size float64) error {
	f.closeCalls++
	if f.closeCalls <= f.failCloses {
		return fmt.Errorf("rejected")
	}
	return nil
}

type fakeAccount struct {
	equity float64
	err    error
}

func (f *fakeAccount) Equity(ctx context.Context) (float64, error) {
	return f.equity, f.err
}

type captureSink struct {
	evts []events.Event
}

func (c *captureSink) Emit(evt events.Event) { c.evts = append(c.evts, evt) }

func (c *captureSink) byType(t events.Type) []events.Event {
	var out []events.Event
	for _, e := range c.evts {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			Instrument:    "GER40",
			StopDistance:  40,
			MaxPlaceTries: 5,
		},
		Sizing: config.SizingConfig{EquityFactor: 30000, MinSize: 0.1, SizeStep: 0.01},
		Exits: config.ExitConfig{
			BreakevenAdverse:   15,
			BreakevenBand:      1.0,
			NearPeakTimeoutMin: 16,
			FarPeakTimeoutMin:  31,
			FarDistanceFrom:    70,
		},
	}
}

func morningSession() *session.Session {
	return &session.Session{
		Name: "morning",
		Window: clock.Window{
			Start: clock.MustTimeOfDay("08:00"),
			End:   clock.MustTimeOfDay("12:30"),
		},
		OpenPrice: 18000,
		High:      18045,
		Low:       18000,
		Active:    true,
		Allowed:   true,
	}
}

func sellDecision() zone.Decision {
	return zone.Decision{Direction: zone.Sell, Level: 45, EntryPrice: 18045, Distance: 45}
}

func newTestManager(dealer gateway.Dealer, account gateway.Account, sink events.Sink) *Manager {
	m := NewManager(dealer, account, sink, testConfig())
	m.backoff = time.Millisecond
	return m
}

func at(hour, min int) time.Time {
	return time.Date(2024, 3, 5, hour, min, 0, 0, time.UTC)
}

func TestComputeSize(t *testing.T) {
	sizing := config.SizingConfig{EquityFactor: 30000, MinSize: 0.1, SizeStep: 0.01}

	assert.Equal(t, 1.0, ComputeSize(30000, sizing))
	assert.Equal(t, 1.5, ComputeSize(45000, sizing))
	// Below the factor the minimum applies.
	assert.Equal(t, 0.1, ComputeSize(1000, sizing))
	// Rounded down to the step.
	assert.Equal(t, 1.23, ComputeSize(37000, sizing))
}

func TestTryEnterOpensTrade(t *testing.T) {
	dealer := &fakeDealer{fill: 18045}
	sink := &captureSink{}
	m := newTestManager(dealer, &fakeAccount{equity: 30000}, sink)
	s := morningSession()

	tr := m.TryEnter(context.Background(), s, sellDecision(), at(9, 0))
	require.NotNil(t, tr)
	assert.True(t, s.TradeOpened)
	assert.True(t, tr.Active)
	assert.Equal(t, 18045.0, tr.EntryPrice)
	assert.Equal(t, 1.0, tr.Size)
	assert.Equal(t, at(12, 30), tr.HardCloseAt)
	require.Len(t, sink.byType(events.TradeOpen), 1)
	assert.True(t, m.HasActive("morning"))
}

func TestTryEnterRetriesThenSucceeds(t *testing.T) {
	dealer := &fakeDealer{fill: 18045, failPlaces: 2}
	m := newTestManager(dealer, &fakeAccount{equity: 30000}, nil)
	s := morningSession()

	tr := m.TryEnter(context.Background(), s, sellDecision(), at(9, 0))
	require.NotNil(t, tr)
	assert.Equal(t, 3, dealer.placeCalls)
}

func TestTryEnterGivesUpAfterBoundedRetries(t *testing.T) {
	dealer := &fakeDealer{fill: 18045, failPlaces: 100}
	m := newTestManager(dealer, &fakeAccount{equity: 30000}, nil)
	s := morningSession()

	tr := m.TryEnter(context.Background(), s, sellDecision(), at(9, 0))
	assert.Nil(t, tr)
	assert.Equal(t, 5, dealer.placeCalls)
	// The session may retry on a later tick.
	assert.False(t, s.TradeOpened)
}

func TestTryEnterGuards(t *testing.T) {
	m := newTestManager(&fakeDealer{fill: 18045}, &fakeAccount{equity: 30000}, nil)

	t.Run("trade already opened", func(t *testing.T) {
		s := morningSession()
		s.TradeOpened = true
		assert.Nil(t, m.TryEnter(context.Background(), s, sellDecision(), at(9, 0)))
	})
	t.Run("inactive session", func(t *testing.T) {
		s := morningSession()
		s.Active = false
		assert.Nil(t, m.TryEnter(context.Background(), s, sellDecision(), at(9, 0)))
	})
	t.Run("equity failure abandons entry", func(t *testing.T) {
		bad := newTestManager(&fakeDealer{fill: 18045}, &fakeAccount{err: fmt.Errorf("down")}, nil)
		s := morningSession()
		assert.Nil(t, bad.TryEnter(context.Background(), s, sellDecision(), at(9, 0)))
		assert.False(t, s.TradeOpened)
	})
}

func TestBreakevenExit(t *testing.T) {
	sink := &captureSink{}
	m := newTestManager(&fakeDealer{fill: 18045}, &fakeAccount{equity: 30000}, sink)
	s := morningSession()
	require.NotNil(t, m.TryEnter(context.Background(), s, sellDecision(), at(9, 0)))

	// Adverse move of 16 points against the short, then back to entry.
	m.UpdatePeak(at(9, 5), 18061)
	m.CheckExits(context.Background(), at(9, 5), 18061)
	assert.True(t, m.HasActive("morning"))

	m.UpdatePeak(at(9, 10), 18045.5)
	m.CheckExits(context.Background(), at(9, 10), 18045.5)
	assert.False(t, m.HasActive("morning"))

	closes := sink.byType(events.TradeClose)
	require.Len(t, closes, 1)
	assert.Equal(t, "breakeven", closes[0].Fields["reason"])
	// tradeOpened stays true after any close.
	assert.True(t, s.TradeOpened)
}

func TestStopDistanceExit(t *testing.T) {
	sink := &captureSink{}
	m := newTestManager(&fakeDealer{fill: 18045}, &fakeAccount{equity: 30000}, sink)
	s := morningSession()
	require.NotNil(t, m.TryEnter(context.Background(), s, sellDecision(), at(9, 0)))

	// 39 points against the short is still inside the stop.
	m.UpdatePeak(at(9, 5), 18084)
	m.CheckExits(context.Background(), at(9, 5), 18084)
	assert.True(t, m.HasActive("morning"))

	m.UpdatePeak(at(9, 6), 18085)
	m.CheckExits(context.Background(), at(9, 6), 18085)
	assert.False(t, m.HasActive("morning"))

	closes := sink.byType(events.TradeClose)
	require.Len(t, closes, 1)
	assert.Equal(t, "stop", closes[0].Fields["reason"])
}

func TestPeakTimeoutBands(t *testing.T) {
	t.Run("near level uses short timeout", func(t *testing.T) {
		m := newTestManager(&fakeDealer{fill: 18045}, &fakeAccount{equity: 30000}, nil)
		s := morningSession()
		require.NotNil(t, m.TryEnter(context.Background(), s, sellDecision(), at(9, 0)))

		// Favorable peak at 9:05, then nothing better.
		m.UpdatePeak(at(9, 5), 18040)
		m.CheckExits(context.Background(), at(9, 21), 18042)
		assert.True(t, m.HasActive("morning"))
		m.CheckExits(context.Background(), at(9, 22), 18042)
		assert.False(t, m.HasActive("morning"))
	})

	t.Run("far level uses long timeout", func(t *testing.T) {
		m := newTestManager(&fakeDealer{fill: 18070}, &fakeAccount{equity: 30000}, nil)
		s := morningSession()
		dec := zone.Decision{Direction: zone.Sell, Level: 70, EntryPrice: 18070, Distance: 70}
		require.NotNil(t, m.TryEnter(context.Background(), s, dec, at(9, 0)))

		m.UpdatePeak(at(9, 5), 18060)
		m.CheckExits(context.Background(), at(9, 22), 18062)
		assert.True(t, m.HasActive("morning"))
		m.CheckExits(context.Background(), at(9, 37), 18062)
		assert.False(t, m.HasActive("morning"))
	})
}

func TestHardCloseAtSessionEnd(t *testing.T) {
	sink := &captureSink{}
	m := newTestManager(&fakeDealer{fill: 18045}, &fakeAccount{equity: 30000}, sink)
	s := morningSession()
	require.NotNil(t, m.TryEnter(context.Background(), s, sellDecision(), at(9, 0)))

	// A fresh favorable extreme each tick keeps the peak timer quiet, so
	// only the session close time can take the trade out.
	m.UpdatePeak(at(12, 29), 18044)
	m.CheckExits(context.Background(), at(12, 29), 18044)
	assert.True(t, m.HasActive("morning"))
	m.UpdatePeak(at(12, 30), 18043)
	m.CheckExits(context.Background(), at(12, 30), 18043)
	assert.False(t, m.HasActive("morning"))

	closes := sink.byType(events.TradeClose)
	require.Len(t, closes, 1)
	assert.Equal(t, "hard_close", closes[0].Fields["reason"])
}

func TestHardCloseRollsPastMidnightForWrappedWindow(t *testing.T) {
	m := newTestManager(&fakeDealer{fill: 18045}, &fakeAccount{equity: 30000}, nil)
	s := morningSession()
	s.Window = clock.Window{
		Start: clock.MustTimeOfDay("22:00"),
		End:   clock.MustTimeOfDay("01:15"),
	}

	tr := m.TryEnter(context.Background(), s, sellDecision(), at(23, 0))
	require.NotNil(t, tr)
	assert.Equal(t, time.Date(2024, 3, 6, 1, 15, 0, 0, time.UTC), tr.HardCloseAt)

	// The close time is ahead of the entry, not behind it.
	m.CheckExits(context.Background(), at(23, 1), 18044)
	assert.True(t, m.HasActive("morning"))
}

func TestForceCloseMarksInactiveEvenWhenBrokerFails(t *testing.T) {
	dealer := &fakeDealer{fill: 18045, failCloses: 100}
	m := newTestManager(dealer, &fakeAccount{equity: 30000}, nil)
	s := morningSession()
	require.NotNil(t, m.TryEnter(context.Background(), s, sellDecision(), at(9, 0)))

	m.ForceClose(context.Background(), "morning", at(10, 0), 18100, "sweep")
	assert.False(t, m.HasActive("morning"))
	assert.True(t, s.TradeOpened)
	assert.Equal(t, 5, dealer.closeCalls)
}

func TestOnNewDayDropsRecords(t *testing.T) {
	m := newTestManager(&fakeDealer{fill: 18045}, &fakeAccount{equity: 30000}, nil)
	s := morningSession()
	require.NotNil(t, m.TryEnter(context.Background(), s, sellDecision(), at(9, 0)))
	require.Len(t, m.Records(), 1)

	m.OnNewDay()
	assert.Empty(t, m.Records())
}
