package journal

import (
	"path/filepath"
	"testing"
	"time"

	"zonebreak/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestEmitPersistsEvents(t *testing.T) {
	j := openTestJournal(t)
	at := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

	j.Emit(events.New(events.SessionStart, at, map[string]any{"session": "morning", "open": 18000.0}))
	j.Emit(events.New(events.Sweep, at.Add(time.Hour), map[string]any{"session": "morning", "distance": 180.0}))

	rows, err := j.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// Most recent first.
	assert.Equal(t, string(events.Sweep), rows[0].Type)
	assert.Equal(t, "morning", rows[0].Session)
}

func TestTradeOpenCloseRoundTrip(t *testing.T) {
	j := openTestJournal(t)
	at := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

	j.Emit(events.New(events.TradeOpen, at, map[string]any{
		"session": "morning", "direction": "SELL", "entry": 18045.0,
		"size": 1.0, "deal_id": "deal-1",
	}))
	j.Emit(events.New(events.TradeClose, at.Add(30*time.Minute), map[string]any{
		"session": "morning", "exit": 18020.0, "points": 25.0,
		"reason": "peak_timeout", "deal_id": "deal-1",
	}))

	trades, err := j.TradesSince(0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "SELL", trades[0].Direction)
	assert.Equal(t, 18045.0, trades[0].EntryPrice)
	assert.Equal(t, 18020.0, trades[0].ExitPrice)
	assert.Equal(t, 25.0, trades[0].Points)
	assert.Equal(t, "peak_timeout", trades[0].CloseReason)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}
