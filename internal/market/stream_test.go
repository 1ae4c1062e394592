package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newIdleStream(symbol string, staleAfter time.Duration) *StreamSource {
	return &StreamSource{symbol: symbol, staleAfter: staleAfter, done: make(chan struct{})}
}

func TestHandleFrameComputesMid(t *testing.T) {
	s := newIdleStream("ger40", time.Minute)
	s.handleFrame([]byte(`{"s":"GER40","b":"17999.5","a":"18000.5"}`))
	assert.Equal(t, 18000.0, s.MidPrice())
}

func TestHandleFrameLongFieldNames(t *testing.T) {
	s := newIdleStream("", time.Minute)
	s.handleFrame([]byte(`{"symbol":"GER40","bid":18010,"ask":18012}`))
	assert.Equal(t, 18011.0, s.MidPrice())
}

func TestHandleFrameRejectsBadQuotes(t *testing.T) {
	s := newIdleStream("ger40", time.Minute)

	s.handleFrame([]byte(`{"s":"GER40","b":"0","a":"18000"}`))
	assert.Equal(t, 0.0, s.MidPrice())

	s.handleFrame([]byte(`{"s":"GER40","b":"18001","a":"18000"}`))
	assert.Equal(t, 0.0, s.MidPrice())

	assert.Equal(t, 2, s.Stats().BadFrames)
}

func TestHandleFrameIgnoresOtherSymbols(t *testing.T) {
	s := newIdleStream("ger40", time.Minute)
	s.handleFrame([]byte(`{"s":"UK100","b":"7999","a":"8001"}`))
	assert.Equal(t, 0.0, s.MidPrice())
	assert.Equal(t, 0, s.Stats().BadFrames)
}

func TestMidPriceGoesStale(t *testing.T) {
	s := newIdleStream("ger40", 10*time.Millisecond)
	s.handleFrame([]byte(`{"s":"GER40","b":"17999","a":"18001"}`))
	assert.Equal(t, 18000.0, s.MidPrice())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0.0, s.MidPrice(), "stale quotes must read as no update")
}
