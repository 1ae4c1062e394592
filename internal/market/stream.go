package market

import (
	"context"
	"strings"
	"sync"
	"time"

	"zonebreak/internal/config"
	"zonebreak/internal/logger"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
	readTimeout        = 60 * time.Second
)

// StreamSource keeps a websocket quote stream open and exposes the latest
// mid price. Quotes older than the staleness cutoff read as zero, which the
// engine treats as "no update".
type StreamSource struct {
	url        string
	symbol     string
	staleAfter time.Duration

	mu       sync.RWMutex
	mid      float64
	quotedAt time.Time
	stats    SourceStats

	cancel context.CancelFunc
	done   chan struct{}
}

func NewStreamSource(cfg config.MarketConfig) *StreamSource {
	ctx, cancel := context.WithCancel(context.Background())
	s := &StreamSource{
		url:        cfg.StreamURL,
		symbol:     strings.ToLower(strings.TrimSpace(cfg.Symbol)),
		staleAfter: time.Duration(cfg.StaleAfterSec) * time.Second,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// MidPrice returns the latest mid, or zero when no fresh quote is held.
func (s *StreamSource) MidPrice() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.quotedAt.IsZero() {
		return 0
	}
	if s.staleAfter > 0 && time.Since(s.quotedAt) > s.staleAfter {
		return 0
	}
	return s.mid
}

func (s *StreamSource) Stats() SourceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *StreamSource) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *StreamSource) run(ctx context.Context) {
	defer close(s.done)
	delay := reconnectBaseDelay
	for {
		if ctx.Err() != nil {
			return
		}
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		s.stats.Reconnects++
		if err != nil {
			s.stats.LastError = err.Error()
		}
		s.mu.Unlock()
		logger.Warnf("quote stream dropped, reconnecting in %s: %v", delay, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

func (s *StreamSource) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Infof("quote stream connected: %s", s.url)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleFrame(raw)
	}
}

// handleFrame accepts book-ticker style frames: a symbol plus best bid and
// ask. Frames for other symbols or with unusable quotes are counted and
// dropped.
func (s *StreamSource) handleFrame(raw []byte) {
	doc := gjson.ParseBytes(raw)
	sym := strings.ToLower(doc.Get("s").String())
	if sym == "" {
		sym = strings.ToLower(doc.Get("symbol").String())
	}
	if s.symbol != "" && sym != "" && sym != s.symbol {
		return
	}
	bid := firstNumber(doc, "b", "bid")
	ask := firstNumber(doc, "a", "ask")
	if bid <= 0 || ask <= 0 || ask < bid {
		s.mu.Lock()
		s.stats.BadFrames++
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	s.mid = (bid + ask) / 2
	s.quotedAt = time.Now()
	s.mu.Unlock()
}

func firstNumber(doc gjson.Result, keys ...string) float64 {
	for _, k := range keys {
		if v := doc.Get(k); v.Exists() {
			return v.Float()
		}
	}
	return 0
}
