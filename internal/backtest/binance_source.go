package backtest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"zonebreak/internal/scheduler"
)

const binancePageLimit = 1000

// BinanceSource pulls klines from the Binance USDT futures REST API via the
// official SDK, paging forward until the requested window is covered.
type BinanceSource struct {
	client *futures.Client
}

func NewBinanceSource(baseURL string) *BinanceSource {
	client := futures.NewClient("", "")
	if strings.TrimSpace(baseURL) != "" {
		client.BaseURL = strings.TrimSpace(baseURL)
	}
	return &BinanceSource{client: client}
}

func (b *BinanceSource) Name() string { return "binance" }

func (b *BinanceSource) Bars(ctx context.Context, req Request) ([]Bar, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("binance source requires a symbol")
	}
	interval := strings.ToLower(strings.TrimSpace(req.Interval))
	if interval == "" {
		interval = "1m"
	}
	if _, ok := scheduler.ParseIntervalDuration(interval); !ok {
		return nil, fmt.Errorf("unsupported interval %q", req.Interval)
	}
	if req.Start.IsZero() {
		return nil, fmt.Errorf("binance source requires a start time")
	}

	var out []Bar
	cursor := req.Start.UnixMilli()
	for {
		svc := b.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(binancePageLimit).
			StartTime(cursor)
		if !req.End.IsZero() {
			svc = svc.EndTime(req.End.UnixMilli())
		}
		kls, err := svc.Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch klines: %w", err)
		}
		if len(kls) == 0 {
			break
		}
		for _, kl := range kls {
			if kl == nil {
				continue
			}
			out = append(out, Bar{
				At:     time.UnixMilli(kl.OpenTime).UTC(),
				Open:   parseFloat(kl.Open),
				High:   parseFloat(kl.High),
				Low:    parseFloat(kl.Low),
				Close:  parseFloat(kl.Close),
				Volume: parseFloat(kl.Volume),
			})
		}
		last := kls[len(kls)-1]
		cursor = last.CloseTime + 1
		if len(kls) < binancePageLimit {
			break
		}
		if !req.End.IsZero() && cursor >= req.End.UnixMilli() {
			break
		}
	}
	return out, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
