package backtest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"zonebreak/internal/logger"
)

// csvTimeLayout matches MT4-style exports: "28/02/2024;08:01:00;...".
const csvTimeLayout = "02/01/2006 15:04:05"

// CSVSource reads semicolon-delimited minute candles of the form
// date;time;open;high;low;close with day-first dates. Malformed rows are
// skipped, not fatal: historical exports routinely carry header lines and
// the odd truncated record.
type CSVSource struct {
	path string
	loc  *time.Location
}

func NewCSVSource(path, timezone string) (*CSVSource, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("csv source requires a file path")
	}
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load csv timezone %q: %w", timezone, err)
	}
	return &CSVSource{path: path, loc: loc}, nil
}

func (s *CSVSource) Name() string { return "csv" }

func (s *CSVSource) Bars(ctx context.Context, req Request) ([]Bar, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open candle csv: %w", err)
	}
	defer f.Close()

	rdr := csv.NewReader(f)
	rdr.Comma = ';'
	rdr.FieldsPerRecord = -1

	var (
		out     []Bar
		skipped int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read candle csv: %w", err)
		}
		if len(row) < 6 {
			skipped++
			continue
		}
		at, err := time.ParseInLocation(csvTimeLayout,
			strings.TrimSpace(row[0])+" "+strings.TrimSpace(row[1]), s.loc)
		if err != nil {
			skipped++
			continue
		}
		if !req.Start.IsZero() && at.Before(req.Start) {
			continue
		}
		if !req.End.IsZero() && !at.Before(req.End) {
			continue
		}
		bar, ok := parseOHLC(at, row)
		if !ok {
			skipped++
			continue
		}
		out = append(out, bar)
	}
	if skipped > 0 {
		logger.Warnf("csv source %s: skipped %d malformed rows", s.path, skipped)
	}
	return out, nil
}

func parseOHLC(at time.Time, row []string) (Bar, bool) {
	vals := make([]float64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[2+i]), 64)
		// ParseFloat happily returns NaN and ±Inf, which would poison the
		// session high/low downstream.
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Bar{}, false
		}
		vals[i] = v
	}
	return Bar{At: at, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3]}, true
}
