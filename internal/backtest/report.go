package backtest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	talib "github.com/markcheno/go-talib"

	"zonebreak/internal/events"
)

const (
	reportWidthPx  = 1600
	reportHeightPx = 600
	curveHeightPx  = 260
	smaPeriod      = 20
)

// WriteReport renders the replayed price series with trade exits marked and
// writes a standalone HTML file under dir. Returns the file path.
func WriteReport(dir, symbol string, bars []Bar, stats Stats, closes []events.Event) (string, error) {
	if len(bars) == 0 {
		return "", fmt.Errorf("nothing to report")
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	xAxis := make([]string, len(bars))
	klineData := make([]opts.KlineData, len(bars))
	closePrices := make([]float64, len(bars))
	for i, b := range bars {
		xAxis[i] = b.At.Format("01-02 15:04")
		klineData[i] = opts.KlineData{Value: [4]float64{b.Open, b.Close, b.Low, b.High}}
		closePrices[i] = b.Close
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  fmt.Sprintf("%dpx", reportWidthPx),
			Height: fmt.Sprintf("%dpx", reportHeightPx),
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s replay %s .. %s", strings.ToUpper(symbol), stats.FirstBar.Format("2006-01-02"), stats.LastBar.Format("2006-01-02")),
			Subtitle: fmt.Sprintf("trades=%d win_rate=%.0f%% points=%.1f equity %.0f -> %.0f", stats.Trades, stats.WinRate*100, stats.PointsTotal, stats.StartEquity, stats.FinalEquity),
			Left:     "left",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", klineData)

	if len(bars) > smaPeriod {
		sma := talib.Sma(closePrices, smaPeriod)
		line := charts.NewLine()
		line.SetXAxis(xAxis)
		line.AddSeries(fmt.Sprintf("SMA%d", smaPeriod), toLineData(sma),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
		kline.Overlap(line)
	}

	if exits := buildExitSeries(bars, closes); exits != nil {
		scatter := charts.NewScatter()
		scatter.SetXAxis(xAxis)
		scatter.AddSeries("Exits", exits)
		kline.Overlap(scatter)
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(kline, buildPointsCurve(xAxis, bars, closes))

	path := filepath.Join(dir, fmt.Sprintf("%s_replay_%s.html", strings.ToLower(symbol), time.Now().Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return path, nil
}

// buildPointsCurve plots realized points as a running total, stepping at
// every trade close.
func buildPointsCurve(xAxis []string, bars []Bar, closes []events.Event) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  fmt.Sprintf("%dpx", reportWidthPx),
			Height: fmt.Sprintf("%dpx", curveHeightPx),
		}),
		charts.WithTitleOpts(opts.Title{Title: "Realized points", Left: "left"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)

	perBar := make([]float64, len(bars))
	for _, e := range closes {
		idx := barIndexAt(bars, e.At)
		if idx < 0 {
			continue
		}
		points, _ := e.Fields["points"].(float64)
		perBar[idx] += points
	}
	data := make([]opts.LineData, len(bars))
	running := 0.0
	for i := range bars {
		running += perBar[i]
		data[i] = opts.LineData{Value: running}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Cumulative", data,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false), Step: true}))
	return line
}

// toLineData maps a talib series onto chart points, leaving the warm-up
// prefix (talib fills it with zeros) as gaps.
func toLineData(series []float64) []opts.LineData {
	out := make([]opts.LineData, len(series))
	for i, v := range series {
		if v == 0 {
			out[i] = opts.LineData{Value: nil}
			continue
		}
		out[i] = opts.LineData{Value: v}
	}
	return out
}

// buildExitSeries aligns trade-close events to bar indexes so the exits show
// up on the category axis. Returns nil when no close landed inside the range.
func buildExitSeries(bars []Bar, closes []events.Event) []opts.ScatterData {
	if len(closes) == 0 {
		return nil
	}
	out := make([]opts.ScatterData, len(bars))
	matched := false
	for i := range out {
		out[i] = opts.ScatterData{Value: nil}
	}
	for _, e := range closes {
		idx := barIndexAt(bars, e.At)
		if idx < 0 {
			continue
		}
		exit, _ := e.Fields["exit"].(float64)
		if exit == 0 {
			continue
		}
		out[idx] = opts.ScatterData{Value: exit, SymbolSize: 12}
		matched = true
	}
	if !matched {
		return nil
	}
	return out
}

func barIndexAt(bars []Bar, at time.Time) int {
	for i := len(bars) - 1; i >= 0; i-- {
		if !bars[i].At.After(at) {
			return i
		}
	}
	return -1
}
