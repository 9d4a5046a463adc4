// Package chart renders the price, RSI and MACD panels for a series.
package chart

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/guregu/null/v6"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"MarketLens/internal/model"
)

// Renderer draws a chart for a series and its indicator rows.
type Renderer interface {
	Render(ctx context.Context, series model.PriceSeries, rows []model.IndicatorRow) error
}

// NoopRenderer is used when charts are disabled.
type NoopRenderer struct{}

func (NoopRenderer) Render(context.Context, model.PriceSeries, []model.IndicatorRow) error {
	return nil
}

var (
	navy      = color.RGBA{R: 0, G: 0, B: 128, A: 255}
	orange    = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	purple    = color.RGBA{R: 128, G: 0, B: 128, A: 255}
	green     = color.RGBA{R: 0, G: 128, B: 0, A: 255}
	red       = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	blue      = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	darkRed   = color.RGBA{R: 139, G: 0, B: 0, A: 255}
	darkGreen = color.RGBA{R: 0, G: 100, B: 0, A: 255}
	histGray  = color.NRGBA{R: 128, G: 128, B: 128, A: 77}
	black     = color.Black

	dashed = []vg.Length{vg.Points(6), vg.Points(3)}
)

// PNGRenderer writes the three-panel chart to a PNG file.
type PNGRenderer struct {
	Path          string
	Width, Height int // pixels
}

// NewPNGRenderer creates a renderer writing to path.
func NewPNGRenderer(path string, width, height int) *PNGRenderer {
	return &PNGRenderer{Path: path, Width: width, Height: height}
}

func (r *PNGRenderer) Render(_ context.Context, series model.PriceSeries, rows []model.IndicatorRow) error {
	panels, err := Build(series.Symbol, rows)
	if err != nil {
		return err
	}

	// vgimg draws at 96 DPI; vg lengths are points.
	w := vg.Length(r.Width) * vg.Inch / 96
	h := vg.Length(r.Height) * vg.Inch / 96
	img := vgimg.New(w, h)
	dc := draw.New(img)

	drawFigure(dc, series.Symbol, panels)

	if dir := filepath.Dir(r.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create chart dir: %w", err)
		}
	}
	f, err := os.Create(r.Path)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write chart: %w", err)
	}
	return f.Close()
}

// figureTitle is the heading drawn above the stacked panels.
func figureTitle(ticker string) string {
	return ticker + " Technical Analysis"
}

// drawFigure stacks panels vertically on dc under the figure title.
func drawFigure(dc draw.Canvas, ticker string, panels []*plot.Plot) {
	tiles := draw.Tiles{
		Rows:      len(panels),
		Cols:      1,
		PadTop:    vg.Points(36),
		PadBottom: vg.Points(10),
		PadLeft:   vg.Points(10),
		PadRight:  vg.Points(10),
		PadY:      vg.Points(15),
	}
	grid := make([][]*plot.Plot, len(panels))
	for i, p := range panels {
		grid[i] = []*plot.Plot{p}
	}
	canvases := plot.Align(grid, tiles, dc)
	for i := range grid {
		grid[i][0].Draw(canvases[i][0])
	}

	sty := panels[0].Title.TextStyle
	sty.Font.Size = vg.Points(16)
	sty.XAlign = draw.XCenter
	sty.YAlign = draw.YTop
	dc.FillText(sty, vg.Point{X: dc.Center().X, Y: dc.Max.Y - vg.Points(8)}, figureTitle(ticker))
}

// Build assembles the price, RSI and MACD plots. All three share the x range
// of bar indexes, labelled with dates.
func Build(ticker string, rows []model.IndicatorRow) ([]*plot.Plot, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("build chart: no rows")
	}

	price, err := pricePanel(ticker, rows)
	if err != nil {
		return nil, fmt.Errorf("price panel: %w", err)
	}
	rsi, err := rsiPanel(rows)
	if err != nil {
		return nil, fmt.Errorf("rsi panel: %w", err)
	}
	macd, err := macdPanel(rows)
	if err != nil {
		return nil, fmt.Errorf("macd panel: %w", err)
	}

	panels := []*plot.Plot{price, rsi, macd}
	ticks := dateTicker(rows)
	for _, p := range panels {
		p.X.Min = -0.5
		p.X.Max = float64(len(rows)) - 0.5
		p.X.Tick.Marker = ticks
		p.Legend.Top = true
		p.Legend.Left = true
		p.Add(plotter.NewGrid())
	}
	return panels, nil
}

func pricePanel(ticker string, rows []model.IndicatorRow) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = ticker + " Price & Moving Averages"

	closes := make([]null.Float, len(rows))
	sma := make([]null.Float, len(rows))
	ema := make([]null.Float, len(rows))
	for i, r := range rows {
		closes[i] = null.FloatFrom(r.Close)
		sma[i] = r.SMA200
		ema[i] = r.EMA50
	}
	if err := addSeries(p, "Close Price", closes, navy, nil); err != nil {
		return nil, err
	}
	if err := addSeries(p, "SMA 200", sma, orange, dashed); err != nil {
		return nil, err
	}
	if err := addSeries(p, "EMA 50", ema, purple, dashed); err != nil {
		return nil, err
	}
	return p, nil
}

func rsiPanel(rows []model.IndicatorRow) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Relative Strength Index (RSI)"
	p.Y.Min = 0
	p.Y.Max = 100

	rsi := make([]null.Float, len(rows))
	for i, r := range rows {
		rsi[i] = r.RSI14
	}
	if err := addSeries(p, "RSI 14", rsi, green, nil); err != nil {
		return nil, err
	}
	p.Add(referenceLine(70, red), referenceLine(30, blue))
	return p, nil
}

func macdPanel(rows []model.IndicatorRow) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "MACD"

	macd := make([]null.Float, len(rows))
	signal := make([]null.Float, len(rows))
	hist := make([]null.Float, len(rows))
	for i, r := range rows {
		macd[i] = r.MACD
		signal[i] = r.MACDSignal
		hist[i] = r.Histogram()
	}

	if start, values := trailingRun(hist); len(values) > 0 {
		bars, err := plotter.NewBarChart(values, vg.Points(2))
		if err != nil {
			return nil, err
		}
		bars.XMin = float64(start)
		bars.Color = histGray
		bars.LineStyle.Width = 0
		p.Add(bars)
		p.Legend.Add("Histogram", bars)
	}
	if err := addSeries(p, "MACD", macd, darkRed, nil); err != nil {
		return nil, err
	}
	if err := addSeries(p, "Signal Line", signal, darkGreen, nil); err != nil {
		return nil, err
	}
	p.Add(referenceLine(0, black))
	return p, nil
}

// addSeries draws one line per contiguous run of defined values, so gaps stay gaps.
func addSeries(p *plot.Plot, label string, vals []null.Float, c color.Color, dashes []vg.Length) error {
	for i, seg := range segments(vals) {
		line, err := plotter.NewLine(seg)
		if err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		line.Color = c
		line.Width = vg.Points(1.2)
		line.Dashes = dashes
		p.Add(line)
		if i == 0 {
			p.Legend.Add(label, line)
		}
	}
	return nil
}

// segments splits vals into runs of defined points, with x = index.
func segments(vals []null.Float) []plotter.XYs {
	var out []plotter.XYs
	var cur plotter.XYs
	for i, v := range vals {
		if !v.Valid {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, plotter.XY{X: float64(i), Y: v.Float64})
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// trailingRun returns the longest suffix of defined values and its start index.
func trailingRun(vals []null.Float) (int, plotter.Values) {
	start := len(vals)
	for start > 0 && vals[start-1].Valid {
		start--
	}
	out := make(plotter.Values, 0, len(vals)-start)
	for _, v := range vals[start:] {
		out = append(out, v.Float64)
	}
	return start, out
}

func referenceLine(y float64, c color.Color) *plotter.Function {
	f := plotter.NewFunction(func(float64) float64 { return y })
	f.Color = c
	f.Dashes = dashed
	f.Samples = 2
	return f
}

// dateTicker labels about eight evenly spaced bar indexes with their dates.
func dateTicker(rows []model.IndicatorRow) plot.Ticker {
	return plot.TickerFunc(func(min, max float64) []plot.Tick {
		n := len(rows)
		step := n / 8
		if step < 1 {
			step = 1
		}
		var ticks []plot.Tick
		for i := 0; i < n; i += step {
			x := float64(i)
			if x < min || x > max {
				continue
			}
			ticks = append(ticks, plot.Tick{Value: x, Label: rows[i].Time.Format("2006-01-02")})
		}
		return ticks
	})
}
