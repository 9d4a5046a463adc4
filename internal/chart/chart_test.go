package chart

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/recorder"

	"MarketLens/internal/calculator"
	"MarketLens/internal/model"
)

func testSeries(n int) model.PriceSeries {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]model.OHLCV, n)
	for i := range bars {
		c := 100 + float64(i%17) - float64(i%5)
		bars[i] = model.OHLCV{Time: start.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10}
	}
	return model.PriceSeries{Symbol: "IBM", Bars: bars}
}

func TestSegments_SplitsOnUndefined(t *testing.T) {
	vals := []null.Float{{}, null.FloatFrom(1), null.FloatFrom(2), {}, null.FloatFrom(3), {}}
	segs := segments(vals)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if len(segs[0]) != 2 || segs[0][0].X != 1 || segs[0][1].Y != 2 {
		t.Errorf("first segment = %v", segs[0])
	}
	if len(segs[1]) != 1 || segs[1][0].X != 4 {
		t.Errorf("second segment = %v", segs[1])
	}
	if len(segments([]null.Float{{}, {}})) != 0 {
		t.Error("all-undefined input should produce no segments")
	}
}

func TestTrailingRun(t *testing.T) {
	start, vals := trailingRun([]null.Float{{}, {}, null.FloatFrom(-1), null.FloatFrom(2)})
	if start != 2 || len(vals) != 2 || vals[0] != -1 {
		t.Errorf("got start=%d vals=%v", start, vals)
	}
}

func TestBuild_SharedXRange(t *testing.T) {
	series := testSeries(60)
	panels, err := Build(series.Symbol, calculator.Compute(series.Bars))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(panels) != 3 {
		t.Fatalf("expected 3 panels, got %d", len(panels))
	}
	for i, p := range panels {
		if p.X.Min != panels[0].X.Min || p.X.Max != panels[0].X.Max {
			t.Errorf("panel %d x range [%v,%v] differs from price panel", i, p.X.Min, p.X.Max)
		}
	}
	if panels[0].Title.Text != "IBM Price & Moving Averages" {
		t.Errorf("title = %q", panels[0].Title.Text)
	}
}

func TestBuild_NoRows(t *testing.T) {
	if _, err := Build("IBM", nil); err == nil {
		t.Fatal("expected error for empty rows")
	}
}

func TestDrawFigure_TitleAbovePanels(t *testing.T) {
	tests := []struct {
		ticker string
		want   string
	}{
		{"IBM", "IBM Technical Analysis"},
		{"BRK.B", "BRK.B Technical Analysis"},
	}
	for _, tt := range tests {
		t.Run(tt.ticker, func(t *testing.T) {
			series := testSeries(40)
			panels, err := Build(tt.ticker, calculator.Compute(series.Bars))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var rec recorder.Canvas
			dc := draw.NewCanvas(&rec, vg.Points(600), vg.Points(675))
			drawFigure(dc, tt.ticker, panels)

			var title *recorder.FillString
			var maxOther vg.Length
			for _, a := range rec.Actions {
				fs, ok := a.(*recorder.FillString)
				if !ok {
					continue
				}
				if fs.String == tt.want {
					title = fs
					continue
				}
				if fs.Point.Y > maxOther {
					maxOther = fs.Point.Y
				}
			}
			if title == nil {
				t.Fatalf("figure title %q was not drawn", tt.want)
			}
			if title.Point.Y <= maxOther {
				t.Errorf("title baseline %v is not above panel text at %v", title.Point.Y, maxOther)
			}
		})
	}
}

func TestPNGRenderer_WritesFile(t *testing.T) {
	series := testSeries(40)
	path := filepath.Join(t.TempDir(), "out", "ibm.png")
	r := NewPNGRenderer(path, 800, 900)

	if err := r.Render(context.Background(), series, calculator.Compute(series.Bars)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read chart: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")) {
		t.Error("output is not a PNG")
	}
}
