package collector

import (
	"context"
	"fmt"
	"math"
	"time"

	"MarketLens/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Price     float64
	DailyData []model.OHLCV
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchDailyBars(_ context.Context, _ string, count int) ([]model.OHLCV, error) {
	if m.DailyData != nil {
		return sortAndTrim(append([]model.OHLCV(nil), m.DailyData...), count), nil
	}
	return generateMockBars(m.Price, count), nil
}

func generateMockBars(basePrice float64, count int) []model.OHLCV {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	bars := make([]model.OHLCV, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001 + 0.02*math.Sin(float64(i)/9))
		bars[i] = model.OHLCV{
			Time:   end.AddDate(0, 0, -(count - 1 - i)),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}

// Collector fetches one ticker's price series through a Fetcher.
type Collector struct {
	Fetcher Fetcher
	Symbol  string
	Count   int
	Now     func() time.Time
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, symbol string, count int) *Collector {
	return &Collector{Fetcher: fetcher, Symbol: symbol, Count: count, Now: time.Now}
}

// Collect fetches the trailing daily bars. An empty result is reported as a
// KindEmpty FetchError.
func (c *Collector) Collect(ctx context.Context) (model.PriceSeries, error) {
	bars, err := c.Fetcher.FetchDailyBars(ctx, c.Symbol, c.Count)
	if err != nil {
		return model.PriceSeries{}, fmt.Errorf("fetch daily bars: %w", err)
	}
	if len(bars) == 0 {
		return model.PriceSeries{}, EmptySeriesError(c.Fetcher.Name(), c.Symbol)
	}
	return model.PriceSeries{
		Symbol:    c.Symbol,
		Source:    c.Fetcher.Name(),
		Bars:      bars,
		FetchedAt: c.Now(),
	}, nil
}
