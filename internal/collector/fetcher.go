package collector

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"time"

	"MarketLens/internal/model"
)

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	// FetchDailyBars returns up to count of the most recent daily bars,
	// sorted ascending by date.
	FetchDailyBars(ctx context.Context, symbol string, count int) ([]model.OHLCV, error)
	Name() string
}

// newHTTPClient builds the shared client used by HTTP fetchers, with optional proxy support.
func newHTTPClient(proxyURL string) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
}

// sortAndTrim orders bars by date and keeps the trailing count.
func sortAndTrim(bars []model.OHLCV, count int) []model.OHLCV {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	return bars
}
