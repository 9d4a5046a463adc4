package collector

import (
	"context"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"MarketLens/internal/model"
)

// alpacaBarsClient is the subset of *marketdata.Client used here.
type alpacaBarsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaFetcher implements Fetcher using the Alpaca market data API (IEX feed).
type AlpacaFetcher struct {
	Client alpacaBarsClient
	Now    func() time.Time
}

// NewAlpacaFetcher creates a fetcher authenticated with the given key pair.
func NewAlpacaFetcher(apiKey, apiSecret string) *AlpacaFetcher {
	return &AlpacaFetcher{
		Client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		Now: time.Now,
	}
}

func (f *AlpacaFetcher) Name() string { return "alpaca" }

// FetchDailyBars asks for a calendar window wide enough to hold count trading
// days and trims the result. The SDK retries throttled calls itself, so any
// error that reaches here is reported as a remote failure.
func (f *AlpacaFetcher) FetchDailyBars(ctx context.Context, symbol string, count int) ([]model.OHLCV, error) {
	if err := ctx.Err(); err != nil {
		return nil, newFetchError(KindTransport, f.Name(), "context done", err)
	}
	end := f.Now()
	start := end.AddDate(0, 0, -(count*7/5 + 10))

	raw, err := f.Client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      marketdata.IEX,
	})
	if err != nil {
		return nil, newFetchError(KindRemote, f.Name(), "get bars", err)
	}

	bars := make([]model.OHLCV, len(raw))
	for i, b := range raw {
		bars[i] = model.OHLCV{
			Time:   b.Timestamp,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		}
	}
	return sortAndTrim(bars, count), nil
}
