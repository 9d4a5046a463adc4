package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"MarketLens/internal/model"
)

const defaultAlphaVantageURL = "https://www.alphavantage.co/query"

// AlphaVantageFetcher implements Fetcher using the Alpha Vantage TIME_SERIES_DAILY endpoint.
type AlphaVantageFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewAlphaVantageFetcher creates a fetcher with optional proxy support.
// An empty baseURL selects the public endpoint.
func NewAlphaVantageFetcher(baseURL, apiKey, proxyURL string) *AlphaVantageFetcher {
	if baseURL == "" {
		baseURL = defaultAlphaVantageURL
	}
	return &AlphaVantageFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  newHTTPClient(proxyURL),
	}
}

func (f *AlphaVantageFetcher) Name() string { return "alphavantage" }

// avDaily is the response structure of TIME_SERIES_DAILY. Throttled and
// rejected requests come back with status 200 and one of the message keys.
type avDaily struct {
	Note         string                       `json:"Note"`
	Information  string                       `json:"Information"`
	ErrorMessage string                       `json:"Error Message"`
	TimeSeries   map[string]map[string]string `json:"Time Series (Daily)"`
}

func (f *AlphaVantageFetcher) FetchDailyBars(ctx context.Context, symbol string, count int) ([]model.OHLCV, error) {
	q := url.Values{}
	q.Set("function", "TIME_SERIES_DAILY")
	q.Set("symbol", symbol)
	q.Set("apikey", f.APIKey)
	q.Set("outputsize", "full")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, newFetchError(KindTransport, f.Name(), "build request", err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, newFetchError(KindTransport, f.Name(), "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newFetchError(KindTransport, f.Name(), "read body", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, newFetchError(KindRateLimited, f.Name(), fmt.Sprintf("status %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, newFetchError(KindRemote, f.Name(), fmt.Sprintf("status %d, body: %s", resp.StatusCode, string(body)), nil)
	}

	var payload avDaily
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, newFetchError(KindMalformed, f.Name(), "decode response", err)
	}
	switch {
	case payload.Note != "":
		return nil, newFetchError(KindRateLimited, f.Name(), payload.Note, nil)
	case payload.Information != "":
		return nil, newFetchError(KindRateLimited, f.Name(), payload.Information, nil)
	case payload.ErrorMessage != "":
		return nil, newFetchError(KindRemote, f.Name(), payload.ErrorMessage, nil)
	case payload.TimeSeries == nil:
		return nil, newFetchError(KindMalformed, f.Name(), "missing Time Series (Daily)", nil)
	}

	bars := make([]model.OHLCV, 0, len(payload.TimeSeries))
	for date, fields := range payload.TimeSeries {
		bar, err := parseAVBar(date, fields)
		if err != nil {
			return nil, newFetchError(KindMalformed, f.Name(), "bar "+date, err)
		}
		bars = append(bars, bar)
	}
	return sortAndTrim(bars, count), nil
}

func parseAVBar(date string, fields map[string]string) (model.OHLCV, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return model.OHLCV{}, fmt.Errorf("parse date: %w", err)
	}
	keys := [5]string{"1. open", "2. high", "3. low", "4. close", "5. volume"}
	var vals [5]float64
	for i, k := range keys {
		raw, ok := fields[k]
		if !ok {
			return model.OHLCV{}, errors.New("missing field " + k)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return model.OHLCV{}, fmt.Errorf("parse %s: %w", k, err)
		}
		vals[i] = v
	}
	return model.OHLCV{
		Time:   t,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
