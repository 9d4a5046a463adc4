package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"MarketLens/internal/chart"
	"MarketLens/internal/collector"
	"MarketLens/internal/config"
	"MarketLens/internal/logging"
	"MarketLens/internal/metrics"
	"MarketLens/internal/notifier"
	"MarketLens/internal/recorder"
	"MarketLens/internal/scheduler"
)

// app holds the components shared by the run-once and watch commands.
type app struct {
	runner   *scheduler.Runner
	telegram *notifier.TelegramNotifier
	history  scheduler.RunHistory
	closers  []func() error
	log      *logrus.Entry
}

func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger, out io.Writer, m *metrics.Metrics) (*app, error) {
	a := &app{log: logging.Component(logger, "main")}

	fetcher, err := buildFetcher(cfg)
	if err != nil {
		return nil, err
	}
	a.log.WithField("source", fetcher.Name()).Info("data source selected")

	if cfg.Cache.RedisAddr != "" {
		cache, err := collector.NewRedisBarCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			a.log.WithError(err).Warn("redis cache unavailable, fetching directly")
		} else {
			a.closers = append(a.closers, cache.Close)
			fetcher = collector.NewCachedFetcher(fetcher, cache, cfg.Cache.TTL, logging.Component(logger, "cache"))
		}
	}
	col := collector.NewCollector(fetcher, cfg.Ticker, cfg.DataSource.Bars)

	var notifiers notifier.MultiReporter
	if cfg.Telegram.BotToken != "" {
		a.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy,
			logging.Component(logger, "telegram"))
		notifiers = append(notifiers, a.telegram)
	}

	var renderer chart.Renderer = chart.NoopRenderer{}
	if !cfg.Chart.Disabled {
		renderer = chart.NewPNGRenderer(cfg.Chart.Output, cfg.Chart.Width, cfg.Chart.Height)
	}

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logging.Component(logger, "recorder"))
		if err != nil {
			a.log.WithError(err).Warn("init sqlite recorder failed, using noop")
		} else {
			rec = sr
			a.history = sr
			a.closers = append(a.closers, sr.Close)
		}
	}

	a.runner = scheduler.NewRunner(cfg, col, notifier.NewConsoleReporter(out), renderer, rec, m, logging.Component(logger, "runner"), out)
	a.runner.Notifiers = notifiers
	return a, nil
}

// buildFetcher selects the data source named by data_source.provider.
func buildFetcher(cfg *config.Config) (collector.Fetcher, error) {
	ds := cfg.DataSource
	switch ds.Provider {
	case config.ProviderAlphaVantage:
		return collector.NewAlphaVantageFetcher(ds.BaseURL, ds.APIKey, cfg.Proxy), nil
	case config.ProviderYahoo:
		return collector.NewYahooFetcher(ds.BaseURL, cfg.Proxy), nil
	case config.ProviderAlpaca:
		return collector.NewAlpacaFetcher(ds.APIKey, ds.APISecret), nil
	case config.ProviderMock:
		return &collector.MockFetcher{Price: 100}, nil
	default:
		return nil, fmt.Errorf("unknown data provider %q", ds.Provider)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("close resource")
		}
	}
}
