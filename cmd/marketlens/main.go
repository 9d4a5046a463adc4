package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"MarketLens/internal/config"
	"MarketLens/internal/logging"
	"MarketLens/internal/metrics"
	"MarketLens/internal/scheduler"
)

var version = "0.1.0"

type options struct {
	configPath string
	ticker     string
	noChart    bool
	runOnStart bool
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "marketlens",
		Short: "Daily technical indicators for a single ticker",
		Long: `marketlens fetches daily price history for one ticker, computes SMA 200,
EMA 50, RSI 14 and MACD, prints the latest values and renders a chart.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), opts)
		},
	}

	defaultConfig := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultConfig = v
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfig, "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVarP(&opts.ticker, "ticker", "t", "", "Ticker symbol (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&opts.noChart, "no-chart", false, "Skip chart rendering")

	rootCmd.AddCommand(watchCmd(opts))
	rootCmd.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("marketlens version %s\n", version)
		},
	}
}

func watchCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run on a cron schedule and serve metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.runOnStart, "run-on-start", os.Getenv("RUN_ON_START") == "true", "Run once immediately after starting")
	return cmd
}

// loadConfig loads the config file and applies command-line overrides.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.ticker != "" && opts.ticker != cfg.Ticker {
		if cfg.Chart.Output == config.DefaultChartPath(cfg.Ticker) {
			cfg.Chart.Output = config.DefaultChartPath(opts.ticker)
		}
		cfg.Ticker = opts.ticker
	}
	if opts.noChart {
		cfg.Chart.Disabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func runOnce(ctx context.Context, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger, os.Stdout, metrics.New())
	if err != nil {
		return err
	}
	defer a.Close()

	return a.runner.Run(ctx)
}

func runWatch(ctx context.Context, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	log := logging.Component(logger, "main")
	log.WithField("version", version).Info("MarketLens starting")

	m := metrics.New()
	a, err := newApp(ctx, cfg, logger, os.Stdout, m)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr, m, logging.Component(logger, "metrics"))
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				log.WithError(err).Warn("metrics server shutdown")
			}
		}()
	}

	sched := scheduler.NewScheduler(ctx, a.runner, logging.Component(logger, "scheduler"))
	sched.History = a.history
	if err := sched.Register(cfg.Schedule.Cron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if a.telegram != nil {
		go a.telegram.StartPolling(ctx, sched.HandleCommand)
		log.Info("telegram polling started")
	}

	if opts.runOnStart {
		log.Info("run-on-start enabled, executing analysis now")
		go sched.RunNow()
	}

	log.WithField("cron", cfg.Schedule.Cron).Info("MarketLens is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	log.Info("shutdown signal received, stopping")
	return nil
}
