package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"MarketLens/internal/calculator"
	"MarketLens/internal/chart"
	"MarketLens/internal/collector"
	"MarketLens/internal/config"
	"MarketLens/internal/metrics"
	"MarketLens/internal/model"
	"MarketLens/internal/notifier"
	"MarketLens/internal/recorder"
)

// ErrAttemptsExhausted is returned when every attempt of a run failed.
var ErrAttemptsExhausted = errors.New("max retry attempts reached")

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RunResult describes the last finished run.
type RunResult struct {
	RunID    string
	Status   string
	Attempts int
	Finished time.Time
	Bars     int
	Latest   *model.IndicatorRow // nil unless the run succeeded
	Err      error
}

// Runner drives fetch, compute, report and render with a bounded number of
// attempts. Only rate-limit failures back off; other failures retry at once.
type Runner struct {
	Ticker       string
	Attempts     int
	InitialDelay time.Duration

	Collector *collector.Collector
	Reporter  notifier.Reporter
	Renderer  chart.Renderer
	// Notifiers receive the report after a successful attempt. Their
	// failures are logged and never fail the run.
	Notifiers notifier.MultiReporter
	Recorder  recorder.Recorder
	Metrics   *metrics.Metrics
	Log       *logrus.Entry
	Out       io.Writer

	Sleep SleepFunc
	Now   func() time.Time

	mu   sync.Mutex
	last *RunResult
}

// NewRunner wires a runner from the loaded configuration.
func NewRunner(cfg *config.Config, col *collector.Collector, rep notifier.Reporter, ren chart.Renderer,
	rec recorder.Recorder, m *metrics.Metrics, log *logrus.Entry, out io.Writer) *Runner {
	return &Runner{
		Ticker:       cfg.Ticker,
		Attempts:     cfg.Retry.Attempts,
		InitialDelay: cfg.Retry.InitialDelay,
		Collector:    col,
		Reporter:     rep,
		Renderer:     ren,
		Recorder:     rec,
		Metrics:      m,
		Log:          log,
		Out:          out,
		Sleep:        sleepContext,
		Now:          time.Now,
	}
}

// Run performs one run. It returns nil on success, ErrAttemptsExhausted
// wrapping the last failure, or the context error if cancelled.
func (r *Runner) Run(ctx context.Context) error {
	runID := uuid.NewString()
	log := r.Log.WithFields(logrus.Fields{"run_id": runID, "ticker": r.Ticker})
	started := r.Now()
	delay := r.InitialDelay

	var lastErr error
	attempt := 0
	for attempt < r.Attempts {
		if err := ctx.Err(); err != nil {
			return r.finish(log, &RunResult{RunID: runID, Status: recorder.StatusCancelled, Attempts: attempt, Err: err}, started)
		}
		attempt++
		fmt.Fprintf(r.Out, "\nAttempt %d of %d\n", attempt, r.Attempts)

		series, latest, err := r.attempt(ctx, log)
		if err == nil {
			r.recordAttempt(log, &recorder.AttemptEvent{
				RunID: runID, Attempt: attempt, Outcome: recorder.OutcomeSuccess,
				Bars: series.Len(), At: r.Now(),
			})
			r.Metrics.ObserveSuccess(r.Ticker, series.Len(), latest, r.Now())
			r.notify(ctx, log, latest)
			return r.finish(log, &RunResult{
				RunID: runID, Status: recorder.StatusSucceeded, Attempts: attempt,
				Bars: series.Len(), Latest: &latest,
			}, started)
		}

		lastErr = err
		fmt.Fprintf(r.Out, "Error: %v\n", err)
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"kind":    failureKind(err),
		}).Warn("attempt failed")

		if ctx.Err() != nil {
			r.recordFailure(log, runID, attempt, err, 0)
			return r.finish(log, &RunResult{RunID: runID, Status: recorder.StatusCancelled, Attempts: attempt, Err: ctx.Err()}, started)
		}

		if collector.IsRateLimited(err) && attempt < r.Attempts {
			fmt.Fprintf(r.Out, "Retrying in %g seconds...\n", delay.Seconds())
			r.recordFailure(log, runID, attempt, err, delay)
			r.Metrics.ObserveBackoff(delay)
			if err := r.Sleep(ctx, delay); err != nil {
				return r.finish(log, &RunResult{RunID: runID, Status: recorder.StatusCancelled, Attempts: attempt, Err: err}, started)
			}
			delay *= 2
			continue
		}
		// TODO: back off on non-rate-limit failures as well once providers
		// report transient server errors distinctly from permanent ones.
		r.recordFailure(log, runID, attempt, err, 0)
	}

	fmt.Fprintln(r.Out, "Max retry attempts reached. Exiting.")
	err := ErrAttemptsExhausted
	if lastErr != nil {
		err = fmt.Errorf("%w: %w", ErrAttemptsExhausted, lastErr)
	}
	return r.finish(log, &RunResult{RunID: runID, Status: recorder.StatusExhausted, Attempts: attempt, Err: err}, started)
}

// attempt runs one pass of the pipeline and returns the series and its latest row.
func (r *Runner) attempt(ctx context.Context, log *logrus.Entry) (model.PriceSeries, model.IndicatorRow, error) {
	series, err := r.Collector.Collect(ctx)
	if err != nil {
		return series, model.IndicatorRow{}, err
	}
	if warning := calculator.ShortSeriesWarning(series.Len()); warning != "" {
		fmt.Fprintf(r.Out, "Warning: %s\n", warning)
		log.WithField("bars", series.Len()).Warn(warning)
	}

	rows := calculator.Compute(series.Bars)
	if len(rows) == 0 {
		return series, model.IndicatorRow{}, collector.EmptySeriesError(series.Source, series.Symbol)
	}
	latest := rows[len(rows)-1]

	if err := r.Reporter.Report(ctx, r.Ticker, latest); err != nil {
		return series, latest, fmt.Errorf("report indicators: %w", err)
	}
	if err := r.Renderer.Render(ctx, series, rows); err != nil {
		return series, latest, fmt.Errorf("render chart: %w", err)
	}
	return series, latest, nil
}

// finish records the run summary, stores res as the last result and
// returns res.Err.
func (r *Runner) finish(log *logrus.Entry, res *RunResult, started time.Time) error {
	res.Finished = r.Now()
	sum := &recorder.RunSummary{
		RunID:      res.RunID,
		Ticker:     r.Ticker,
		Source:     r.Collector.Fetcher.Name(),
		Status:     res.Status,
		Attempts:   res.Attempts,
		StartedAt:  started,
		FinishedAt: res.Finished,
	}
	if res.Err != nil {
		sum.Error = res.Err.Error()
	}
	if err := r.Recorder.RecordRun(sum); err != nil {
		log.WithError(err).Error("record run")
	}
	r.Metrics.ObserveRun(res.Status, res.Finished)

	r.mu.Lock()
	r.last = res
	r.mu.Unlock()

	entry := log.WithFields(logrus.Fields{"status": res.Status, "attempts": res.Attempts})
	if res.Err != nil {
		entry.WithError(res.Err).Error("run finished")
	} else {
		entry.Info("run finished")
	}
	return res.Err
}

// LastResult returns the result of the most recent finished run.
func (r *Runner) LastResult() (RunResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return RunResult{}, false
	}
	return *r.last, true
}

// notify forwards the latest row to the side channels.
func (r *Runner) notify(ctx context.Context, log *logrus.Entry, latest model.IndicatorRow) {
	if len(r.Notifiers) == 0 {
		return
	}
	if err := r.Notifiers.Report(ctx, r.Ticker, latest); err != nil {
		log.WithError(err).Warn("send notification")
	}
}

func (r *Runner) recordFailure(log *logrus.Entry, runID string, attempt int, err error, backoff time.Duration) {
	outcome := recorder.OutcomeFailed
	if collector.IsRateLimited(err) {
		outcome = recorder.OutcomeRateLimited
	}
	r.recordAttempt(log, &recorder.AttemptEvent{
		RunID:     runID,
		Attempt:   attempt,
		Outcome:   outcome,
		ErrorKind: failureKind(err),
		Error:     err.Error(),
		Backoff:   backoff,
		At:        r.Now(),
	})
}

func (r *Runner) recordAttempt(log *logrus.Entry, evt *recorder.AttemptEvent) {
	r.Metrics.ObserveAttempt(evt.Outcome)
	if err := r.Recorder.RecordAttempt(evt); err != nil {
		log.WithError(err).Error("record attempt")
	}
}

// failureKind names the fetch error kind, or "pipeline" for report and render failures.
func failureKind(err error) string {
	var fe *collector.FetchError
	if errors.As(err, &fe) {
		return fe.Kind.String()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "pipeline"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
