package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"MarketLens/internal/notifier"
	"MarketLens/internal/recorder"
)

// RunHistory returns the most recent persisted run.
type RunHistory interface {
	LastRun() (*recorder.RunSummary, error)
}

// Scheduler runs the Runner on a cron schedule and answers chat commands.
type Scheduler struct {
	Cron   *cron.Cron
	Runner *Runner
	Ctx    context.Context
	Log    *logrus.Entry
	// History answers /status before this process has finished a run. Optional.
	History RunHistory

	running sync.Mutex
}

// NewScheduler creates a Scheduler. Cron expressions include a seconds field.
func NewScheduler(ctx context.Context, runner *Runner, log *logrus.Entry) *Scheduler {
	cl := cronLogger{log}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		Runner: runner,
		Ctx:    ctx,
		Log:    log,
	}
}

// Register schedules the analysis run.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.runTask); err != nil {
		return fmt.Errorf("register analysis task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Log.Info("scheduler stopped")
}

// RunNow executes the analysis immediately, at startup or on /run.
// It reports false if a run was already in progress.
func (s *Scheduler) RunNow() bool {
	if !s.running.TryLock() {
		s.Log.Warn("run already in progress, skipping")
		return false
	}
	defer s.running.Unlock()

	s.Log.Info("running analysis task")
	if err := s.Runner.Run(s.Ctx); err != nil {
		s.Log.WithError(err).Error("analysis run failed")
	}
	return true
}

func (s *Scheduler) runTask() { s.RunNow() }

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(_ context.Context, command string) string {
	switch command {
	case "/run":
		if !s.RunNow() {
			return "A run is already in progress."
		}
		return ""
	case "/latest":
		res, ok := s.Runner.LastResult()
		if !ok || res.Latest == nil {
			return "No successful run yet."
		}
		return notifier.FormatLatestHTML(s.Runner.Ticker, *res.Latest)
	case "/status":
		res, ok := s.Runner.LastResult()
		if !ok {
			return s.persistedStatus()
		}
		errText := ""
		if res.Err != nil {
			errText = res.Err.Error()
		}
		return formatStatus(res.Status, res.Attempts, res.Finished, errText)
	default:
		return "Available commands:\n• /run\n• /latest\n• /status"
	}
}

func (s *Scheduler) persistedStatus() string {
	if s.History == nil {
		return "No run has finished yet."
	}
	sum, err := s.History.LastRun()
	if errors.Is(err, sql.ErrNoRows) {
		return "No run has finished yet."
	}
	if err != nil {
		s.Log.WithError(err).Error("load last run")
		return "No run has finished yet."
	}
	return formatStatus(sum.Status, sum.Attempts, sum.FinishedAt, sum.Error)
}

func formatStatus(status string, attempts int, finished time.Time, errText string) string {
	msg := fmt.Sprintf("Last run: %s after %d attempt(s) at %s",
		status, attempts, finished.Format("2006-01-02 15:04:05"))
	if errText != "" {
		msg += "\nError: " + errText
	}
	return msg
}

// cronLogger adapts a logrus entry to cron.Logger.
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(pairs(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithError(err).WithFields(pairs(keysAndValues)).Error(msg)
}

func pairs(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
