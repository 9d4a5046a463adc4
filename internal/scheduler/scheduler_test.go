package scheduler

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"MarketLens/internal/recorder"
)

func newTestScheduler(h *harness) *Scheduler {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewScheduler(context.Background(), h.runner, logrus.NewEntry(logger))
}

func TestHandleCommand(t *testing.T) {
	h := newHarness(fetchResult{bars: bars(40)})
	s := newTestScheduler(h)
	ctx := context.Background()

	if got := s.HandleCommand(ctx, "/latest"); got != "No successful run yet." {
		t.Errorf("/latest before run = %q", got)
	}
	if got := s.HandleCommand(ctx, "/status"); got != "No run has finished yet." {
		t.Errorf("/status before run = %q", got)
	}

	if got := s.HandleCommand(ctx, "/run"); got != "" {
		t.Errorf("/run reply = %q, want empty", got)
	}
	if h.reporter.calls != 1 {
		t.Errorf("report calls = %d, want 1", h.reporter.calls)
	}

	if got := s.HandleCommand(ctx, "/latest"); !strings.Contains(got, "IBM") || !strings.Contains(got, "N/A") {
		t.Errorf("/latest after run = %q", got)
	}
	if got := s.HandleCommand(ctx, "/status"); !strings.HasPrefix(got, "Last run: succeeded after 1 attempt(s)") {
		t.Errorf("/status after run = %q", got)
	}
	if got := s.HandleCommand(ctx, "hello"); !strings.Contains(got, "/run") {
		t.Errorf("help reply = %q", got)
	}
}

func TestRunNow_SkipsWhileRunning(t *testing.T) {
	h := newHarness(fetchResult{bars: bars(40)})
	s := newTestScheduler(h)

	s.running.Lock()
	if s.RunNow() {
		t.Error("RunNow should skip while a run holds the lock")
	}
	s.running.Unlock()

	if !s.RunNow() {
		t.Error("RunNow should run when idle")
	}
	if h.fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", h.fetcher.calls)
	}
}

func TestRegister_InvalidSpec(t *testing.T) {
	s := newTestScheduler(newHarness(fetchResult{bars: bars(1)}))
	if err := s.Register("not a cron"); err == nil {
		t.Error("expected error for invalid cron spec")
	}
	if err := s.Register("0 30 18 * * 1-5"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

type fakeHistory struct {
	sum *recorder.RunSummary
	err error
}

func (f fakeHistory) LastRun() (*recorder.RunSummary, error) { return f.sum, f.err }

func TestHandleCommand_StatusFromHistory(t *testing.T) {
	finished := time.Date(2024, 3, 1, 18, 31, 0, 0, time.UTC)
	tests := []struct {
		name    string
		history RunHistory
		want    string
	}{
		{"no history", nil, "No run has finished yet."},
		{"empty history", fakeHistory{err: sql.ErrNoRows}, "No run has finished yet."},
		{"persisted run", fakeHistory{sum: &recorder.RunSummary{
			Status: recorder.StatusExhausted, Attempts: 3, FinishedAt: finished, Error: "boom",
		}}, "Last run: exhausted after 3 attempt(s) at 2024-03-01 18:31:00\nError: boom"},
	}
	for _, tt := range tests {
		s := newTestScheduler(newHarness(fetchResult{bars: bars(1)}))
		s.History = tt.history
		if got := s.HandleCommand(context.Background(), "/status"); got != tt.want {
			t.Errorf("%s: /status = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestHandleCommand_StatusPrefersInMemoryResult(t *testing.T) {
	h := newHarness(fetchResult{bars: bars(40)})
	s := newTestScheduler(h)
	s.History = fakeHistory{sum: &recorder.RunSummary{Status: recorder.StatusExhausted, Attempts: 3}}

	s.RunNow()
	if got := s.HandleCommand(context.Background(), "/status"); !strings.HasPrefix(got, "Last run: succeeded") {
		t.Errorf("/status = %q", got)
	}
}
