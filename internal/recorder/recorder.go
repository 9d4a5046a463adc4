package recorder

import "time"

// Attempt outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeRateLimited = "rate_limited"
	OutcomeFailed      = "failed"
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusExhausted = "exhausted"
	StatusCancelled = "cancelled"
)

// AttemptEvent records one fetch-compute-report attempt.
type AttemptEvent struct {
	RunID     string
	Attempt   int
	Outcome   string // OutcomeSuccess, OutcomeRateLimited or OutcomeFailed
	ErrorKind string
	Error     string
	Bars      int
	Backoff   time.Duration
	At        time.Time
}

// RunSummary records the final state of a run.
type RunSummary struct {
	RunID      string
	Ticker     string
	Source     string
	Status     string // StatusSucceeded, StatusExhausted or StatusCancelled
	Attempts   int
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string
}

// Recorder persists run history for later inspection.
type Recorder interface {
	RecordAttempt(evt *AttemptEvent) error
	RecordRun(sum *RunSummary) error
	Close() error
}
