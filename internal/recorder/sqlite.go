package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *logrus.Entry
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *logrus.Entry) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets readers inspect history while a watch process writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.WithField("path", dbPath).Info("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id      TEXT PRIMARY KEY,
			ticker      TEXT NOT NULL,
			source      TEXT,
			status      TEXT NOT NULL,
			attempts    INTEGER,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER,
			error       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS attempts (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL,
			attempt     INTEGER NOT NULL,
			timestamp   INTEGER NOT NULL,
			outcome     TEXT NOT NULL,
			error_kind  TEXT,
			error       TEXT,
			bars        INTEGER,
			backoff_ms  INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:30], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordAttempt(evt *AttemptEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := evt.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.Exec(`INSERT INTO attempts
		(run_id, attempt, timestamp, outcome, error_kind, error, bars, backoff_ms)
		VALUES (?,?,?,?,?,?,?,?)`,
		evt.RunID, evt.Attempt, at.Unix(), evt.Outcome,
		evt.ErrorKind, evt.Error, evt.Bars, evt.Backoff.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// RecordRun inserts or replaces the summary row for sum.RunID.
func (r *SQLiteRecorder) RecordRun(sum *RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT OR REPLACE INTO runs
		(run_id, ticker, source, status, attempts, started_at, finished_at, error)
		VALUES (?,?,?,?,?,?,?,?)`,
		sum.RunID, sum.Ticker, sum.Source, sum.Status, sum.Attempts,
		sum.StartedAt.Unix(), sum.FinishedAt.Unix(), sum.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// countAttempts returns the number of attempts stored for a run.
func (r *SQLiteRecorder) countAttempts(runID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM attempts WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

// LastRun returns the most recently started run, or sql.ErrNoRows.
func (r *SQLiteRecorder) LastRun() (*RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		sum               RunSummary
		started, finished int64
		source, errText   sql.NullString
	)
	err := r.db.QueryRow(`SELECT run_id, ticker, source, status, attempts, started_at, finished_at, error
		FROM runs ORDER BY started_at DESC LIMIT 1`).
		Scan(&sum.RunID, &sum.Ticker, &source, &sum.Status, &sum.Attempts, &started, &finished, &errText)
	if err != nil {
		return nil, err
	}
	sum.Source = source.String
	sum.Error = errText.String
	sum.StartedAt = time.Unix(started, 0)
	sum.FinishedAt = time.Unix(finished, 0)
	return &sum, nil
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite recorder")
	return r.db.Close()
}
