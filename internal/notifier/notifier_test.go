package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/sirupsen/logrus"

	"MarketLens/internal/model"
)

func sampleRow() model.IndicatorRow {
	return model.IndicatorRow{
		Time:       time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
		Close:      523.456,
		SMA200:     null.Float{},
		EMA50:      null.FloatFrom(510.1234),
		RSI14:      null.FloatFrom(100),
		MACD:       null.FloatFrom(-1.2345678),
		MACDSignal: null.FloatFrom(0),
	}
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   null.Float
		want string
	}{
		{null.Float{}, "N/A"},
		{null.FloatFrom(0), "0.00"},
		{null.FloatFrom(12.3449), "12.34"},
		{null.FloatFrom(-3.14159), "-3.14"},
		{null.FloatFrom(100), "100.00"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatLatest(t *testing.T) {
	got := FormatLatest(sampleRow())
	want := "Close Price: 523.46\n" +
		"SMA 200: N/A\n" +
		"EMA 50: 510.12\n" +
		"RSI 14: 100.00\n" +
		"MACD: -1.23\n" +
		"Signal Line: 0.00\n"
	if got != want {
		t.Errorf("FormatLatest mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatLatestHTML_RSIHint(t *testing.T) {
	msg := FormatLatestHTML("IBM", sampleRow())
	if !strings.Contains(msg, "<b>IBM Technical Indicators</b> | 2024-03-06") {
		t.Errorf("missing heading: %s", msg)
	}
	if !strings.Contains(msg, "SMA 200: <code>N/A</code>") {
		t.Errorf("undefined value not rendered as N/A: %s", msg)
	}
	if !strings.Contains(msg, "overbought") {
		t.Errorf("expected overbought hint for RSI 100: %s", msg)
	}
}

func TestConsoleReporter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewConsoleReporter(&buf).Report(context.Background(), "IBM", sampleRow()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, line := range []string{"Latest Technical Indicators (IBM, 2024-03-06):", "Close Price: 523.46", "SMA 200: N/A", "Signal Line: 0.00"} {
		if !strings.Contains(out, line) {
			t.Errorf("output missing %q:\n%s", line, out)
		}
	}
}

type failingReporter struct{ err error }

func (f failingReporter) Report(context.Context, string, model.IndicatorRow) error { return f.err }

func TestMultiReporter_JoinsErrors(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	var buf bytes.Buffer
	m := MultiReporter{failingReporter{errA}, NewConsoleReporter(&buf), failingReporter{errB}}

	err := m.Report(context.Background(), "IBM", sampleRow())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("expected both errors, got %v", err)
	}
	if buf.Len() == 0 {
		t.Error("console reporter should still run after an earlier failure")
	}
	if err := (MultiReporter{NewConsoleReporter(io.Discard)}).Report(context.Background(), "IBM", sampleRow()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTelegram_ReportRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["chat_id"] != "42" || payload["parse_mode"] != "HTML" {
			t.Errorf("unexpected payload: %v", payload)
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("token", "42", "", quietLog())
	tn.BaseURL = srv.URL
	tn.RetryBase = time.Millisecond

	if err := tn.Report(context.Background(), "IBM", sampleRow()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestTelegram_RetriesExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("token", "42", "", quietLog())
	tn.BaseURL = srv.URL
	tn.RetryBase = time.Millisecond

	if err := tn.SendWithRetry(context.Background(), "hi", 2); err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestTelegram_PollOnceDispatchesCommands(t *testing.T) {
	var replies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			w.Write([]byte(`{"ok":true,"result":[{"update_id":7,"message":{"text":" /status "}},{"update_id":8}]}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var payload map[string]string
			json.NewDecoder(r.Body).Decode(&payload)
			replies = append(replies, payload["text"])
			w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("token", "42", "", quietLog())
	tn.BaseURL = srv.URL

	var got []string
	next, err := tn.pollOnce(context.Background(), srv.Client(), 0, func(_ context.Context, cmd string) string {
		got = append(got, cmd)
		return "ok: " + cmd
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != 9 {
		t.Errorf("next offset = %d, want 9", next)
	}
	if len(got) != 1 || got[0] != "/status" {
		t.Errorf("handled commands = %v", got)
	}
	if len(replies) != 1 || replies[0] != "ok: /status" {
		t.Errorf("replies = %v", replies)
	}
}
