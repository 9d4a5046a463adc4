package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"MarketLens/internal/model"
)

// Reporter publishes the indicators of the most recent bar.
type Reporter interface {
	Report(ctx context.Context, ticker string, latest model.IndicatorRow) error
}

var headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))

// ConsoleReporter writes the report to a terminal or any io.Writer.
type ConsoleReporter struct {
	Out io.Writer
}

// NewConsoleReporter creates a reporter writing to out.
func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{Out: out}
}

func (c *ConsoleReporter) Report(_ context.Context, ticker string, latest model.IndicatorRow) error {
	heading := fmt.Sprintf("Latest Technical Indicators (%s, %s):", ticker, latest.Time.Format("2006-01-02"))
	if _, err := fmt.Fprintf(c.Out, "\n%s\n%s", headingStyle.Render(heading), FormatLatest(latest)); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// MultiReporter fans a report out to every reporter and joins their errors.
type MultiReporter []Reporter

func (m MultiReporter) Report(ctx context.Context, ticker string, latest model.IndicatorRow) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, ticker, latest); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
