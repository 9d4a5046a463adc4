package notifier

import (
	"fmt"
	"math"
	"strings"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"MarketLens/internal/model"
)

// NotAvailable is printed for indicators that are not yet computable.
const NotAvailable = "N/A"

// field is one labelled line of the latest-indicators report.
type field struct {
	Label string
	Value null.Float
}

func reportFields(row model.IndicatorRow) []field {
	return []field{
		{"Close Price", null.FloatFrom(row.Close)},
		{"SMA 200", row.SMA200},
		{"EMA 50", row.EMA50},
		{"RSI 14", row.RSI14},
		{"MACD", row.MACD},
		{"Signal Line", row.MACDSignal},
	}
}

// FormatValue renders v with two decimals, or N/A when it is undefined.
func FormatValue(v null.Float) string {
	if !v.Valid || math.IsNaN(v.Float64) || math.IsInf(v.Float64, 0) {
		return NotAvailable
	}
	return decimal.NewFromFloat(v.Float64).StringFixed(2)
}

// FormatLatest renders the plain-text body of the report, one "Label: value" per line.
func FormatLatest(row model.IndicatorRow) string {
	var b strings.Builder
	for _, f := range reportFields(row) {
		b.WriteString(fmt.Sprintf("%s: %s\n", f.Label, FormatValue(f.Value)))
	}
	return b.String()
}

// FormatLatestHTML formats the report as a Telegram HTML message.
func FormatLatestHTML(ticker string, row model.IndicatorRow) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>%s Technical Indicators</b> | %s\n\n", ticker, row.Time.Format("2006-01-02")))
	for _, f := range reportFields(row) {
		b.WriteString(fmt.Sprintf("%s: <code>%s</code>\n", f.Label, FormatValue(f.Value)))
	}
	if rsi := row.RSI14; rsi.Valid {
		switch {
		case rsi.Float64 >= 70:
			b.WriteString("\n⚠️ RSI above 70 (overbought)")
		case rsi.Float64 <= 30:
			b.WriteString("\n🎣 RSI below 30 (oversold)")
		}
	}
	return b.String()
}
