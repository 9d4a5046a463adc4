package calculator

import (
	"fmt"

	"github.com/guregu/null/v6"

	"MarketLens/internal/model"
)

// Fixed indicator periods.
const (
	SMAPeriod        = 200
	EMAPeriod        = 50
	RSIPeriod        = 14
	MACDFastPeriod   = 12
	MACDSlowPeriod   = 26
	MACDSignalPeriod = 9
)

// Compute derives one IndicatorRow per bar. It has no side effects and
// accepts any input, including an empty one.
func Compute(bars []model.OHLCV) []model.IndicatorRow {
	closes := extractCloses(bars)

	sma := SMASeries(closes, SMAPeriod)
	ema := EMASeries(closes, EMAPeriod)
	rsi := RSISeries(closes, RSIPeriod)
	macd, signal := MACDSeries(closes, MACDFastPeriod, MACDSlowPeriod, MACDSignalPeriod)

	rows := make([]model.IndicatorRow, len(bars))
	for i, b := range bars {
		rows[i] = model.IndicatorRow{
			Time:       b.Time,
			Close:      b.Close,
			SMA200:     sma[i],
			EMA50:      null.FloatFrom(ema[i]),
			RSI14:      rsi[i],
			MACD:       null.FloatFrom(macd[i]),
			MACDSignal: null.FloatFrom(signal[i]),
		}
	}
	return rows
}

// ShortSeriesWarning returns an advisory message when the series is too short
// for SMA 200 to ever become defined, or "" otherwise.
func ShortSeriesWarning(n int) string {
	if n >= SMAPeriod {
		return ""
	}
	return fmt.Sprintf("Only %d trading days available (%d recommended)", n, SMAPeriod)
}
