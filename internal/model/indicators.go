package model

import (
	"time"

	"github.com/guregu/null/v6"
)

// IndicatorRow holds the derived indicators for one bar.
// An invalid null.Float means the value is not yet computable.
type IndicatorRow struct {
	Time       time.Time
	Close      float64
	SMA200     null.Float
	EMA50      null.Float
	RSI14      null.Float
	MACD       null.Float
	MACDSignal null.Float
}

// Histogram returns MACD minus its signal line.
func (r IndicatorRow) Histogram() null.Float {
	if !r.MACD.Valid || !r.MACDSignal.Valid {
		return null.Float{}
	}
	return null.FloatFrom(r.MACD.Float64 - r.MACDSignal.Float64)
}
