package calculator

import "github.com/guregu/null/v6"

// RSISeries returns the RSI at every index using simple rolling means of the
// trailing period close-to-close changes. The first valid index is period.
func RSISeries(prices []float64, period int) []null.Float {
	out := make([]null.Float, len(prices))
	if period <= 0 || len(prices) <= period {
		return out
	}
	gains := make([]float64, len(prices))
	losses := make([]float64, len(prices))
	for i := 1; i < len(prices); i++ {
		gains[i], losses[i] = splitChange(prices[i] - prices[i-1])
	}
	for i := period; i < len(prices); i++ {
		var sumGain, sumLoss float64
		for j := i - period + 1; j <= i; j++ {
			sumGain += gains[j]
			sumLoss += losses[j]
		}
		out[i] = null.FloatFrom(rsiFromAverages(sumGain/float64(period), sumLoss/float64(period)))
	}
	return out
}

func splitChange(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

// rsiFromAverages maps the average gain and loss onto [0, 100].
// A zero average loss is an infinite RS, which is RSI 100.
func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}
