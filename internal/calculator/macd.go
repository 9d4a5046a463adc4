package calculator

// MACDSeries returns the fast-minus-slow EMA line and its signal EMA.
// Both are defined from the first bar.
func MACDSeries(prices []float64, fast, slow, signal int) (macd, sig []float64) {
	fastEMA := EMASeries(prices, fast)
	slowEMA := EMASeries(prices, slow)
	macd = make([]float64, len(prices))
	for i := range prices {
		macd[i] = fastEMA[i] - slowEMA[i]
	}
	return macd, EMASeries(macd, signal)
}
