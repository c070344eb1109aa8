// Package indicators computes the technical indicators the agent committee
// needs from raw price history. Grounded on this codebase's
// pkg/market/indicators.RSI, trimmed to the one indicator the design actually
// calls for (RSI(14) in the Technical agent); see DESIGN.md for why EMA,
// MACD, and ATR were not carried over.
package indicators

import "math"

// RSI computes the Relative Strength Index series across prices for the
// given period. Values before the period-th index are NaN.
func RSI(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) == 0 {
		return []float64{}
	}
	rsi := make([]float64, len(prices))
	for i := range rsi {
		rsi[i] = math.NaN()
	}
	if len(prices) <= period {
		return rsi
	}

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gainSum += change
		} else {
			lossSum -= change
		}
	}

	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	rsi[period] = computeRSI(avgGain, avgLoss)

	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain := math.Max(change, 0)
		loss := math.Max(-change, 0)

		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)

		rsi[i] = computeRSI(avgGain, avgLoss)
	}
	return rsi
}

// Latest returns the most recent non-NaN RSI value, or NaN if the series is
// too short to produce one.
func Latest(prices []float64, period int) float64 {
	series := RSI(prices, period)
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i]
		}
	}
	return math.NaN()
}

func computeRSI(avgGain, avgLoss float64) float64 {
	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50.0
	case avgLoss == 0:
		return 100.0
	case avgGain == 0:
		return 0.0
	default:
		rs := avgGain / avgLoss
		return 100.0 - (100.0 / (1.0 + rs))
	}
}

// MeanVariance returns the mean and population variance of returns, used by
// the Regime agent to classify the last 20 inter-epoch returns.
func MeanVariance(returns []float64) (mean, variance float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, r := range returns {
		sum += r
	}
	mean = sum / float64(len(returns))

	sqSum := 0.0
	for _, r := range returns {
		d := r - mean
		sqSum += d * d
	}
	variance = sqSum / float64(len(returns))
	return mean, variance
}
