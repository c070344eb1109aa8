package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRSI(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 105, 107, 106, 108, 110, 111, 112, 115, 117, 119, 118, 120, 121, 123, 125, 124, 126, 127, 129, 130, 132, 133, 134, 135, 136, 138, 139, 141, 140, 142, 144, 143, 145, 147, 149, 148, 150, 151, 149, 148, 150, 152, 151, 153, 154, 156, 155, 157, 158, 160, 161, 159, 158, 157, 159, 160}
	rsi := RSI(closes, 14)
	require.Len(t, rsi, len(closes))
	require.InDelta(t, 73.084185, rsi[len(rsi)-1], 1e-6)
	require.True(t, math.IsNaN(rsi[0]))
}

func TestLatest(t *testing.T) {
	require.True(t, math.IsNaN(Latest([]float64{1, 2}, 14)))
	closes := []float64{100, 101, 102, 103, 105, 107, 106, 108, 110, 111, 112, 115, 117, 119, 118}
	got := Latest(closes, 14)
	require.False(t, math.IsNaN(got))
}

func TestMeanVariance(t *testing.T) {
	mean, variance := MeanVariance([]float64{1, 2, 3})
	require.InDelta(t, 2.0, mean, 1e-9)
	require.InDelta(t, 2.0/3.0, variance, 1e-9)

	mean, variance = MeanVariance(nil)
	require.Zero(t, mean)
	require.Zero(t, variance)
}
