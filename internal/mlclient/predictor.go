// Package mlclient wraps the inference call backing the committee's optional
// ML-predictor agent: a single call that yields P(Up) for a snapshot.
package mlclient

import "context"

// Prediction is the inference result the ML-predictor agent votes from.
type Prediction struct {
	ProbabilityUp float64 // P(Up) in [0,1]
	ModelConfidence float64 // [0,1], the model's own confidence in ProbabilityUp
}

// Predictor produces one prediction per snapshot. Implementations must not
// block indefinitely; callers pass a context with a deadline.
type Predictor interface {
	Predict(ctx context.Context, input Input) (Prediction, error)
}

// Input is the subset of a snapshot the predictor needs, kept separate from
// domain.MarketSnapshot so this package stays free of a committee import
// cycle and so test doubles don't need to construct a full snapshot.
type Input struct {
	Crypto           string
	SecondsIntoEpoch int
	RSI14            float64
	UpAsk            float64
	DownAsk          float64
	RecentUpFraction float64 // fraction of recent resolved outcomes that were Up
}
