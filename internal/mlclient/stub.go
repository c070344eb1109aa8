package mlclient

import "context"

// Stub is a fixed-probability Predictor for tests and for operators who
// haven't provisioned an inference backend. Per the open design note, the
// engine must run without an ML-predictor agent at all (it's optional); this
// stub exists so the agent's wiring and scoring logic can still be tested
// without a live model.
type Stub struct {
	ProbabilityUp   float64
	ModelConfidence float64
}

func (s Stub) Predict(_ context.Context, _ Input) (Prediction, error) {
	return Prediction{ProbabilityUp: s.ProbabilityUp, ModelConfidence: s.ModelConfidence}, nil
}

var _ Predictor = Stub{}
