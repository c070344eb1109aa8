package committee

import (
	"context"

	"binaryengine/internal/domain"
	"binaryengine/internal/mlclient"
)

// MLPredictor wraps an inference call producing P(Up). Direction is Up if
// P >= 0.5 else Down; confidence is |P - 0.5| * 2; quality comes from the
// model's own stated confidence. Optional.
type MLPredictor struct {
	predictor mlclient.Predictor
}

func NewMLPredictor(predictor mlclient.Predictor) *MLPredictor {
	return &MLPredictor{predictor: predictor}
}

func (m *MLPredictor) Name() string { return "ml_predictor" }

func (m *MLPredictor) Analyze(ctx context.Context, snap domain.MarketSnapshot) (domain.Vote, error) {
	recentUp := 0.0
	if n := len(snap.RecentOutcomes); n > 0 {
		ups := 0
		for _, o := range snap.RecentOutcomes {
			if o.Direction == domain.Up {
				ups++
			}
		}
		recentUp = float64(ups) / float64(n)
	}

	prediction, err := m.predictor.Predict(ctx, mlclient.Input{
		Crypto:           string(snap.Crypto),
		SecondsIntoEpoch: snap.SecondsIntoEpoch,
		RSI14:            snap.RSI14,
		UpAsk:            snap.UpAsk,
		DownAsk:          snap.DownAsk,
		RecentUpFraction: recentUp,
	})
	if err != nil {
		return domain.Vote{}, err
	}

	direction := domain.Down
	if prediction.ProbabilityUp >= 0.5 {
		direction = domain.Up
	}
	confidence := clamp(absf(prediction.ProbabilityUp-0.5)*2, 0, 1)

	return domain.Vote{
		Direction:  direction,
		Confidence: confidence,
		Quality:    clamp(prediction.ModelConfidence, 0, 1),
		Details: map[string]any{
			"probability_up": prediction.ProbabilityUp,
		},
	}, nil
}

var _ Agent = (*MLPredictor)(nil)
