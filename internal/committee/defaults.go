package committee

import (
	"binaryengine/internal/mlclient"
)

// RegisterDefaults registers every built-in agent under its canonical name.
// predictor backs the ml_predictor agent; pass mlclient.Stub{} in place of a
// live OpenAI client (test environments, missing credentials) since the
// factory signature doesn't distinguish the two.
func RegisterDefaults(registry *Registry, predictor mlclient.Predictor, sentimentExtremeHigh, sentimentExtremeLow float64) {
	registry.Register("technical", func() Agent { return NewTechnical() })
	registry.Register("sentiment", func() Agent { return NewSentiment(sentimentExtremeHigh, sentimentExtremeLow) })
	registry.Register("regime", func() Agent { return NewRegime() })
	registry.Register("guardian", func() Agent { return NewGuardianVote() })
	registry.Register("orderbook", func() Agent { return NewOrderBook() })
	registry.Register("funding", func() Agent { return NewFunding() })
	registry.Register("social", func() Agent { return NewSocial() })
	registry.Register("candlestick", func() Agent { return NewCandlestick() })
	registry.Register("time_of_day", func() Agent { return NewTimeOfDay() })
	registry.Register("ml_predictor", func() Agent { return NewMLPredictor(predictor) })
}
