package mlclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"binaryengine/internal/breaker"
	"binaryengine/internal/engineerr"
)

const defaultRequestTimeout = 12 * time.Second

// OpenAIPredictor calls a chat-completions model with a JSON-object response
// format and parses P(Up) plus the model's stated confidence out of it.
// Grounded on pkg/llm.Client: same openai-go SDK, same
// retry-then-call shape, narrowed from general-purpose chat
// client down to one fixed structured prompt.
type OpenAIPredictor struct {
	client *openai.Client
	model  string
	call   *breaker.Endpoint
}

// NewOpenAIPredictor constructs a predictor against the given model name
// (e.g. "gpt-4o-mini"), using apiKey for auth and breakerCfg to bound
// repeated inference failures the same way every other external dependency
// is bounded.
func NewOpenAIPredictor(apiKey, model string, breakerCfg breaker.Settings) *OpenAIPredictor {
	client := openai.NewClient(option.WithAPIKey(apiKey), option.WithRequestTimeout(defaultRequestTimeout))
	return &OpenAIPredictor{
		client: &client,
		model:  model,
		call:   breaker.NewEndpoint("mlclient.predict", breakerCfg),
	}
}

type predictionPayload struct {
	ProbabilityUp   float64 `json:"probability_up"`
	ModelConfidence float64 `json:"confidence"`
}

func (p *OpenAIPredictor) Predict(ctx context.Context, input Input) (Prediction, error) {
	var out Prediction
	jsonFormat := shared.NewResponseFormatJSONObjectParam()
	err := p.call.Do(ctx, func(ctx context.Context) error {
		completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: p.model,
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(systemPrompt),
				openai.UserMessage(renderPrompt(input)),
			},
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &jsonFormat,
			},
		})
		if err != nil {
			return fmt.Errorf("mlclient: completion request: %w", err)
		}
		if len(completion.Choices) == 0 {
			return engineerr.VenueTransient("mlclient.predict", fmt.Errorf("empty completion"))
		}
		var payload predictionPayload
		content := strings.TrimSpace(completion.Choices[0].Message.Content)
		if err := json.Unmarshal([]byte(content), &payload); err != nil {
			return fmt.Errorf("mlclient: decode prediction: %w", err)
		}
		out = Prediction{
			ProbabilityUp:   clampUnit(payload.ProbabilityUp),
			ModelConfidence: clampUnit(payload.ModelConfidence),
		}
		return nil
	})
	return out, err
}

const systemPrompt = "You predict whether a 15-minute binary crypto market resolves Up or Down. " +
	"Respond with a compact JSON object: {\"probability_up\": <0..1>, \"confidence\": <0..1>}. No prose."

func renderPrompt(input Input) string {
	return fmt.Sprintf(
		"crypto=%s seconds_into_epoch=%d rsi14=%.2f up_ask=%.4f down_ask=%.4f recent_up_fraction=%.3f",
		input.Crypto, input.SecondsIntoEpoch, input.RSI14, input.UpAsk, input.DownAsk, input.RecentUpFraction,
	)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var _ Predictor = (*OpenAIPredictor)(nil)
