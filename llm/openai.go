package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// OpenAI is a Generator backed by an OpenAI-compatible chat endpoint.
type OpenAI struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

// NewOpenAI creates a Generator for the given model. An empty apiKey
// returns ErrNotConfigured so callers can fall back to degraded mode.
func NewOpenAI(apiKey, model, baseURL string, temperature float64, maxTokens int, logger *zap.Logger) (*OpenAI, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	return &OpenAI{
		model:       client,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      logger,
	}, nil
}

// GenerateJSON sends the prompt and extracts the JSON object from the
// response. Malformed output surfaces as ErrMalformedOutput.
func (o *OpenAI) GenerateJSON(ctx context.Context, system, prompt string) (json.RawMessage, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := o.model.GenerateContent(ctx, messages,
		llms.WithTemperature(o.temperature),
		llms.WithMaxTokens(o.maxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrMalformedOutput
	}

	raw, err := ExtractJSON(resp.Choices[0].Content)
	if err != nil {
		o.logger.Warn("model returned unparsable output",
			zap.Int("response_length", len(resp.Choices[0].Content)))
		return nil, err
	}
	return raw, nil
}

var _ Generator = (*OpenAI)(nil)
