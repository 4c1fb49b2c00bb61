// Package llm wraps the text-generation capability behind a narrow
// interface so the pipeline can run against deterministic fakes in tests
// and degrade cleanly when no model is configured.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrNotConfigured is returned when no model credentials are set.
	ErrNotConfigured = errors.New("llm: no model configured")

	// ErrMalformedOutput is returned when the model response contains no
	// parsable JSON object. Callers treat this as an empty result, never
	// as something to retry with escalating trust.
	ErrMalformedOutput = errors.New("llm: malformed model output")
)

// Generator produces a JSON document from a constrained prompt.
type Generator interface {
	GenerateJSON(ctx context.Context, system, prompt string) (json.RawMessage, error)
}

// ExtractJSON pulls the first JSON object out of a model response,
// tolerating markdown fences and surrounding prose.
func ExtractJSON(content string) (json.RawMessage, error) {
	if idx := strings.Index(content, "```json"); idx >= 0 {
		rest := content[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			content = rest[:end]
		}
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, ErrMalformedOutput
	}

	raw := json.RawMessage(content[start : end+1])
	if !json.Valid(raw) {
		return nil, ErrMalformedOutput
	}
	return raw, nil
}
