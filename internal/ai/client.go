package ai

import (
	"context"
	"encoding/json"
	"errors"
)

// Provider error taxonomy. Rate-limit and generic generation errors are
// retryable; authentication and token-limit errors are not.
var (
	ErrGenerationFailed = errors.New("ai generation failed")
	ErrRateLimited      = errors.New("ai provider rate limited")
	ErrTokenLimit       = errors.New("prompt exceeds model token limit")
	ErrAuthentication   = errors.New("ai provider authentication failed")
	ErrUnknownProvider  = errors.New("unknown ai provider")
)

// Retryable reports whether the runner should retry after this error.
func Retryable(err error) bool {
	return !errors.Is(err, ErrAuthentication) && !errors.Is(err, ErrTokenLimit)
}

// GenerationParams are the per-call knobs. Zero values defer to the
// client's configuration; Provider and Model select the target when set.
type GenerationParams struct {
	Temperature float64
	MaxTokens   int
	Provider    string
	Model       string
}

// UsageInfo reports token consumption and estimated cost for one call.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	EstimatedCostUSD float64
}

// Client is the LLM capability the generation core consumes.
type Client interface {
	// Generate produces free text for the prompt.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, UsageInfo, error)

	// GenerateStructured produces output constrained to the given JSON
	// schema. The returned payload is the raw JSON object.
	GenerateStructured(ctx context.Context, prompt string, schema json.RawMessage, params GenerationParams) (json.RawMessage, UsageInfo, error)
}
