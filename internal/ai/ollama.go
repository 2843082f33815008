package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

const ollamaProviderName = "ollama"

// ollamaClient implements Client against a local Ollama server. Cost is
// always zero; structured output uses Ollama's JSON-schema format field.
type ollamaClient struct {
	client *api.Client
	model  string
	logger *zap.Logger
}

// NewOllamaClient builds a client for the given Ollama host.
func NewOllamaClient(host, model string, timeout time.Duration, logger *zap.Logger) (Client, error) {
	// api.NewClient wants the bare host URL, without a /v1 suffix.
	baseURL := strings.TrimSuffix(strings.TrimSuffix(host, "/"), "/v1")
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ollama host %q: %w", host, err)
	}
	return &ollamaClient{
		client: api.NewClient(parsedURL, &http.Client{Timeout: timeout}),
		model:  model,
		logger: logger.Named("OllamaClient"),
	}, nil
}

func (c *ollamaClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, UsageInfo, error) {
	return c.chat(ctx, prompt, params, nil)
}

func (c *ollamaClient) GenerateStructured(ctx context.Context, prompt string, schema json.RawMessage, params GenerationParams) (json.RawMessage, UsageInfo, error) {
	text, usage, err := c.chat(ctx, prompt, params, schema)
	if err != nil {
		return nil, usage, err
	}
	trimmed := strings.TrimSpace(text)
	if !json.Valid([]byte(trimmed)) {
		return nil, usage, fmt.Errorf("%w: structured response is not valid JSON", ErrGenerationFailed)
	}
	return json.RawMessage(trimmed), usage, nil
}

func (c *ollamaClient) chat(ctx context.Context, prompt string, params GenerationParams, schema json.RawMessage) (string, UsageInfo, error) {
	usageInfo := UsageInfo{}
	model := params.Model
	if model == "" {
		model = c.model
	}

	if strings.TrimSpace(prompt) == "" {
		recordRequest(ollamaProviderName, model, "error", 0)
		return "", usageInfo, fmt.Errorf("%w: prompt is empty", ErrGenerationFailed)
	}

	req := &api.ChatRequest{
		Model:    model,
		Messages: []api.Message{{Role: "user", Content: prompt}},
		Stream:   func(b bool) *bool { return &b }(false),
		Options: map[string]interface{}{
			"temperature": params.Temperature,
		},
	}
	if params.MaxTokens > 0 {
		req.Options["num_predict"] = params.MaxTokens
	}
	if schema != nil {
		req.Format = json.RawMessage(schema)
	}

	startTime := time.Now()
	c.logger.Debug("Sending Ollama request",
		zap.String("model", model),
		zap.Int("promptBytes", len(prompt)),
		zap.Bool("structured", schema != nil))

	var resp api.ChatResponse
	err := c.client.Chat(ctx, req, func(r api.ChatResponse) error {
		resp = r // non-streaming: the callback fires once with the full response
		return nil
	})
	duration := time.Since(startTime)

	if err != nil {
		recordRequest(ollamaProviderName, model, "error", 0)
		c.logger.Warn("Ollama API error", zap.Duration("duration", duration), zap.Error(err))
		return "", usageInfo, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if resp.Message.Content == "" {
		recordRequest(ollamaProviderName, model, "error_empty_response", 0)
		return "", usageInfo, fmt.Errorf("%w: received empty response", ErrGenerationFailed)
	}

	recordRequest(ollamaProviderName, model, "success", duration.Seconds())

	usageInfo.PromptTokens = resp.PromptEvalCount
	usageInfo.CompletionTokens = resp.EvalCount
	usageInfo.TotalTokens = resp.PromptEvalCount + resp.EvalCount
	recordUsage(ollamaProviderName, model, usageInfo)

	return resp.Message.Content, usageInfo, nil
}
