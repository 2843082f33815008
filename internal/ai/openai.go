package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const openAIProviderName = "openai"

// openAIClient implements Client against any OpenAI-compatible endpoint
// (OpenAI itself or an OpenRouter-style gateway).
type openAIClient struct {
	client *openaigo.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIClient builds a client for the given endpoint and default model.
func NewOpenAIClient(apiKey, baseURL, model string, timeout time.Duration, logger *zap.Logger) Client {
	clientConfig := openaigo.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}
	return &openAIClient{
		client: openaigo.NewClientWithConfig(clientConfig),
		model:  model,
		logger: logger.Named("OpenAIClient"),
	}
}

func (c *openAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, UsageInfo, error) {
	return c.complete(ctx, prompt, params, nil)
}

func (c *openAIClient) GenerateStructured(ctx context.Context, prompt string, schema json.RawMessage, params GenerationParams) (json.RawMessage, UsageInfo, error) {
	text, usage, err := c.complete(ctx, prompt, params, schema)
	if err != nil {
		return nil, usage, err
	}
	// JSON mode still returns a text body; it must parse as one object.
	trimmed := strings.TrimSpace(text)
	if !json.Valid([]byte(trimmed)) {
		return nil, usage, fmt.Errorf("%w: structured response is not valid JSON", ErrGenerationFailed)
	}
	return json.RawMessage(trimmed), usage, nil
}

func (c *openAIClient) complete(ctx context.Context, prompt string, params GenerationParams, schema json.RawMessage) (string, UsageInfo, error) {
	usageInfo := UsageInfo{}
	model := params.Model
	if model == "" {
		model = c.model
	}

	if strings.TrimSpace(prompt) == "" {
		recordRequest(openAIProviderName, model, "error", 0)
		return "", usageInfo, fmt.Errorf("%w: prompt is empty", ErrGenerationFailed)
	}

	request := openaigo.ChatCompletionRequest{
		Model: model,
		Messages: []openaigo.ChatCompletionMessage{
			{Role: openaigo.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(params.Temperature),
		MaxTokens:   params.MaxTokens,
	}
	if schema != nil {
		request.ResponseFormat = &openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONObject,
		}
		// JSON mode requires the schema restated in the prompt.
		request.Messages[0].Content = fmt.Sprintf(
			"%s\n\nRespond with a single JSON object conforming to this JSON schema:\n%s", prompt, schema)
	}

	startTime := time.Now()
	c.logger.Debug("Sending AI request",
		zap.String("model", model),
		zap.Int("promptBytes", len(request.Messages[0].Content)),
		zap.Bool("structured", schema != nil))

	resp, err := c.client.CreateChatCompletion(ctx, request)
	duration := time.Since(startTime)

	if err != nil {
		recordRequest(openAIProviderName, model, "error", 0)
		c.logger.Warn("AI API error", zap.Duration("duration", duration), zap.Error(err))
		return "", usageInfo, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		recordRequest(openAIProviderName, model, "error_empty_response", 0)
		return "", usageInfo, fmt.Errorf("%w: received empty response", ErrGenerationFailed)
	}

	recordRequest(openAIProviderName, model, "success", duration.Seconds())
	generatedText := resp.Choices[0].Message.Content

	if resp.Usage.TotalTokens > 0 {
		usageInfo.PromptTokens = resp.Usage.PromptTokens
		usageInfo.CompletionTokens = resp.Usage.CompletionTokens
		usageInfo.TotalTokens = resp.Usage.TotalTokens
	} else {
		// Some gateways omit usage; estimate with tiktoken.
		usageInfo.PromptTokens = countTokens(model, request.Messages[0].Content)
		usageInfo.CompletionTokens = countTokens(model, generatedText)
		usageInfo.TotalTokens = usageInfo.PromptTokens + usageInfo.CompletionTokens
	}
	usageInfo.EstimatedCostUSD = calculateCost(usageInfo.PromptTokens, usageInfo.CompletionTokens)
	recordUsage(openAIProviderName, model, usageInfo)

	c.logger.Debug("AI response received",
		zap.Duration("duration", duration),
		zap.Int("responseChars", len(generatedText)),
		zap.Int("totalTokens", usageInfo.TotalTokens))

	return generatedText, usageInfo, nil
}

// classifyOpenAIError maps API errors onto the package taxonomy.
func classifyOpenAIError(err error) error {
	var apiErr *openaigo.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
		if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
			return fmt.Errorf("%w: %v", ErrTokenLimit, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrGenerationFailed, err)
}

// countTokens estimates token usage for models whose responses omit it.
func countTokens(model, text string) int {
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tke, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return len(text) / 4
		}
	}
	return len(tke.Encode(text, nil, nil))
}
