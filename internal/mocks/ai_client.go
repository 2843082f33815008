package mocks

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"comic-server/internal/ai"
)

// Mock ai.Client
type AIClient struct {
	mock.Mock
}

func (m *AIClient) Generate(ctx context.Context, prompt string, params ai.GenerationParams) (string, ai.UsageInfo, error) {
	args := m.Called(ctx, prompt, params)
	usage, _ := args.Get(1).(ai.UsageInfo)
	return args.String(0), usage, args.Error(2)
}

func (m *AIClient) GenerateStructured(ctx context.Context, prompt string, schema json.RawMessage, params ai.GenerationParams) (json.RawMessage, ai.UsageInfo, error) {
	args := m.Called(ctx, prompt, schema, params)
	payload, _ := args.Get(0).(json.RawMessage)
	usage, _ := args.Get(1).(ai.UsageInfo)
	return payload, usage, args.Error(2)
}
